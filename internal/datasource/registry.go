// Package datasource resolves source names to persisted DataSource records.
package datasource

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/microblog/internal/model"
	"github.com/alfredjeanlab/microblog/internal/store"
)

// GetOrCreate returns the DataSource named name, creating it on first use.
//
// The insert commits on its own, outside any batch the caller may open later.
// When a concurrent caller wins the insert, the winner's row is returned so
// every caller sees the same id for a name.
func GetOrCreate(ctx context.Context, s store.Store, name string) (*model.DataSource, error) {
	ds, err := s.GetDataSourceByName(ctx, name)
	if err == nil {
		return ds, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup datasource %q: %w", name, err)
	}

	ds = &model.DataSource{Name: name}
	err = s.CreateDataSource(ctx, ds)
	if err == nil {
		return ds, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("create datasource %q: %w", name, err)
	}

	ds, err = s.GetDataSourceByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("reread datasource %q: %w", name, err)
	}
	return ds, nil
}
