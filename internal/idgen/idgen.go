// Package idgen generates short run identifiers that tag the log lines and
// bus events of one capture, transfer or export invocation.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Kind names the invocation a run id belongs to. It becomes the id prefix.
type Kind string

const (
	KindCapture  Kind = "cap"
	KindTransfer Kind = "xfr"
	KindExport   Kind = "exp"
)

// alphabet is lowercase so ids read well in logs and S3 object keys.
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Length is the number of random characters after the prefix.
const Length = 12

// RunID returns a new id of the form "<kind>-<random>".
func RunID(kind Kind) (string, error) {
	id, err := nanoid.Generate(alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return string(kind) + "-" + id, nil
}

// MustRunID is RunID for callers that cannot proceed without an id.
// nanoid only fails when the system random source does.
func MustRunID(kind Kind) string {
	id, err := RunID(kind)
	if err != nil {
		panic(err)
	}
	return id
}
