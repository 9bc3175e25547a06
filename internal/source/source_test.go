package source

import (
	"errors"
	"log/slog"
	"reflect"
	"testing"

	"github.com/alfredjeanlab/microblog/internal/capture"
	"github.com/alfredjeanlab/microblog/internal/transfer"
)

func TestSettingsFromEnv(t *testing.T) {
	environ := []string{
		"MB_SOURCE_TWITTER_BEARER_TOKEN=abc",
		"MB_SOURCE_TWITTER_RULE=cats=dogs",
		"MB_SOURCE_NATS_URL=nats://localhost:4222",
		"TWITTER_BEARER_TOKEN=ignored",
		"MB_SOURCE_MY_TWITTER_EXTRA=kept",
		"MALFORMED",
	}

	got := SettingsFromEnv("twitter", environ)
	want := Settings{
		"MB_SOURCE_TWITTER_BEARER_TOKEN": "abc",
		"MB_SOURCE_TWITTER_RULE":         "cats=dogs",
		"MB_SOURCE_MY_TWITTER_EXTRA":     "kept",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SettingsFromEnv = %v, want %v", got, want)
	}
}

func TestSettings_Require(t *testing.T) {
	s := Settings{"A": "1", "B": ""}
	if err := s.Require("A"); err != nil {
		t.Fatalf("Require(A): %v", err)
	}
	err := s.Require("A", "B", "C")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if err.Error() != "invalid source configuration: missing B, C" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestSettings_MergeAndGet(t *testing.T) {
	base := Settings{"A": "file", "B": "file"}
	merged := base.Merge(Settings{"B": "env"})
	if merged["A"] != "file" || merged["B"] != "env" {
		t.Fatalf("merge = %v", merged)
	}
	if base["B"] != "file" {
		t.Fatal("Merge must not modify the receiver")
	}
	if got := merged.Get("C", "default"); got != "default" {
		t.Errorf("Get default = %q", got)
	}
}

type stubVariant struct{ name string }

func (s stubVariant) Name() string { return s.name }
func (s stubVariant) NewStream(Settings, *slog.Logger) (capture.Stream, string, error) {
	return nil, "", nil
}
func (s stubVariant) Extractor() transfer.Extractor { return nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubVariant{"twitter"}, stubVariant{"nats"})

	if got := r.Names(); !reflect.DeepEqual(got, []string{"nats", "twitter"}) {
		t.Errorf("Names = %v", got)
	}
	v, err := r.Lookup("twitter")
	if err != nil || v.Name() != "twitter" {
		t.Fatalf("Lookup(twitter) = %v, %v", v, err)
	}
	if _, err := r.Lookup("mastodon"); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}
}

func TestNewRegistry_RejectsBadNames(t *testing.T) {
	for _, tc := range []struct {
		name     string
		variants []Variant
	}{
		{"Uppercase", []Variant{stubVariant{"Twitter"}}},
		{"Empty", []Variant{stubVariant{""}}},
		{"Duplicate", []Variant{stubVariant{"nats"}, stubVariant{"nats"}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected NewRegistry to panic")
				}
			}()
			NewRegistry(tc.variants...)
		})
	}
}
