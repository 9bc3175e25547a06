package transfer

import (
	"encoding/json"
	"fmt"
)

// Extractor turns one raw payload into message text.
type Extractor interface {
	Extract(payload string) (string, error)
}

// ExtractorFunc adapts a plain function to Extractor.
type ExtractorFunc func(payload string) (string, error)

func (f ExtractorFunc) Extract(payload string) (string, error) { return f(payload) }

// ExtractError reports the raw record whose payload could not be extracted.
type ExtractError struct {
	RawID int64
	Err   error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract raw event %d: %v", e.RawID, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// JSONField extracts a top-level string field from a JSON object payload.
type JSONField string

func (f JSONField) Extract(payload string) (string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return "", fmt.Errorf("decode payload: %w", err)
	}
	raw, ok := obj[string(f)]
	if !ok {
		return "", fmt.Errorf("payload has no %q field", string(f))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("field %q is not a string", string(f))
	}
	return s, nil
}
