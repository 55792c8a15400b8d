package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Parse decodes a fence-stripped reply into a generic JSON value. The result
// is usually a map[string]any; shape checks are left to the caller. An empty
// reply, invalid JSON, or trailing data after the first value yields an
// error wrapping [ErrInvalidFormat].
func Parse(raw string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrInvalidFormat)
	}
	return v, nil
}
