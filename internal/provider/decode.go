package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

var errTrailingData = errors.New("unexpected data after JSON document")

// DecodeJSON parses text as exactly one JSON document. There is no repair
// or partial recovery; any failure is a ResponseParseError carrying text
// verbatim.
func DecodeJSON(provider, text string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, &ResponseParseError{Provider: provider, Raw: text, Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ResponseParseError{Provider: provider, Raw: text, Err: errTrailingData}
	}
	return value, nil
}
