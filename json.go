package tob

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/goccy/go-yaml"

	"github.com/signadot/tob-format/go-tob/format"
)

// ToJSON renders one encoded document as JSON. Binaries become base64
// strings and timestamps RFC 3339 strings, following
// encoding/json's treatment of []byte and time.Time.
func ToJSON(data []byte) ([]byte, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	p, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", format.ErrData, err)
	}
	return p, nil
}

// FromJSON encodes a JSON document. Integral numbers keep their
// integer form on the wire.
func FromJSON(p []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", format.ErrData, err)
	}
	return Encode(v)
}

// ToYAML renders one encoded document as YAML.
func ToYAML(data []byte) ([]byte, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	p, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", format.ErrData, err)
	}
	return p, nil
}

// FromYAML encodes a YAML document.
func FromYAML(p []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(p, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", format.ErrData, err)
	}
	return Encode(v)
}
