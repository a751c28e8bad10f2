package tob

import (
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/signadot/tob-format/go-tob/format"
)

// Patch applies an RFC 6902 patch, itself an encoded document holding
// the usual array of operations, to an encoded document. Both sides
// round-trip through JSON, so binary payloads and timestamps take their
// JSON forms while being addressed.
func Patch(doc, patch []byte) ([]byte, error) {
	jdoc, err := ToJSON(doc)
	if err != nil {
		return nil, err
	}
	jpatch, err := ToJSON(patch)
	if err != nil {
		return nil, err
	}
	p, err := jsonpatch.DecodePatch(jpatch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", format.ErrData, err)
	}
	out, err := p.Apply(jdoc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", format.ErrData, err)
	}
	return FromJSON(out)
}

// MergePatch applies an RFC 7386 merge patch to an encoded document.
func MergePatch(doc, patch []byte) ([]byte, error) {
	jdoc, err := ToJSON(doc)
	if err != nil {
		return nil, err
	}
	jpatch, err := ToJSON(patch)
	if err != nil {
		return nil, err
	}
	out, err := jsonpatch.MergePatch(jdoc, jpatch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", format.ErrData, err)
	}
	return FromJSON(out)
}

// CreateMergePatch computes the RFC 7386 merge patch that turns one
// encoded document into another.
func CreateMergePatch(from, to []byte) ([]byte, error) {
	jfrom, err := ToJSON(from)
	if err != nil {
		return nil, err
	}
	jto, err := ToJSON(to)
	if err != nil {
		return nil, err
	}
	out, err := jsonpatch.CreateMergePatch(jfrom, jto)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", format.ErrData, err)
	}
	return FromJSON(out)
}
