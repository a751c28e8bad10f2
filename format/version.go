package format

import (
	"errors"
	"fmt"
)

// Version selects the wire dialect a writer targets and a reader accepts.
type Version int

const (
	// V4 is the legacy dialect: no str8, no bin family, no ext family.
	// Binary data is written with raw string opcodes.
	V4 Version = iota
	// V5 is the current dialect with distinct str/bin/ext families.
	V5
)

// Current is the dialect writers use unless configured otherwise.
const Current = V5

var ErrBadVersion = errors.New("bad version")

func ParseVersion(v string) (Version, error) {
	f, ok := map[string]Version{
		"4":  V4,
		"v4": V4,
		"5":  V5,
		"v5": V5,
	}[v]
	if ok {
		return f, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrBadVersion, v)
}

func (v Version) String() string {
	d, err := v.MarshalText()
	if err != nil {
		return err.Error()
	}
	return string(d)
}

func (v Version) MarshalText() ([]byte, error) {
	switch v {
	case V4:
		return []byte("v4"), nil
	case V5:
		return []byte("v5"), nil
	default:
		return nil, fmt.Errorf("<err: %d is not a version>", v)
	}
}

func (v *Version) UnmarshalText(d []byte) error {
	pv, err := ParseVersion(string(d))
	if err != nil {
		return err
	}
	*v = pv
	return nil
}

// HasStr8 reports whether the dialect has the one-byte-length string opcode.
func (v Version) HasStr8() bool { return v >= V5 }

// HasBin reports whether the dialect has a binary family distinct from
// strings.
func (v Version) HasBin() bool { return v >= V5 }

// HasExt reports whether the dialect has the ext family at all.
func (v Version) HasExt() bool { return v >= V5 }
