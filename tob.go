package tob

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/signadot/tob-format/go-tob/format"
	"github.com/signadot/tob-format/go-tob/stream"
	"github.com/signadot/tob-format/go-tob/tag"
	"github.com/signadot/tob-format/go-tob/tree"
)

// Valid reports whether data holds a sequence of zero or more complete,
// well-formed documents.
func Valid(data []byte) bool {
	r := stream.NewReader(data)
	for {
		if err := r.Discard(); err != nil {
			return errors.Is(err, format.ErrEOF)
		}
	}
}

// Encode renders a Go value as one encoded document. It accepts the
// value shapes Decode produces: nil, bool, the integer and float types,
// string, []byte, []any, map[string]any, json.Number, time.Time and
// tag.Timestamp.
func Encode(v any, opts ...stream.WriterOption) ([]byte, error) {
	w := stream.NewGrowableWriter(opts...)
	if err := encodeValue(w, v); err != nil {
		return nil, err
	}
	if err := w.Destroy(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func encodeValue(w *stream.Writer, v any) error {
	switch x := v.(type) {
	case nil:
		return w.WriteNil()
	case bool:
		return w.WriteBool(x)
	case int:
		return w.WriteInt(int64(x))
	case int8:
		return w.WriteInt(int64(x))
	case int16:
		return w.WriteInt(int64(x))
	case int32:
		return w.WriteInt(int64(x))
	case int64:
		return w.WriteInt(x)
	case uint:
		return w.WriteUint(uint64(x))
	case uint8:
		return w.WriteUint(uint64(x))
	case uint16:
		return w.WriteUint(uint64(x))
	case uint32:
		return w.WriteUint(uint64(x))
	case uint64:
		return w.WriteUint(x)
	case float32:
		return w.WriteFloat(x)
	case float64:
		return w.WriteDouble(x)
	case string:
		return w.WriteUTF8(x)
	case []byte:
		return w.WriteBin(x)
	case json.Number:
		return encodeNumber(w, x)
	case time.Time:
		ts := tag.FromTime(x)
		return w.WriteTimestamp(ts.Seconds, ts.Nanoseconds)
	case tag.Timestamp:
		return w.WriteTimestamp(x.Seconds, x.Nanoseconds)
	case []any:
		if uint64(len(x)) > math.MaxUint32 {
			return fmt.Errorf("%w: array of %d", format.ErrTooBig, len(x))
		}
		if err := w.StartArray(uint32(len(x))); err != nil {
			return err
		}
		for _, e := range x {
			if err := encodeValue(w, e); err != nil {
				return err
			}
		}
		return w.FinishArray()
	case map[string]any:
		return encodeMap(w, x)
	}
	err := fmt.Errorf("%w: cannot encode %T", format.ErrType, v)
	w.FlagError(err)
	return err
}

// encodeMap writes pairs in sorted key order so equal maps encode to
// equal bytes.
func encodeMap(w *stream.Writer, m map[string]any) error {
	if uint64(len(m)) > math.MaxUint32 {
		return fmt.Errorf("%w: map of %d", format.ErrTooBig, len(m))
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if err := w.StartMap(uint32(len(m))); err != nil {
		return err
	}
	for _, k := range keys {
		if err := w.WriteUTF8(k); err != nil {
			return err
		}
		if err := encodeValue(w, m[k]); err != nil {
			return err
		}
	}
	return w.FinishMap()
}

func encodeNumber(w *stream.Writer, n json.Number) error {
	if i, err := n.Int64(); err == nil {
		return w.WriteInt(i)
	}
	f, err := n.Float64()
	if err != nil {
		err = fmt.Errorf("%w: number %q", format.ErrType, n.String())
		w.FlagError(err)
		return err
	}
	return w.WriteDouble(f)
}

// Decode parses one document into plain Go values: nil, bool, int64
// (uint64 above the int64 range), float32, float64, string, []byte,
// []any, map[string]any and time.Time for timestamps. Map keys must be
// strings or integers; integer keys become their decimal form.
func Decode(data []byte, opts ...tree.Option) (any, error) {
	t := tree.New(data, opts...)
	defer t.Destroy()
	if err := t.Parse(); err != nil {
		return nil, err
	}
	v, err := decodeNode(t.Root())
	if err != nil {
		return nil, err
	}
	if err := t.Err(); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeNode(n tree.Node) (any, error) {
	switch n.Type() {
	case tag.Nil:
		return nil, n.Err()
	case tag.Bool:
		return n.Bool(), n.Err()
	case tag.Int:
		return n.Int(), n.Err()
	case tag.Uint:
		u := n.Uint()
		if u <= math.MaxInt64 {
			return int64(u), n.Err()
		}
		return u, n.Err()
	case tag.Float:
		return n.Float(), n.Err()
	case tag.Double:
		return n.Double(), n.Err()
	case tag.Str:
		return n.Str(), n.Err()
	case tag.Bin:
		p := make([]byte, n.DataLen())
		copy(p, n.Bytes())
		return p, n.Err()
	case tag.Ext:
		if n.ExtType() == format.ExtTimestamp {
			return n.Timestamp().Time(), n.Err()
		}
		err := fmt.Errorf("%w: ext type %d", format.ErrUnsupported, n.ExtType())
		n.FlagError(err)
		return nil, err
	case tag.Array:
		vs := make([]any, n.ArrayLength())
		for i := range vs {
			v, err := decodeNode(n.ArrayAt(i))
			if err != nil {
				return nil, err
			}
			vs[i] = v
		}
		return vs, nil
	case tag.Map:
		return decodeMap(n)
	}
	return nil, n.Err()
}

func decodeMap(n tree.Node) (any, error) {
	m := make(map[string]any, n.MapCount())
	for i := 0; i < n.MapCount(); i++ {
		k, err := decodeKey(n.MapKeyAt(i))
		if err != nil {
			return nil, err
		}
		if _, dup := m[k]; dup {
			err := fmt.Errorf("%w: duplicate key %q", format.ErrData, k)
			n.FlagError(err)
			return nil, err
		}
		v, err := decodeNode(n.MapValueAt(i))
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

func decodeKey(k tree.Node) (string, error) {
	switch k.Type() {
	case tag.Str:
		return k.Str(), k.Err()
	case tag.Int:
		return fmt.Sprintf("%d", k.Int()), k.Err()
	case tag.Uint:
		return fmt.Sprintf("%d", k.Uint()), k.Err()
	}
	err := fmt.Errorf("%w: %v map key", format.ErrType, k.Type())
	k.FlagError(err)
	return "", err
}
