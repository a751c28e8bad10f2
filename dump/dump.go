// Package dump renders encoded documents readably, as indented
// pseudo-JSON with optional color.
package dump

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/signadot/tob-format/go-tob/format"
	"github.com/signadot/tob-format/go-tob/stream"
	"github.com/signadot/tob-format/go-tob/tag"
)

// Options controls the rendered form. The zero value gives plain
// uncolored output with two-space indentation.
type Options struct {
	Colors *Colors
	Indent string
	MaxBin int // shown bytes of a binary payload, 0 for a default of 16
}

const defaultMaxBin = 16

// Dump renders one encoded document as readable pseudo-JSON. Binary and
// ext payloads, which JSON has no form for, appear as bracketed
// summaries.
func Dump(data []byte, w io.Writer, opts *Options) error {
	if opts == nil {
		opts = &Options{}
	}
	d := &dumper{
		w:      bufio.NewWriter(w),
		colors: opts.Colors,
		indent: opts.Indent,
		maxBin: opts.MaxBin,
	}
	if d.indent == "" {
		d.indent = "  "
	}
	if d.maxBin == 0 {
		d.maxBin = defaultMaxBin
	}
	d.r = stream.NewReader(data)
	if err := d.element(0); err != nil {
		return err
	}
	d.puts("\n")
	if err := d.r.Destroy(); err != nil {
		return err
	}
	return d.w.Flush()
}

type dumper struct {
	r      *stream.Reader
	w      *bufio.Writer
	colors *Colors
	indent string
	maxBin int
}

func (d *dumper) puts(s string) {
	d.w.WriteString(s)
}

func (d *dumper) colored(able Colorable, f string, args ...any) {
	d.puts(d.colors.sprintf(able, f, args...))
}

func (d *dumper) sep(t tag.Type, s string) {
	d.colored(Colorable{Type: t, Attr: SepColor}, "%s", s)
}

func (d *dumper) newline(depth int) {
	d.puts("\n")
	d.puts(strings.Repeat(d.indent, depth))
}

func (d *dumper) element(depth int) error {
	t, err := d.r.ReadTag()
	if err != nil {
		return err
	}
	val := Colorable{Type: t.Type(), Attr: ValueColor}
	switch t.Type() {
	case tag.Nil:
		d.colored(val, "null")
	case tag.Bool:
		d.colored(val, "%v", t.Bool())
	case tag.Int:
		d.colored(val, "%d", t.Int())
	case tag.Uint:
		d.colored(val, "%d", t.Uint())
	case tag.Float:
		d.colored(val, "%v", t.Float())
	case tag.Double:
		d.colored(val, "%v", t.Double())
	case tag.Str:
		s, err := d.r.ReadString(int(t.Len()))
		if err != nil {
			return err
		}
		if err := d.r.DoneStr(); err != nil {
			return err
		}
		d.colored(val, "%s", strconv.Quote(s))
	case tag.Bin:
		return d.bin(t, val)
	case tag.Ext:
		return d.ext(t, val)
	case tag.Array:
		return d.array(t, depth)
	case tag.Map:
		return d.mapping(t, depth)
	}
	return nil
}

func (d *dumper) bin(t tag.Tag, val Colorable) error {
	n := int(t.Len())
	shown := min(n, d.maxBin)
	p := make([]byte, shown)
	if err := d.r.ReadBytes(p); err != nil {
		return err
	}
	if err := d.r.SkipBytes(n - shown); err != nil {
		return err
	}
	if err := d.r.DoneBin(); err != nil {
		return err
	}
	ell := ""
	if shown < n {
		ell = "..."
	}
	d.colored(val, "<bin of %d bytes: %x%s>", n, p, ell)
	return nil
}

func (d *dumper) ext(t tag.Tag, val Colorable) error {
	if t.ExtType() == format.ExtTimestamp {
		ts, err := d.r.ReadTimestamp(int(t.Len()))
		if err != nil {
			return err
		}
		d.colored(val, "<timestamp %s>", ts.Time().Format(time.RFC3339Nano))
		return nil
	}
	n := int(t.Len())
	if err := d.r.SkipBytes(n); err != nil {
		return err
	}
	if err := d.r.DoneExt(); err != nil {
		return err
	}
	d.colored(val, "<ext type %d of %d bytes>", t.ExtType(), n)
	return nil
}

func (d *dumper) array(t tag.Tag, depth int) error {
	n := t.Count()
	if n == 0 {
		d.sep(tag.Array, "[]")
		return d.r.DoneArray()
	}
	d.sep(tag.Array, "[")
	for i := uint32(0); i < n; i++ {
		if i > 0 {
			d.sep(tag.Array, ",")
		}
		d.newline(depth + 1)
		if err := d.element(depth + 1); err != nil {
			return err
		}
	}
	d.newline(depth)
	d.sep(tag.Array, "]")
	return d.r.DoneArray()
}

func (d *dumper) mapping(t tag.Tag, depth int) error {
	n := t.Count()
	if n == 0 {
		d.sep(tag.Map, "{}")
		return d.r.DoneMap()
	}
	d.sep(tag.Map, "{")
	for i := uint32(0); i < n; i++ {
		if i > 0 {
			d.sep(tag.Map, ",")
		}
		d.newline(depth + 1)
		if err := d.key(); err != nil {
			return err
		}
		d.sep(tag.Map, ": ")
		if err := d.element(depth + 1); err != nil {
			return err
		}
	}
	d.newline(depth)
	d.sep(tag.Map, "}")
	return d.r.DoneMap()
}

// key renders a map key. String keys take the key color; any other key
// type renders like a value.
func (d *dumper) key() error {
	t, err := d.r.PeekTag()
	if err != nil {
		return err
	}
	if t.Type() != tag.Str {
		return d.element(0)
	}
	if _, err := d.r.ReadTag(); err != nil {
		return err
	}
	s, err := d.r.ReadString(int(t.Len()))
	if err != nil {
		return err
	}
	if err := d.r.DoneStr(); err != nil {
		return err
	}
	d.colored(Colorable{Type: tag.Str, Attr: KeyColor}, "%s", strconv.Quote(s))
	return nil
}

// Dumps returns the rendering of Dump as a string, with a note in place
// of the output when the document is damaged.
func Dumps(data []byte, opts *Options) string {
	var sb strings.Builder
	if err := Dump(data, &sb, opts); err != nil {
		return fmt.Sprintf("<undumpable: %v>", err)
	}
	return sb.String()
}
