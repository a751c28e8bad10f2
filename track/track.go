// Package track enforces compound-type nesting for the streaming reader
// and writer. Each open array, map, string, binary or ext gets a frame on
// a stack; the frame counts down the declared elements or bytes and the
// close operation asserts the frame is exactly spent. Every failure here
// is caller misuse, so everything wraps format.ErrBug.
package track

import (
	"fmt"

	"github.com/signadot/tob-format/go-tob/format"
	"github.com/signadot/tob-format/go-tob/tag"
)

// Frame is one open compound element.
type Frame struct {
	Kind tag.Type
	// Left counts remaining elements for containers, remaining bytes
	// for str/bin/ext.
	Left uint32
	// KeyNeedsValue is set between the key and value halves of a map
	// pair.
	KeyNeedsValue bool
}

// Tracker is a stack of open compound elements. The zero value is ready
// to use.
type Tracker struct {
	stack     []Frame
	destroyed bool
}

const initialDepth = 8

// Depth returns the number of open compound elements.
func (t *Tracker) Depth() int { return len(t.stack) }

// Push opens a compound element. Containers pass their element count
// (pairs for maps count once here; Element accounts for both halves),
// byte types pass their byte length. Zero-count frames are pushed too so
// the matching close still balances.
func (t *Tracker) Push(kind tag.Type, count uint32) error {
	if t.stack == nil {
		t.stack = make([]Frame, 0, initialDepth)
	}
	t.stack = append(t.stack, Frame{Kind: kind, Left: count})
	return nil
}

// Pop closes the innermost compound element, which must have kind kind
// and be exactly spent.
func (t *Tracker) Pop(kind tag.Type) error {
	if len(t.stack) == 0 {
		return fmt.Errorf("%w: closing a %v but nothing is open", format.ErrBug, kind)
	}
	top := &t.stack[len(t.stack)-1]
	if top.Kind != kind {
		return fmt.Errorf("%w: closing a %v but the open element is a %v",
			format.ErrBug, kind, top.Kind)
	}
	if top.KeyNeedsValue {
		return fmt.Errorf("%w: closing a %v with a key missing its value",
			format.ErrBug, kind)
	}
	if top.Left != 0 {
		what := "bytes"
		if kind.IsContainer() {
			what = "elements"
		}
		return fmt.Errorf("%w: closing a %v with %d %s left",
			format.ErrBug, kind, top.Left, what)
	}
	t.stack = t.stack[:len(t.stack)-1]
	return nil
}

// top returns the innermost frame, or nil when nothing is open.
func (t *Tracker) top() *Frame {
	if len(t.stack) == 0 {
		return nil
	}
	return &t.stack[len(t.stack)-1]
}

// peekElement checks that one element could legally be consumed or
// produced now, without mutating the stack.
func (t *Tracker) peekElement() (*Frame, error) {
	top := t.top()
	if top == nil {
		// Not inside any compound: a standalone element is fine.
		return nil, nil
	}
	if top.Kind.IsBytes() {
		return nil, fmt.Errorf("%w: element inside open %v, expected bytes",
			format.ErrBug, top.Kind)
	}
	if top.Left == 0 && !top.KeyNeedsValue {
		return nil, fmt.Errorf("%w: too many elements for %v", format.ErrBug, top.Kind)
	}
	return top, nil
}

// PeekElement verifies an element may be consumed without consuming it.
func (t *Tracker) PeekElement() error {
	_, err := t.peekElement()
	return err
}

// Element records one element consumed or produced. The key half of a
// map pair toggles phase without decrementing; the value half completes
// the pair and decrements.
func (t *Tracker) Element() error {
	top, err := t.peekElement()
	if top == nil || err != nil {
		return err
	}
	if top.Kind == tag.Map {
		top.KeyNeedsValue = !top.KeyNeedsValue
		if top.KeyNeedsValue {
			return nil
		}
	}
	top.Left--
	return nil
}

// Bytes records count bytes consumed or produced against the open
// str/bin/ext frame.
func (t *Tracker) Bytes(count uint64) error {
	if count > maxLen {
		return fmt.Errorf("%w: tracking %d bytes", format.ErrBug, count)
	}
	top := t.top()
	if top == nil {
		return fmt.Errorf("%w: bytes with nothing open", format.ErrBug)
	}
	if top.Kind.IsContainer() {
		return fmt.Errorf("%w: bytes inside open %v", format.ErrBug, top.Kind)
	}
	if uint64(top.Left) < count {
		return fmt.Errorf("%w: %d bytes tracked but only %d left",
			format.ErrBug, count, top.Left)
	}
	top.Left -= uint32(count)
	return nil
}

const maxLen = 0xffffffff

// StrBytesAll records count bytes against an open Str frame and requires
// that this consumes the string completely.
func (t *Tracker) StrBytesAll(count uint64) error {
	if err := t.Bytes(count); err != nil {
		return err
	}
	top := t.top()
	if top.Kind != tag.Str {
		return fmt.Errorf("%w: whole-string read of open %v", format.ErrBug, top.Kind)
	}
	if top.Left != 0 {
		return fmt.Errorf("%w: whole-string read left %d bytes", format.ErrBug, top.Left)
	}
	return nil
}

// CheckEmpty fails if any compound element is still open.
func (t *Tracker) CheckEmpty() error {
	if top := t.top(); top != nil {
		return fmt.Errorf("%w: %v still open", format.ErrBug, top.Kind)
	}
	return nil
}

// Destroy releases the stack. Unless cancel is set it returns
// CheckEmpty's verdict. Idempotent.
func (t *Tracker) Destroy(cancel bool) error {
	if t.destroyed {
		return nil
	}
	t.destroyed = true
	var err error
	if !cancel {
		err = t.CheckEmpty()
	}
	t.stack = nil
	return err
}
