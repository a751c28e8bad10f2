// Package tree parses a complete message into an immutable, randomly
// indexable tree of nodes. Nodes live in page-granular arenas and point
// back into the source bytes for string, binary and ext payloads, so a
// parsed tree costs one allocation per page plus the source buffer.
//
// The parser defends against hostile input: a container claiming more
// children than the remaining input could possibly encode is rejected
// before any allocation, since every child needs at least one input
// byte. Total message size and node count are separately capped.
package tree

import (
	"fmt"
	"io"
	"math"

	"github.com/signadot/tob-format/go-tob/debug"
	"github.com/signadot/tob-format/go-tob/format"
	"github.com/signadot/tob-format/go-tob/tag"
)

const (
	defaultNodesPerPage = 128
	defaultBufferSize   = 4096
)

type parseState int

const (
	parseNotStarted parseState = iota
	parseInProgress
	parseDone
)

// node is one parsed element. val holds the scalar bits or, for byte
// types, the payload offset into the tree's data. children is the
// contiguous run backing a container: count entries for arrays,
// 2*count alternating key,value entries for maps.
type node struct {
	typ      tag.Type
	len      uint32
	val      uint64
	children []node
}

// level is one open container during parsing. next is the remaining
// slice of children to fill.
type level struct {
	next []node
}

// Tree owns one parsed message. Create with New or NewStream, call
// Parse or TryParse, then walk from Root. A tree can parse several
// messages back to back; each parse invalidates the previous message's
// nodes. Not safe for concurrent use.
type Tree struct {
	data    []byte
	dataLen int
	// buffered is set when data is a tree-owned buffer that may be
	// grown and compacted, rather than a borrowed complete message.
	buffered bool
	fill     io.Reader

	maxSize  int
	maxNodes int
	perPage  int

	// poolOnly pins the arena to a single fixed allocation.
	poolOnly bool
	poolSize int
	pool     []node

	// size is the byte cursor within data for the message being
	// parsed, and the message's total size once parsed.
	size      int
	nodeCount int

	state parseState
	// possibleLeft counts available input bytes not yet claimed by a
	// parsed or promised node. curReserved counts the bytes the node
	// being parsed has claimed so far.
	possibleLeft int
	curReserved  int
	free         []node
	stack        []level

	root        *node
	nilNode     node
	missingNode node

	err     error
	errFn   func(error)
	errDone bool
}

// Option configures a Tree.
type Option func(*Tree)

// WithMaxSize caps the total byte size of one message.
func WithMaxSize(n int) Option {
	return func(t *Tree) { t.maxSize = n }
}

// WithMaxNodes caps the total node count of one message.
func WithMaxNodes(n int) Option {
	return func(t *Tree) { t.maxNodes = n }
}

// WithPageSize sets the number of nodes per arena page.
func WithPageSize(n int) Option {
	return func(t *Tree) { t.perPage = n }
}

// WithNodePool pins the tree to a single fixed pool of n nodes. The
// arena never grows; a message needing more nodes fails with a too-big
// error.
func WithNodePool(n int) Option {
	return func(t *Tree) {
		t.poolOnly = true
		t.poolSize = n
	}
}

// WithErrorFunc registers a hook called exactly once, with the first
// error that poisons the tree.
func WithErrorFunc(fn func(error)) Option {
	return func(t *Tree) { t.errFn = fn }
}

func newTree(opts []Option) *Tree {
	t := &Tree{
		maxSize:  math.MaxInt,
		maxNodes: math.MaxInt,
		perPage:  defaultNodesPerPage,
	}
	t.nilNode.typ = tag.Nil
	t.missingNode.typ = tag.Missing
	for _, o := range opts {
		o(t)
	}
	if t.poolOnly && t.poolSize == 0 {
		t.FlagError(fmt.Errorf("%w: node pool of size zero", format.ErrBug))
	}
	return t
}

// New parses from data, which must hold one or more complete messages.
// The slice is borrowed, not copied, and parsed nodes reference it.
func New(data []byte, opts ...Option) *Tree {
	t := newTree(opts)
	t.data = data
	t.dataLen = len(data)
	return t
}

// NewStream pulls messages from src into a growing internal buffer,
// bounded by the configured maximum size.
func NewStream(src io.Reader, opts ...Option) *Tree {
	t := newTree(opts)
	t.fill = src
	t.buffered = true
	return t
}

// NewError returns a tree born poisoned with err.
func NewError(err error, opts ...Option) *Tree {
	t := newTree(opts)
	t.FlagError(err)
	return t
}

// Err returns the sticky error, nil if none.
func (t *Tree) Err() error { return t.err }

// FlagError poisons the tree with err. The first error wins.
func (t *Tree) FlagError(err error) {
	if t.err != nil || err == nil {
		return
	}
	if debug.Tree() {
		debug.Logf("tob: tree error: %v\n", err)
	}
	t.err = err
	if t.errFn != nil && !t.errDone {
		t.errDone = true
		t.errFn(err)
	}
}

// Size returns the byte size of the parsed message.
func (t *Tree) Size() int { return t.size }

// NodeCount returns the number of nodes in the parsed message.
func (t *Tree) NodeCount() int { return t.nodeCount }

// Root returns the root node of the parsed message. Calling it before a
// successful parse is misuse.
func (t *Tree) Root() Node {
	if t.err != nil {
		return Node{t, &t.nilNode}
	}
	if t.state != parseDone {
		t.FlagError(fmt.Errorf("%w: root of an unparsed tree", format.ErrBug))
		return Node{t, &t.nilNode}
	}
	return Node{t, t.root}
}

// Destroy finishes with the tree, releasing the arena, and returns the
// final error state.
func (t *Tree) Destroy() error {
	t.root = nil
	t.free = nil
	t.stack = nil
	t.state = parseNotStarted
	return t.err
}
