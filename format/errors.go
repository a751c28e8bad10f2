package format

import (
	"errors"
)

// The closed set of error classes a codec operation can produce. Every
// error returned or flagged by a reader, writer, tracker or tree wraps
// exactly one of these, so callers classify with errors.Is.
var (
	// ErrIO means a fill, flush or skip against the underlying stream
	// failed or came up short.
	ErrIO = errors.New("io error")

	// ErrInvalid means the data is not well-formed: a reserved opcode, a
	// truncated message, malformed UTF-8 on a write, or a container that
	// declares more content than the input can hold.
	ErrInvalid = errors.New("invalid data")

	// ErrUnsupported means the data uses a feature this configuration
	// rejects, such as ext types with extensions disabled.
	ErrUnsupported = errors.New("unsupported feature")

	// ErrType means the data is well-formed but has the wrong type or an
	// out-of-range value for the requested operation.
	ErrType = errors.New("type mismatch")

	// ErrTooBig means the data exceeds a configured or structural limit.
	ErrTooBig = errors.New("data too big")

	// ErrMemory means an allocation limit was reached, such as a fixed
	// node pool running out.
	ErrMemory = errors.New("out of memory")

	// ErrBug means the caller misused the API: unbalanced containers, a
	// write after Missing, operations on a destroyed instance.
	ErrBug = errors.New("api misuse")

	// ErrData means the content does not match what the caller asked
	// for: a missing or duplicated map key, an index out of bounds.
	ErrData = errors.New("data mismatch")

	// ErrEOF means the stream ended cleanly between messages.
	ErrEOF = errors.New("end of stream")
)

// Class reduces err to the sentinel it wraps, or nil.
func Class(err error) error {
	for _, c := range []error{
		ErrIO, ErrInvalid, ErrUnsupported, ErrType, ErrTooBig,
		ErrMemory, ErrBug, ErrData, ErrEOF,
	} {
		if errors.Is(err, c) {
			return c
		}
	}
	return nil
}
