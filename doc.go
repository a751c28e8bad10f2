// Package tob works with tagged binary object documents: compact
// binary-encoded trees of nils, booleans, integers, floats, strings,
// binaries, arrays, maps and timestamps.
//
// The subpackages hold the machinery: stream reads and writes documents
// incrementally, tree parses whole documents into an immutable tree,
// expect layers typed reads over a stream, and debug renders documents
// readably. This package ties them to ordinary Go values and to JSON
// and YAML, and adds document-level operations: validation, diffing,
// patching and querying.
package tob
