// Package debug holds environment-gated trace switches for the codec:
// TOB_DEBUG_READ, TOB_DEBUG_WRITE and TOB_DEBUG_TREE turn on Logf
// tracing in the stream reader, stream writer and tree parser.
package debug

import (
	"fmt"
	"os"
	"strconv"
)

type debug struct {
	Read  bool
	Write bool
	Tree  bool
}

var d *debug

func init() {
	d = &debug{}
	d.Read = boolEnv("TOB_DEBUG_READ")
	d.Write = boolEnv("TOB_DEBUG_WRITE")
	d.Tree = boolEnv("TOB_DEBUG_TREE")
}

func boolEnv(v string) bool {
	x := os.Getenv(v)
	if x == "" {
		return false
	}
	b, _ := strconv.ParseBool(x)
	return b
}

func Read() bool {
	return d.Read
}
func Write() bool {
	return d.Write
}
func Tree() bool {
	return d.Tree
}

func Logf(msg string, args ...any) {
	for i := range args {
		if p, ok := args[i].([]byte); ok {
			args[i] = fmt.Sprintf("% x", p)
		}
	}
	fmt.Fprintf(os.Stderr, msg, args...)
}
