package tob

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/signadot/tob-format/go-tob/dump"
)

// Diff renders a line diff between the readable forms of two encoded
// documents. Unchanged regions appear bare, removals with a leading
// "-" and additions with a leading "+". Equal documents give "".
func Diff(from, to []byte) (string, error) {
	fromText, err := renderForDiff(from)
	if err != nil {
		return "", err
	}
	toText, err := renderForDiff(to)
	if err != nil {
		return "", err
	}
	if fromText == toText {
		return "", nil
	}
	dmp := diffmatchpatch.New()
	fromRunes, toRunes, lines := dmp.DiffLinesToRunes(fromText, toText)
	diffs := dmp.DiffMainRunes(fromRunes, toRunes, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		}
		for _, line := range splitKeepingLines(d.Text) {
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func renderForDiff(data []byte) (string, error) {
	var sb strings.Builder
	if err := dump.Dump(data, &sb, nil); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func splitKeepingLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
