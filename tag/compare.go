package tag

// normalize folds non-negative Int tags onto Uint so that the two
// integer types compare by value, not by representation.
func normalize(t Tag) Tag {
	if t.typ == Int && int64(t.v) >= 0 {
		return Tag{typ: Uint, v: t.v}
	}
	return t
}

// Compare orders two tags. Tags of different types (after folding
// non-negative ints onto uints) order by type. Compound tags compare by
// declared length or count only, never by content. Floats and doubles
// compare bit for bit, so a NaN equals an identical NaN and distinct NaN
// payloads differ.
func Compare(a, b Tag) int {
	a, b = normalize(a), normalize(b)
	if a.typ != b.typ {
		if a.typ < b.typ {
			return -1
		}
		return 1
	}
	switch a.typ {
	case Missing, Nil:
		return 0
	case Int:
		return cmpI64(int64(a.v), int64(b.v))
	case Bool, Uint, Float, Double, Str, Bin, Array, Map:
		return cmpU64(a.v, b.v)
	case Ext:
		if a.ext != b.ext {
			return cmpI64(int64(a.ext), int64(b.ext))
		}
		return cmpU64(a.v, b.v)
	}
	return 0
}

// Equal reports whether Compare(a, b) == 0.
func Equal(a, b Tag) bool { return Compare(a, b) == 0 }

func cmpI64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpU64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
