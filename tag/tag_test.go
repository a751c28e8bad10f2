package tag

import (
	"math"
	"testing"
	"time"
)

func TestZeroTagIsMissing(t *testing.T) {
	var z Tag
	if z.Type() != Missing {
		t.Fatalf("zero tag has type %v", z.Type())
	}
}

func TestAccessors(t *testing.T) {
	if !NewBool(true).Bool() || NewBool(false).Bool() {
		t.Errorf("bool accessor")
	}
	if NewInt(-7).Int() != -7 {
		t.Errorf("int accessor")
	}
	if NewUint(math.MaxUint64).Uint() != math.MaxUint64 {
		t.Errorf("uint accessor")
	}
	if NewFloat(1.5).Float() != 1.5 {
		t.Errorf("float accessor")
	}
	if NewDouble(-2.25).Double() != -2.25 {
		t.Errorf("double accessor")
	}
	if NewStr(9).Len() != 9 || NewBin(3).Len() != 3 {
		t.Errorf("len accessor")
	}
	if NewArray(4).Count() != 4 || NewMap(2).Count() != 2 {
		t.Errorf("count accessor")
	}
	e := NewExt(-1, 12)
	if e.ExtType() != -1 || e.Len() != 12 {
		t.Errorf("ext accessor")
	}
}

func TestAccessorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("no panic on variant misuse")
		}
	}()
	_ = NewInt(1).Bool()
}

func TestCompareIntUintNormalization(t *testing.T) {
	if !Equal(NewInt(5), NewUint(5)) {
		t.Errorf("int 5 != uint 5")
	}
	if Equal(NewInt(-5), NewUint(5)) {
		t.Errorf("int -5 == uint 5")
	}
	// Negative ints keep their own type and order before uints.
	if Compare(NewInt(-1), NewUint(0)) >= 0 {
		t.Errorf("int -1 does not order before uint 0")
	}
	if Compare(NewInt(-3), NewInt(-2)) >= 0 {
		t.Errorf("int ordering")
	}
}

func TestCompareNilMissing(t *testing.T) {
	if !Equal(NewNil(), NewNil()) {
		t.Errorf("nil != nil")
	}
	var a, b Tag
	if !Equal(a, b) {
		t.Errorf("missing != missing")
	}
	if Equal(NewNil(), a) {
		t.Errorf("nil == missing")
	}
}

func TestCompareCompoundByLength(t *testing.T) {
	if !Equal(NewStr(3), NewStr(3)) || Equal(NewStr(3), NewStr(4)) {
		t.Errorf("str length compare")
	}
	if !Equal(NewMap(2), NewMap(2)) || Equal(NewArray(1), NewArray(2)) {
		t.Errorf("container count compare")
	}
	if Equal(NewStr(3), NewBin(3)) {
		t.Errorf("str == bin")
	}
	if Equal(NewExt(1, 4), NewExt(2, 4)) {
		t.Errorf("ext type ignored")
	}
}

func TestCompareFloatsBitwise(t *testing.T) {
	nan := math.NaN()
	if !Equal(NewDouble(nan), NewDouble(nan)) {
		t.Errorf("identical NaNs differ")
	}
	other := math.Float64frombits(math.Float64bits(nan) ^ 1)
	if Equal(NewDouble(nan), NewDouble(other)) {
		t.Errorf("distinct NaN payloads equal")
	}
	// Same numeric value as float and double stays distinct.
	if Equal(NewFloat(1.0), NewDouble(1.0)) {
		t.Errorf("float == double")
	}
	if Compare(NewFloat(1.0), NewDouble(1.0)) >= 0 {
		t.Errorf("floats do not order before doubles")
	}
}

func TestTimestampRoundtrip(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC)
	ts := FromTime(at)
	if !ts.Time().Equal(at) {
		t.Fatalf("roundtrip: %v != %v", ts.Time(), at)
	}
	neg := Timestamp{Seconds: -1, Nanoseconds: 999999999}
	if neg.Time().UnixNano() != -1 {
		t.Fatalf("negative seconds: %d", neg.Time().UnixNano())
	}
}
