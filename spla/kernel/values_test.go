package kernel

import (
	"math"
	"testing"
)

func TestLookupBinaryNumeric(t *testing.T) {
	f, err := LookupBinary(OpPlus, "i32")
	if err != nil {
		t.Fatalf("LookupBinary(+, i32) = %v", err)
	}
	got, err := f(int32(2), int32(3))
	if err != nil {
		t.Fatalf("f(2,3) = %v", err)
	}
	if got != int32(5) {
		t.Errorf("2+3 = %v (%T), want int32(5)", got, got)
	}
}

func TestLookupBinaryBool(t *testing.T) {
	f, err := LookupBinary(OpLor, "bool")
	if err != nil {
		t.Fatalf("LookupBinary(lor, bool) = %v", err)
	}
	got, err := f(false, true)
	if err != nil {
		t.Fatalf("f(false,true) = %v", err)
	}
	if got != true {
		t.Errorf("false lor true = %v, want true", got)
	}
}

func TestLookupBinaryUnknownSource(t *testing.T) {
	if _, err := LookupBinary("xor", "i32"); err == nil {
		t.Error("expected ErrNotImplemented for an unknown binary source")
	}
}

func TestLookupBinaryTypeMismatch(t *testing.T) {
	f, err := LookupBinary(OpLand, "bool")
	if err != nil {
		t.Fatalf("LookupBinary(land, bool) = %v", err)
	}
	if _, err := f(int32(1), true); err == nil {
		t.Error("expected an error combining a non-bool value through a bool operator")
	}
}

func TestLookupSelect(t *testing.T) {
	f, err := LookupSelect(OpNeqZero, "f64")
	if err != nil {
		t.Fatalf("LookupSelect(!= 0, f64) = %v", err)
	}
	ok, err := f(float64(0))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("0 != 0 should be false")
	}
	ok, err = f(float64(1.5))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("1.5 != 0 should be true")
	}
}

func TestZero(t *testing.T) {
	if Zero("bool") != false {
		t.Error("Zero(bool) should be false")
	}
	if Zero("i32") != int32(0) {
		t.Errorf("Zero(i32) = %v, want int32(0)", Zero("i32"))
	}
	if Zero("f32") != float32(0) {
		t.Errorf("Zero(f32) = %v, want float32(0)", Zero("f32"))
	}
}

func TestFromFloat64Narrowing(t *testing.T) {
	cases := []struct {
		typeName string
		want     Value
	}{
		{"i8", int8(5)},
		{"u16", uint16(5)},
		{"i64", int64(5)},
		{"f32", float32(5)},
		{"unknown", float64(5)},
	}
	for _, c := range cases {
		if got := FromFloat64(5, c.typeName); got != c.want {
			t.Errorf("FromFloat64(5, %q) = %v (%T), want %v (%T)", c.typeName, got, got, c.want, c.want)
		}
	}
}

func TestMonoidIdentity(t *testing.T) {
	cases := []struct {
		source   string
		typeName string
		want     Value
	}{
		{OpPlus, "i32", int32(0)},
		{OpTimes, "i32", int32(1)},
		{OpMin, "i32", int32(2147483647)},
		{OpMax, "i32", int32(-2147483648)},
		{OpMin, "u16", uint16(65535)},
		{OpMax, "u16", uint16(0)},
		{OpMax, "f64", math.Inf(-1)},
		{OpMin, "f64", math.Inf(1)},
		{OpLand, "bool", true},
		{OpLor, "bool", false},
	}
	for _, c := range cases {
		got, ok := MonoidIdentity(c.source, c.typeName)
		if !ok {
			t.Errorf("MonoidIdentity(%q, %q) reported no identity", c.source, c.typeName)
			continue
		}
		if got != c.want {
			t.Errorf("MonoidIdentity(%q, %q) = %v (%T), want %v (%T)", c.source, c.typeName, got, got, c.want, c.want)
		}
	}
	if _, ok := MonoidIdentity(OpPlus, "widget"); ok {
		t.Error("a user type has no known identity")
	}
	if _, ok := MonoidIdentity("xor", "i32"); ok {
		t.Error("an unknown source has no identity")
	}
}

func TestToFloat64NonNumeric(t *testing.T) {
	if _, err := ToFloat64("nope"); err == nil {
		t.Error("expected an error widening a non-numeric value")
	}
}
