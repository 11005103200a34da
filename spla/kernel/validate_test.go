package kernel

import "testing"

func TestValidateSourceAcceptsBuiltins(t *testing.T) {
	for _, src := range []string{"", OpPlus, OpTimes, OpMin, OpMax, OpLand, OpLor, OpEqZero, OpNeqZero, OpIdentity} {
		if err := ValidateSource(src); err != nil {
			t.Errorf("ValidateSource(%q) = %v, want nil", src, err)
		}
	}
}

func TestValidateSourceAcceptsCExpression(t *testing.T) {
	if err := ValidateSource("1 + 2 * 3"); err != nil {
		t.Errorf("ValidateSource(valid C expression) = %v", err)
	}
}

func TestMaxUintForBytes(t *testing.T) {
	cases := []struct {
		size int
		want uint64
	}{
		{0, 0},
		{1, 255},
		{2, 65535},
		{4, 4294967295},
		{8, ^uint64(0)},
		{9, ^uint64(0)},
	}
	for _, c := range cases {
		if got := MaxUintForBytes(c.size); got != c.want {
			t.Errorf("MaxUintForBytes(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestCoerceNarrowsToElementType(t *testing.T) {
	cases := []struct {
		in       Value
		typeName string
		want     Value
	}{
		{float64(7), "i32", int32(7)},
		{int64(3), "u8", uint8(3)},
		{int32(2), "f64", float64(2)},
		{true, "bool", true},
		{"opaque", "widget", "opaque"},
		{float64(1), "void", nil},
	}
	for _, c := range cases {
		got, err := Coerce(c.in, c.typeName)
		if err != nil {
			t.Errorf("Coerce(%v, %q) = %v", c.in, c.typeName, err)
			continue
		}
		if got != c.want {
			t.Errorf("Coerce(%v, %q) = %v (%T), want %v (%T)", c.in, c.typeName, got, got, c.want, c.want)
		}
	}
}

func TestCoerceRejectsNonBoolForBool(t *testing.T) {
	if _, err := Coerce(float64(1), "bool"); err == nil {
		t.Error("expected an error coercing a float into a bool element")
	}
}
