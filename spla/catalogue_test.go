package spla

import "testing"

func TestCatalogueFindBuiltinBinary(t *testing.T) {
	c := newCatalogue()
	op, err := c.FindBinary("+", TypeI32)
	if err != nil {
		t.Fatalf("FindBinary(+, i32) = %v", err)
	}
	if op.Kind != OpBinary || op.In1.Name != TypeI32 {
		t.Errorf("unexpected operator %+v", op)
	}
}

func TestCatalogueFindBinaryUnknown(t *testing.T) {
	c := newCatalogue()
	if _, err := c.FindBinary("frobnicate", TypeI32); err == nil {
		t.Error("expected an error for an unregistered operator name")
	}
}

func TestCatalogueFindBinaryWrongType(t *testing.T) {
	c := newCatalogue()
	// land/lor are only seeded over bool.
	if _, err := c.FindBinary("land", TypeI32); err == nil {
		t.Error("expected an error looking up a bool-only operator over i32")
	}
	if _, err := c.FindBinary("land", TypeBool); err != nil {
		t.Errorf("FindBinary(land, bool) = %v", err)
	}
}

func TestCatalogueFindUnaryAndSelect(t *testing.T) {
	c := newCatalogue()
	if _, err := c.FindUnary("id", TypeF64); err != nil {
		t.Errorf("FindUnary(id, f64) = %v", err)
	}
	if _, err := c.FindSelect("!= 0", TypeI32); err != nil {
		t.Errorf("FindSelect(!= 0, i32) = %v", err)
	}
	if _, err := c.FindSelect("!= 0", TypeBool); err == nil {
		t.Error("expected no != 0 select operator seeded over bool")
	}
}

func TestCatalogueMakeTypeRejectsDuplicate(t *testing.T) {
	c := newCatalogue()
	if _, err := c.MakeType("widget", 4, ""); err != nil {
		t.Fatalf("MakeType(widget) = %v", err)
	}
	if _, err := c.MakeType("widget", 4, ""); err == nil {
		t.Error("expected an error re-registering the same type name")
	}
}

func TestCatalogueMakeTypeRejectsNonPositiveSize(t *testing.T) {
	c := newCatalogue()
	if _, err := c.MakeType("bad", 0, ""); err == nil {
		t.Error("expected an error for a zero byte size")
	}
}
