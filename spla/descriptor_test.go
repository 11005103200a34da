package spla

import "testing"

func TestDescriptorLayering(t *testing.T) {
	defaults := NewDescriptor()
	exprDesc := NewDescriptor()
	nodeDesc := NewDescriptor()
	eff := effectiveDescriptor{node: nodeDesc, expr: exprDesc, defaults: defaults}

	if eff.IsParamSet(AccumResult) {
		t.Fatal("nothing set yet")
	}
	defaults.SetParam(AccumResult)
	if !eff.IsParamSet(AccumResult) {
		t.Error("library default not visible through the effective descriptor")
	}

	defaults.SetParam(DeviceID, 0)
	exprDesc.SetParam(DeviceID, 1)
	if v, _ := eff.GetParamInt(DeviceID); v != 1 {
		t.Errorf("expression layer DeviceID = %d, want 1 (expression overrides defaults)", v)
	}
	nodeDesc.SetParam(DeviceID, 2)
	if v, _ := eff.GetParamInt(DeviceID); v != 2 {
		t.Errorf("node layer DeviceID = %d, want 2 (node overrides expression)", v)
	}
}

func TestDescriptorNilLayersAreEmpty(t *testing.T) {
	eff := effectiveDescriptor{node: nil, expr: nil, defaults: NewDescriptor()}
	if eff.IsParamSet(Replace) {
		t.Error("nil layers must read as unset")
	}
	if _, ok := eff.GetParamInt(DenseFactor); ok {
		t.Error("nil layers must have no values")
	}
}

func TestDescriptorUnset(t *testing.T) {
	d := NewDescriptor()
	d.SetParam(DenseFactor, 50)
	if v, ok := d.GetParamInt(DenseFactor); !ok || v != 50 {
		t.Fatalf("GetParamInt = %d,%v after SetParam", v, ok)
	}
	d.Unset(DenseFactor)
	if d.IsParamSet(DenseFactor) {
		t.Error("option still set after Unset")
	}
}

func TestDescriptorValidateComplementNeedsMask(t *testing.T) {
	d := NewDescriptor()
	d.SetParam(MaskComplement)
	eff := effectiveDescriptor{node: d, expr: NewDescriptor(), defaults: NewDescriptor()}
	if err := eff.validate(false); err == nil {
		t.Error("MaskComplement with no mask must be InvalidState")
	}
	if err := eff.validate(true); err != nil {
		t.Errorf("MaskComplement with a mask = %v, want nil", err)
	}
}
