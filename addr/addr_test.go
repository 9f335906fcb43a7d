package addr

import "testing"

func TestIsAligned(t *testing.T) {
	tests := []struct {
		name  string
		a     Address
		align Align
		want  bool
	}{
		{"zero is aligned to anything", 0, 16, true},
		{"aligned", 32, 16, true},
		{"unaligned", 17, 16, false},
		{"align of 1 always true", 7, 1, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsAligned(test.a, test.align); got != test.want {
				t.Errorf("IsAligned(%d, %d) = %v, want %v", test.a, test.align, got, test.want)
			}
		})
	}
}

func TestIsAlignedPanicsOnBadAlign(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("IsAligned(_, 3) did not panic on non-power-of-two alignment")
		}
	}()
	IsAligned(0, 3)
}

func TestAlignUpDown(t *testing.T) {
	tests := []struct {
		a              Address
		align          Align
		wantUp, wantDn Address
	}{
		{0, 16, 0, 0},
		{1, 16, 16, 0},
		{16, 16, 16, 16},
		{17, 16, 32, 16},
	}
	for _, test := range tests {
		if got := AlignUp(test.a, test.align); got != test.wantUp {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", test.a, test.align, got, test.wantUp)
		}
		if got := AlignDown(test.a, test.align); got != test.wantDn {
			t.Errorf("AlignDown(%d, %d) = %d, want %d", test.a, test.align, got, test.wantDn)
		}
	}
}

func TestOffset(t *testing.T) {
	if got := Offset(10, 25); got != 15 {
		t.Errorf("Offset(10, 25) = %d, want 15", got)
	}
}

func TestOffsetPanicsOnNegative(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Offset(25, 10) did not panic")
		}
	}()
	Offset(25, 10)
}

func TestAdd(t *testing.T) {
	if got := Add(100, 25); got != 125 {
		t.Errorf("Add(100, 25) = %d, want 125", got)
	}
}

func TestGrainsAlignedUp(t *testing.T) {
	tests := []struct {
		size  Size
		align Align
		want  Size
	}{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
	}
	for _, test := range tests {
		if got := GrainsAlignedUp(test.size, test.align); got != test.want {
			t.Errorf("GrainsAlignedUp(%d, %d) = %d, want %d", test.size, test.align, got, test.want)
		}
	}
}

func TestOfValueAndPointerRoundTrip(t *testing.T) {
	type obj struct{ x, y int64 }
	v := &obj{x: 7, y: 9}

	a := OfValue(v)
	got := Pointer[obj](a)
	if got.x != 7 || got.y != 9 {
		t.Errorf("Pointer(OfValue(v)) = %+v, want %+v", got, v)
	}
}

func TestBytes(t *testing.T) {
	backing := [4]byte{1, 2, 3, 4}
	a := OfValue(&backing[0])
	b := Bytes(a, 4)
	for i, want := range backing {
		if b[i] != want {
			t.Errorf("Bytes(...)[%d] = %d, want %d", i, b[i], want)
		}
	}
	b[0] = 99
	if backing[0] != 99 {
		t.Errorf("Bytes did not alias the original storage: backing[0] = %d, want 99", backing[0])
	}
}

func TestAddressString(t *testing.T) {
	a := Address(0xff)
	if got, want := a.String(), "0xff"; got != want {
		t.Errorf("Address(0xff).String() = %q, want %q", got, want)
	}
}
