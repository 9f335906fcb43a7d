package nailboard

import (
	"testing"

	"github.com/bearlytools/mps/addr"
)

func TestSetGet(t *testing.T) {
	b := Create(0, 1024, 16)

	if b.Get(32) {
		t.Errorf("Get(32) on a fresh board = true, want false")
	}
	if wasSet := b.Set(32); wasSet {
		t.Errorf("Set(32) first call reported wasSet = true")
	}
	if !b.Get(32) {
		t.Errorf("Get(32) after Set(32) = false, want true")
	}
	if wasSet := b.Set(32); !wasSet {
		t.Errorf("Set(32) second call reported wasSet = false")
	}
}

func TestSetRangeAndIsSetRange(t *testing.T) {
	b := Create(0, 1024, 16)
	b.SetRange(32, 80)

	if !b.IsSetRange(32, 80) {
		t.Errorf("IsSetRange(32, 80) = false after SetRange(32, 80)")
	}
	if b.IsSetRange(0, 96) {
		t.Errorf("IsSetRange(0, 96) = true, want false (only [32,80) was set)")
	}
}

func TestIsResRange(t *testing.T) {
	b := Create(0, 1024, 16)
	if !b.IsResRange(0, 1024) {
		t.Errorf("IsResRange on an empty board = false, want true")
	}
	b.Set(48)
	if b.IsResRange(0, 1024) {
		t.Errorf("IsResRange after a Set = true, want false")
	}
	if !b.IsResRange(0, 48) {
		t.Errorf("IsResRange(0, 48) = false, want true (nail is at 48, outside the range)")
	}
}

func TestNewNailsTracking(t *testing.T) {
	b := Create(0, 1024, 16)
	if b.NewNails() {
		t.Errorf("NewNails() on a fresh board = true")
	}
	b.Set(16)
	if !b.NewNails() {
		t.Errorf("NewNails() after a fresh Set = false")
	}
	b.ClearNewNails()
	if b.NewNails() {
		t.Errorf("NewNails() after ClearNewNails = true")
	}
	b.Set(16) // already set: must not re-raise newNails
	if b.NewNails() {
		t.Errorf("NewNails() after re-setting an already-nailed grain = true")
	}
}

func TestBaseLimitAlign(t *testing.T) {
	b := Create(addr.Address(100), addr.Address(200), 8)
	if b.Base() != 100 {
		t.Errorf("Base() = %v, want 100", b.Base())
	}
	if b.Limit() != 200 {
		t.Errorf("Limit() = %v, want 200", b.Limit())
	}
	if b.Align() != 8 {
		t.Errorf("Align() = %v, want 8", b.Align())
	}
}
