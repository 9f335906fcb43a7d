package shield

import (
	"errors"
	"testing"

	"github.com/bearlytools/mps/addr"
)

func TestModeHas(t *testing.T) {
	m := ModeRead | ModeWrite
	if !m.Has(ModeRead) {
		t.Errorf("Has(ModeRead) = false, want true")
	}
	if !m.Has(ModeWrite) {
		t.Errorf("Has(ModeWrite) = false, want true")
	}
	if ModeNone.Has(ModeRead) {
		t.Errorf("ModeNone.Has(ModeRead) = true, want false")
	}
}

func TestSimulatedProtectModeOf(t *testing.T) {
	s := NewSimulated()
	base := addr.Address(0x1000)

	if got := s.ModeOf(base); got != ModeNone {
		t.Errorf("ModeOf(unset) = %v, want ModeNone", got)
	}
	if err := s.Protect(base, 4096, ModeRead); err != nil {
		t.Fatalf("Protect() = %v, want nil", err)
	}
	if got := s.ModeOf(base); got != ModeRead {
		t.Errorf("ModeOf(base) = %v, want ModeRead", got)
	}
}

func TestSimulatedSuspendResume(t *testing.T) {
	s := NewSimulated()
	if s.suspended {
		t.Errorf("fresh Simulated reports suspended = true")
	}
	if err := s.SuspendThreads(); err != nil {
		t.Fatalf("SuspendThreads() = %v, want nil", err)
	}
	if !s.suspended {
		t.Errorf("suspended = false after SuspendThreads")
	}
	if err := s.ResumeThreads(); err != nil {
		t.Fatalf("ResumeThreads() = %v, want nil", err)
	}
	if s.suspended {
		t.Errorf("suspended = true after ResumeThreads")
	}
}

func TestSimulatedFaultHandlerDispatch(t *testing.T) {
	s := NewSimulated()

	var gotAddr addr.Address
	var gotWrite bool
	called := false
	h := func(faultAddr addr.Address, write bool) error {
		called = true
		gotAddr = faultAddr
		gotWrite = write
		return nil
	}
	if err := s.RegisterFaultHandler(h); err != nil {
		t.Fatalf("RegisterFaultHandler() = %v, want nil", err)
	}

	if err := s.SimulateFault(0x2000, true); err != nil {
		t.Fatalf("SimulateFault() = %v, want nil", err)
	}
	if !called {
		t.Errorf("registered handler was not invoked by SimulateFault")
	}
	if gotAddr != 0x2000 || !gotWrite {
		t.Errorf("handler received (%v, %v), want (0x2000, true)", gotAddr, gotWrite)
	}
}

func TestSimulatedFaultNoHandlerRegistered(t *testing.T) {
	s := NewSimulated()
	if err := s.SimulateFault(0x2000, false); err != nil {
		t.Errorf("SimulateFault with no handler = %v, want nil", err)
	}
}

func TestSimulatedFaultHandlerPropagatesError(t *testing.T) {
	s := NewSimulated()
	want := errors.New("boom")
	if err := s.RegisterFaultHandler(func(addr.Address, bool) error { return want }); err != nil {
		t.Fatalf("RegisterFaultHandler() = %v, want nil", err)
	}
	if got := s.SimulateFault(0, false); got != want {
		t.Errorf("SimulateFault() = %v, want %v", got, want)
	}
}
