package control

import "testing"

func TestRegistryDefaultsToRunning(t *testing.T) {
	r := NewRegistry()
	if !r.ShouldContinue(1) {
		t.Fatal("expected unknown user to default to running")
	}
}

func TestRegistryStartStopFinish(t *testing.T) {
	r := NewRegistry()
	r.Start(7)
	if !r.ShouldContinue(7) {
		t.Fatal("expected running after Start")
	}
	r.Stop(7)
	if r.ShouldContinue(7) {
		t.Fatal("expected stopped after Stop")
	}
	r.Finish(7)
	if !r.ShouldContinue(7) {
		t.Fatal("expected default running after Finish clears entry")
	}
}

func TestRegistryIsolatesUsers(t *testing.T) {
	r := NewRegistry()
	r.Start(1)
	r.Start(2)
	r.Stop(1)
	if r.ShouldContinue(1) {
		t.Fatal("expected user 1 stopped")
	}
	if !r.ShouldContinue(2) {
		t.Fatal("expected user 2 unaffected")
	}
}
