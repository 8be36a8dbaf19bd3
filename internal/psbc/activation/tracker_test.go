package activation

import (
	"testing"
	"time"

	"github.com/debrief/psbc/internal/psbc/identity"
)

func TestFocusDebouncesRapidSwitches(t *testing.T) {
	tr := New(20)

	var published []identity.DocID
	tr.Subscribe(func(id identity.DocID) { published = append(published, id) })

	tr.Focus("a")
	tr.Focus("b")
	tr.Focus("c")

	time.Sleep(80 * time.Millisecond)

	if len(published) != 1 || published[0] != "c" {
		t.Fatalf("expected single coalesced publish of c, got %v", published)
	}
	active, ok := tr.GetActive()
	if !ok || active != "c" {
		t.Fatalf("expected active=c, got %q ok=%v", active, ok)
	}
}

func TestForgetClearsActiveImmediately(t *testing.T) {
	tr := New(20)
	tr.Focus("a")
	time.Sleep(60 * time.Millisecond)

	if active, ok := tr.GetActive(); !ok || active != "a" {
		t.Fatalf("expected active=a before forget, got %q ok=%v", active, ok)
	}

	tr.Forget("a")
	if _, ok := tr.GetActive(); ok {
		t.Fatal("expected no active document after forgetting the active one")
	}
}

func TestForgetIgnoresNonActiveDoc(t *testing.T) {
	tr := New(20)
	tr.Focus("a")
	time.Sleep(60 * time.Millisecond)

	tr.Forget("b")
	if active, ok := tr.GetActive(); !ok || active != "a" {
		t.Fatalf("expected active still a, got %q ok=%v", active, ok)
	}
}
