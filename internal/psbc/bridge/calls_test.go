package bridge

import (
	"context"
	"testing"
)

func TestCallRegistryCancelStopsContextAndForgetsID(t *testing.T) {
	r := newCallRegistry()
	id, ctx := r.start(context.Background())

	if !r.cancel(id) {
		t.Fatal("expected cancel of an in-flight call to succeed")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected the call's Context to be cancelled")
	}

	if r.cancel(id) {
		t.Fatal("expected cancelling an already-finished call to report false")
	}
}

func TestCallRegistryFinishForgetsID(t *testing.T) {
	r := newCallRegistry()
	id, _ := r.start(context.Background())
	r.finish(id)

	if r.cancel(id) {
		t.Fatal("expected cancelling a finished call to report false")
	}
}

func TestCallRegistryCancelAllStopsEveryInFlightCall(t *testing.T) {
	r := newCallRegistry()
	_, ctxA := r.start(context.Background())
	_, ctxB := r.start(context.Background())

	r.cancelAll()

	for _, ctx := range []context.Context{ctxA, ctxB} {
		select {
		case <-ctx.Done():
		default:
			t.Fatal("expected cancelAll to cancel every in-flight call")
		}
	}
}
