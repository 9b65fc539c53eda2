package hooks

import (
	"context"
	"errors"
	"testing"
)

func TestChain_OrderedExecution(t *testing.T) {
	c := NewChain()
	var order []string

	c.Register(EventSearchRefsPost, func(_ context.Context, hc *Context) error {
		order = append(order, "first")
		hc.Output["touched"] = "first"
		return nil
	})
	c.Register(EventSearchRefsPost, func(_ context.Context, hc *Context) error {
		order = append(order, "second")
		// Later handlers observe earlier mutations.
		if hc.Output["touched"] != "first" {
			t.Error("second handler did not see first handler's mutation")
		}
		return nil
	})

	c.Emit(context.Background(), EventSearchRefsPost, map[string]interface{}{})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("execution order = %v", order)
	}
}

func TestChain_Augmentation(t *testing.T) {
	c := NewChain()
	augmented := []string{"keyword-hit"}

	c.Register(EventSearchRefsPost, func(_ context.Context, hc *Context) error {
		hc.AugmentedRefs = augmented
		return nil
	})

	hc := c.Emit(context.Background(), EventSearchRefsPost, map[string]interface{}{})
	got, ok := hc.AugmentedRefs.([]string)
	if !ok || len(got) != 1 || got[0] != "keyword-hit" {
		t.Fatalf("augmentedRefs = %+v", hc.AugmentedRefs)
	}
}

func TestChain_HandlerErrorContinues(t *testing.T) {
	c := NewChain()
	ran := false

	c.Register(EventExpandPost, func(_ context.Context, _ *Context) error {
		return errors.New("boom")
	})
	c.Register(EventExpandPost, func(_ context.Context, _ *Context) error {
		ran = true
		return nil
	})

	c.Emit(context.Background(), EventExpandPost, map[string]interface{}{})
	if !ran {
		t.Error("handler after a failing one did not run")
	}
}

func TestChain_Unregister(t *testing.T) {
	c := NewChain()
	ran := false
	id := c.Register(EventExpandPost, func(_ context.Context, _ *Context) error {
		ran = true
		return nil
	})
	c.Unregister(id)
	c.Emit(context.Background(), EventExpandPost, map[string]interface{}{})
	if ran {
		t.Error("unregistered handler ran")
	}
}

func TestChain_EventIsolation(t *testing.T) {
	c := NewChain()
	ran := false
	c.Register(EventSearchRefsPost, func(_ context.Context, _ *Context) error {
		ran = true
		return nil
	})
	c.Emit(context.Background(), EventExpandPost, map[string]interface{}{})
	if ran {
		t.Error("handler ran for the wrong event")
	}
}
