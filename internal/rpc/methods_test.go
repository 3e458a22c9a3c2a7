package rpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/tron-run/tron/internal/apperr"
)

func TestRegistry_DispatchUnknownMethodReturnsInvalidInput(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dispatch(context.Background(), "nope.nope", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error for unknown method")
	}
	if apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("expected KindInvalidInput, got %v", apperr.KindOf(err))
	}
}

func TestRegistry_DispatchNilParamsBecomesEmptyObject(t *testing.T) {
	r := NewRegistry()
	var seen json.RawMessage
	r.Register("echo", func(ctx context.Context, raw json.RawMessage) (any, error) {
		seen = raw
		return "ok", nil
	})
	result, err := r.Dispatch(context.Background(), "echo", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("unexpected result: %v", result)
	}
	if string(seen) != "{}" {
		t.Fatalf("expected empty object for nil params, got %q", seen)
	}
}

func TestRegistry_MethodsReturnsSortedNames(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, raw json.RawMessage) (any, error) { return nil, nil }
	r.Register("zeta.do", noop)
	r.Register("alpha.do", noop)
	r.Register("mid.do", noop)

	got := r.Methods()
	want := []string{"alpha.do", "mid.do", "zeta.do"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRegistry_RegisterOverwritesExistingMethod(t *testing.T) {
	r := NewRegistry()
	r.Register("m", func(ctx context.Context, raw json.RawMessage) (any, error) { return "first", nil })
	r.Register("m", func(ctx context.Context, raw json.RawMessage) (any, error) { return "second", nil })

	result, err := r.Dispatch(context.Background(), "m", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "second" {
		t.Fatalf("expected second registration to win, got %v", result)
	}
}

func TestRequireString_EmptyValueErrors(t *testing.T) {
	err := requireString("sessionId", "")
	if err == nil {
		t.Fatal("expected error for empty value")
	}
	if apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("expected KindInvalidInput, got %v", apperr.KindOf(err))
	}
}

func TestDecodeParams_InvalidJSONReturnsInvalidInput(t *testing.T) {
	var dst struct{ X int }
	err := decodeParams(json.RawMessage(`not json`), &dst)
	if err == nil {
		t.Fatal("expected error")
	}
	if apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("expected KindInvalidInput, got %v", apperr.KindOf(err))
	}
}
