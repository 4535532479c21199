package plugin

import (
	"context"
	"fmt"
	"testing"

	"github.com/perchrun/perch/internal/collect"
	"github.com/perchrun/perch/internal/match"
)

type stubPlugin struct {
	prefix  string
	initErr error
	inited  bool
}

func (s *stubPlugin) Prefix() string { return s.prefix }
func (s *stubPlugin) Actions() []Action {
	return []Action{DefaultAction("Run", "run")}
}
func (s *stubPlugin) Init(context.Context) error {
	s.inited = true
	return s.initErr
}
func (s *stubPlugin) Handle(context.Context, collect.Data, string) (Effect, error) {
	return Effect{}, nil
}
func (s *stubPlugin) GetForValues(context.Context, *match.Input, *collect.TaggedSink) {}

func TestRegistryOrderIsDispatchOrder(t *testing.T) {
	r := NewRegistry()
	for _, prefix := range []string{"control", "roll", "calc"} {
		if err := r.Add(&stubPlugin{prefix: prefix}); err != nil {
			t.Fatalf("add %s: %v", prefix, err)
		}
	}

	if r.Len() != 3 {
		t.Fatalf("len = %d, want 3", r.Len())
	}
	if len(r.Runners()) != 3 {
		t.Fatalf("runners = %d, want 3", len(r.Runners()))
	}

	p, ok := r.At(1)
	if !ok || p.Prefix() != "roll" {
		t.Fatalf("At(1) = %v/%v, want roll", p, ok)
	}
	if _, ok := r.At(3); ok {
		t.Fatal("At(3) should be out of range")
	}
	if _, ok := r.At(-1); ok {
		t.Fatal("At(-1) should be out of range")
	}
}

func TestRegistryRejectsDuplicatePrefix(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(&stubPlugin{prefix: "roll"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(&stubPlugin{prefix: "roll"}); err == nil {
		t.Fatal("duplicate prefix accepted")
	}
}

func TestRegistryGetByPrefix(t *testing.T) {
	r := NewRegistry()
	stub := &stubPlugin{prefix: "file"}
	if err := r.Add(stub); err != nil {
		t.Fatal(err)
	}

	got, ok := r.Get("file")
	if !ok || got != Plugin(stub) {
		t.Fatalf("Get(file) = %v/%v", got, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("Get(missing) should fail")
	}
}

func TestInitFailureDoesNotAbortOthers(t *testing.T) {
	r := NewRegistry()
	bad := &stubPlugin{prefix: "bad", initErr: fmt.Errorf("boom")}
	good := &stubPlugin{prefix: "good"}
	if err := r.Add(bad); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(good); err != nil {
		t.Fatal(err)
	}

	r.Init(context.Background())

	if !bad.inited || !good.inited {
		t.Fatalf("inited = %v/%v, want both", bad.inited, good.inited)
	}
}
