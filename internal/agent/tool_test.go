package agent

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{})

	tool, ok := r.Get("echo")
	if !ok {
		t.Fatal("expected echo tool to be registered")
	}
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if out != `echoed: {"a":1}` {
		t.Errorf("out = %q", out)
	}
}

func TestRegistry_GetMissingReturnsFalse(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("nope"); ok {
		t.Error("expected ok=false for an unregistered tool")
	}
}

func TestRegistry_RegisterOverwritesSameName(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{})
	r.Register(echoTool{})

	defs := r.Definitions()
	if len(defs) != 1 {
		t.Errorf("expected re-registering the same name to overwrite, got %d definitions", len(defs))
	}
}

func TestRegistry_Definitions(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{})
	r.Register(failingTool{})

	defs := r.Definitions()
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	names := map[string]bool{}
	for _, d := range defs {
		names[d.Name] = true
		if d.Description == "" {
			t.Errorf("definition %s missing description", d.Name)
		}
	}
	if !names["echo"] || !names["boom"] {
		t.Errorf("expected both tool names present, got %+v", names)
	}
}
