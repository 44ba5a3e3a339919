package tool

import (
	"context"
	"reflect"
	"testing"
)

func echoHandler(ctx context.Context, req Request) (any, error) {
	return req.Params, nil
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(Registration{Name: "echo", Handler: HandlerFunc(echoHandler)})

	reg, ok := r.Lookup("echo")
	if !ok {
		t.Fatal("Lookup(echo) = false, want true")
	}
	out, err := reg.Handler.Invoke(context.Background(), Request{Params: map[string]any{"x": "y"}})
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if m, ok := out.(map[string]any); !ok || m["x"] != "y" {
		t.Errorf("Invoke = %v, want params echoed", out)
	}

	if _, ok := r.Lookup("missing"); ok {
		t.Error("Lookup(missing) = true, want false")
	}
}

func TestRegisterDefaultsPredicates(t *testing.T) {
	r := NewRegistry()
	r.Register(Registration{Name: "plain", Handler: HandlerFunc(echoHandler)})

	reg, _ := r.Lookup("plain")
	required, _, err := reg.RequiresApproval(context.Background(), Request{})
	if err != nil {
		t.Fatalf("RequiresApproval error: %v", err)
	}
	if required {
		t.Error("nil approval predicate should default to never")
	}
	violations, _, err := reg.Check(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("nil check should default to no violations, got %v", violations)
	}
}

func TestAlwaysRequiresApproval(t *testing.T) {
	pred := AlwaysRequiresApproval("dangerous")
	required, reason, err := pred(context.Background(), Request{})
	if err != nil {
		t.Fatalf("predicate error: %v", err)
	}
	if !required || reason != "dangerous" {
		t.Errorf("predicate = (%v, %q), want (true, dangerous)", required, reason)
	}
}

func TestNames(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		r.Register(Registration{Name: name, Handler: HandlerFunc(echoHandler)})
	}

	want := []string{"alpha", "mid", "zeta"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
}

func TestRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	r.Register(Registration{Name: "t", Handler: HandlerFunc(echoHandler)})
	r.Register(Registration{
		Name:             "t",
		Handler:          HandlerFunc(echoHandler),
		RequiresApproval: AlwaysRequiresApproval("now gated"),
	})

	reg, _ := r.Lookup("t")
	required, _, _ := reg.RequiresApproval(context.Background(), Request{})
	if !required {
		t.Error("re-registration should replace the approval predicate")
	}
	if len(r.Names()) != 1 {
		t.Errorf("Names = %v, want one entry", r.Names())
	}
}

func TestStringParam(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]any
		key     string
		want    string
		wantErr bool
	}{
		{"present", map[string]any{"path": "/x"}, "path", "/x", false},
		{"missing", map[string]any{}, "path", "", true},
		{"empty", map[string]any{"path": ""}, "path", "", true},
		{"wrong type", map[string]any{"path": 42}, "path", "", true},
		{"nil params", nil, "path", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StringParam(tt.params, tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("StringParam error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("StringParam = %q, want %q", got, tt.want)
			}
		})
	}
}
