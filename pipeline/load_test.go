package pipeline

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testdataPath(name string) string {
	return filepath.Join("testdata", name)
}

func TestLoad_YAML(t *testing.T) {
	def, diags, err := Load(testdataPath("evens.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(diags) != 0 {
		t.Errorf("expected no diagnostics, got %v", diags)
	}
	if def.Name != "evens" {
		t.Errorf("Name = %q, want %q", def.Name, "evens")
	}
	if def.Buffer != 4 {
		t.Errorf("Buffer = %d, want 4", def.Buffer)
	}
	if def.Source.Kind != SourceRange || def.Source.Start != 1 || def.Source.Count != 10 {
		t.Errorf("unexpected source %+v", def.Source)
	}
	if len(def.Steps) != 2 {
		t.Fatalf("Steps count = %d, want 2", len(def.Steps))
	}
	if def.Steps[1].Op != OpMap || def.Steps[1].Fn != "mul" || def.Steps[1].Value != 3 {
		t.Errorf("unexpected step %+v", def.Steps[1])
	}
	if def.Steps[0].Line != 8 || def.Steps[1].Line != 10 {
		t.Errorf("step lines = %d, %d, want 8, 10", def.Steps[0].Line, def.Steps[1].Line)
	}
}

func TestLoad_Duration(t *testing.T) {
	def, _, err := Load(testdataPath("ticks.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if def.Source.Interval != 5*time.Millisecond {
		t.Errorf("Interval = %v, want 5ms", def.Source.Interval)
	}
}

func TestLoad_JSON(t *testing.T) {
	def, _, err := Load(testdataPath("pipeline.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if def.Name != "json" || len(def.Steps) != 1 || def.Steps[0].Fn != "sum" {
		t.Errorf("unexpected definition %+v", def)
	}
}

func TestLoad_Invalid(t *testing.T) {
	_, diags, err := Load(testdataPath("invalid.yaml"))
	if err == nil {
		t.Fatal("expected error for invalid pipeline")
	}

	var diagErr *DiagnosticError
	if !errors.As(err, &diagErr) {
		t.Fatalf("expected *DiagnosticError, got %T", err)
	}
	if got := len(Errors(diags)); got != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", got, diags)
	}
	if diags[0].Code != "PL-004" || diags[0].Line != 8 {
		t.Errorf("expected PL-004 on line 8, got %+v", diags[0])
	}
	if diags[1].Code != "PL-005" || diags[1].Path != "steps[2].fn" {
		t.Errorf("expected PL-005 at steps[2].fn, got %+v", diags[1])
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, _, err := Load(testdataPath("missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"malformed", "name: [unclosed"},
		{"wrong type", "steps: 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Errorf("expected error for %q", tt.data)
			}
		})
	}
}
