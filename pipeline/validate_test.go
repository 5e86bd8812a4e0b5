package pipeline

import (
	"testing"
	"time"
)

func codes(diags []Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Code
	}
	return out
}

func TestValidate(t *testing.T) {
	rangeSrc := Source{Kind: SourceRange, Count: 10}

	tests := []struct {
		name      string
		def       Definition
		wantCodes []string
		wantErr   bool
	}{
		{
			name: "valid",
			def:  Definition{Name: "ok", Source: rangeSrc, Steps: []Step{{Op: OpFilter, Fn: "odd"}, {Op: OpCount}}},
		},
		{
			name:      "missing name",
			def:       Definition{Source: rangeSrc},
			wantCodes: []string{"PL-001"},
		},
		{
			name:      "unknown source",
			def:       Definition{Name: "x", Source: Source{Kind: "kafka"}},
			wantCodes: []string{"PL-002"},
			wantErr:   true,
		},
		{
			name:      "negative source count",
			def:       Definition{Name: "x", Source: Source{Kind: SourceRange, Count: -1}},
			wantCodes: []string{"PL-003"},
			wantErr:   true,
		},
		{
			name:      "timer without interval",
			def:       Definition{Name: "x", Source: Source{Kind: SourceTimer, Count: 1}},
			wantCodes: []string{"PL-003"},
			wantErr:   true,
		},
		{
			name:      "bad cron",
			def:       Definition{Name: "x", Source: Source{Kind: SourceCron, Schedule: "TZ=UTC * * * * *", Count: 1}},
			wantCodes: []string{"PL-003"},
			wantErr:   true,
		},
		{
			name:      "unbounded timer",
			def:       Definition{Name: "x", Source: Source{Kind: SourceTimer, Interval: time.Second}},
			wantCodes: []string{"PL-006"},
		},
		{
			name: "timer bounded by limit",
			def: Definition{Name: "x", Source: Source{Kind: SourceTimer, Interval: time.Second},
				Steps: []Step{{Op: OpLimit, Count: 3}}},
		},
		{
			name:      "unknown op",
			def:       Definition{Name: "x", Source: rangeSrc, Steps: []Step{{Op: "window"}}},
			wantCodes: []string{"PL-004"},
			wantErr:   true,
		},
		{
			name: "invalid step parameters",
			def: Definition{Name: "x", Source: rangeSrc, Steps: []Step{
				{Op: OpMap, Fn: "div"},
				{Op: OpSkip, Count: -2},
				{Op: OpSplit},
				{Op: OpFlatMap},
				{Op: OpReduce, Fn: "avg"},
				{Op: OpCoalesce, Order: "random"},
			}},
			wantCodes: []string{"PL-005", "PL-005", "PL-005", "PL-005", "PL-005", "PL-005"},
			wantErr:   true,
		},
		{
			name:      "negative buffer",
			def:       Definition{Name: "x", Buffer: -1, Source: rangeSrc},
			wantCodes: []string{"PL-007"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := Validate(&tt.def)
			got := codes(diags)
			if len(got) != len(tt.wantCodes) {
				t.Fatalf("codes = %v, want %v", got, tt.wantCodes)
			}
			for i := range got {
				if got[i] != tt.wantCodes[i] {
					t.Errorf("codes = %v, want %v", got, tt.wantCodes)
					break
				}
			}
			if HasErrors(diags) != tt.wantErr {
				t.Errorf("HasErrors = %v, want %v", HasErrors(diags), tt.wantErr)
			}
		})
	}
}

func TestDiagnosticError(t *testing.T) {
	single := &DiagnosticError{Diagnostics: []Diagnostic{
		{Code: "PL-001", Severity: SeverityWarning, Message: "warn"},
		{Code: "PL-004", Severity: SeverityError, Message: "bad op"},
	}}
	if got := single.Error(); got != "validation error: bad op" {
		t.Errorf("Error() = %q", got)
	}

	multi := &DiagnosticError{Diagnostics: []Diagnostic{
		{Code: "PL-004", Severity: SeverityError, Message: "first"},
		{Code: "PL-005", Severity: SeverityError, Message: "second"},
	}}
	if got := multi.Error(); got != "2 validation errors (first: first)" {
		t.Errorf("Error() = %q", got)
	}

	if got := len(Warnings(single.Diagnostics)); got != 1 {
		t.Errorf("Warnings() = %d, want 1", got)
	}
}
