package pipeline

import (
	"fmt"
	"slices"

	"github.com/petal-labs/petalstream/timer"
)

var (
	mapFns     = []string{"add", "sub", "mul"}
	filterFns  = []string{"even", "odd", "gt", "lt"}
	reduceFns  = []string{"sum", "min", "max"}
	sortOrders = []string{"", "none", "asc", "desc"}
)

// Validate checks a definition and returns every problem found:
//   - PL-001: missing pipeline name (warning)
//   - PL-002: unknown source kind
//   - PL-003: invalid source parameter
//   - PL-004: unknown step operation
//   - PL-005: invalid step parameter
//   - PL-006: unbounded tick source (warning)
//   - PL-007: negative buffer
func Validate(def *Definition) []Diagnostic {
	var diags []Diagnostic

	if def.Name == "" {
		diags = append(diags, Diagnostic{
			Code:     "PL-001",
			Severity: SeverityWarning,
			Message:  "Pipeline has no name",
			Path:     "name",
		})
	}

	if def.Buffer < 0 {
		diags = append(diags, Diagnostic{
			Code:     "PL-007",
			Severity: SeverityError,
			Message:  fmt.Sprintf("Buffer must not be negative, got %d", def.Buffer),
			Path:     "buffer",
		})
	}

	diags = append(diags, validateSource(def.Source)...)

	limited := false
	for i, step := range def.Steps {
		if step.Op == OpLimit {
			limited = true
		}
		diags = append(diags, validateStep(i, step)...)
	}

	if isTickSource(def.Source.Kind) && def.Source.Count <= 0 && !limited {
		diags = append(diags, Diagnostic{
			Code:     "PL-006",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Source %q has no count and no limit step, the pipeline runs until interrupted", def.Source.Kind),
			Path:     "source.count",
		})
	}

	return diags
}

func isTickSource(kind string) bool {
	return kind == SourceTimer || kind == SourceCron
}

func validateSource(src Source) []Diagnostic {
	invalid := func(field, format string, args ...any) Diagnostic {
		return Diagnostic{
			Code:     "PL-003",
			Severity: SeverityError,
			Message:  fmt.Sprintf(format, args...),
			Path:     "source." + field,
		}
	}

	var diags []Diagnostic
	if src.Count < 0 {
		diags = append(diags, invalid("count", "Source count must not be negative, got %d", src.Count))
	}

	switch src.Kind {
	case SourceRange:
	case SourceTimer:
		if src.Interval <= 0 {
			diags = append(diags, invalid("interval", "Timer interval must be positive, got %v", src.Interval))
		}
	case SourceCron:
		if _, err := timer.ParseCron(src.Schedule); err != nil {
			diags = append(diags, invalid("schedule", "Cron schedule %q: %v", src.Schedule, err))
		}
	default:
		diags = append(diags, Diagnostic{
			Code:     "PL-002",
			Severity: SeverityError,
			Message:  fmt.Sprintf("Unknown source kind %q", src.Kind),
			Path:     "source.kind",
		})
	}
	return diags
}

func validateStep(i int, step Step) []Diagnostic {
	path := fmt.Sprintf("steps[%d]", i)
	invalid := func(field, format string, args ...any) Diagnostic {
		return Diagnostic{
			Code:     "PL-005",
			Severity: SeverityError,
			Message:  fmt.Sprintf("Step %d (%s): %s", i, step.Op, fmt.Sprintf(format, args...)),
			Path:     path + "." + field,
			Line:     step.Line,
		}
	}
	oneOf := func(field, value string, allowed []string) []Diagnostic {
		if slices.Contains(allowed, value) {
			return nil
		}
		return []Diagnostic{invalid(field, "unknown %s %q, want one of %v", field, value, allowed)}
	}

	switch step.Op {
	case OpMap:
		return oneOf("fn", step.Fn, mapFns)
	case OpFilter:
		return oneOf("fn", step.Fn, filterFns)
	case OpReduce:
		return oneOf("fn", step.Fn, reduceFns)
	case OpCoalesce:
		return oneOf("order", step.Order, sortOrders)
	case OpSkip, OpLimit:
		if step.Count < 0 {
			return []Diagnostic{invalid("count", "count must not be negative, got %d", step.Count)}
		}
	case OpSplit:
		if step.Branches < 1 {
			return []Diagnostic{invalid("branches", "branches must be at least 1, got %d", step.Branches)}
		}
	case OpFlatMap:
		if step.Repeat < 1 {
			return []Diagnostic{invalid("repeat", "repeat must be at least 1, got %d", step.Repeat)}
		}
	case OpCount, OpPaused:
	default:
		return []Diagnostic{{
			Code:     "PL-004",
			Severity: SeverityError,
			Message:  fmt.Sprintf("Step %d: unknown operation %q", i, step.Op),
			Path:     path + ".op",
			Line:     step.Line,
		}}
	}
	return nil
}
