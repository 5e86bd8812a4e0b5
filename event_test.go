package petalstream

import (
	"errors"
	"strconv"
	"testing"
)

func TestEvent_Constructors(t *testing.T) {
	t.Run("value", func(t *testing.T) {
		ev := Value(42)
		if !ev.IsValue() || ev.IsTerminal() {
			t.Fatalf("expected value event, got %v", ev)
		}
		v, err := ev.Get()
		if err != nil || v != 42 {
			t.Errorf("expected (42, nil), got (%d, %v)", v, err)
		}
		if ev.Reason() != nil {
			t.Errorf("expected nil reason, got %v", ev.Reason())
		}
	})

	t.Run("completion", func(t *testing.T) {
		ev := Completion[int]()
		if !ev.IsTerminal() || !ev.IsCompletion() {
			t.Fatalf("expected completion, got %v", ev)
		}
		if ev.Err() != nil {
			t.Errorf("expected nil Err for completion, got %v", ev.Err())
		}
		if _, err := ev.Get(); !errors.Is(err, ErrStreamCompleted) {
			t.Errorf("expected ErrStreamCompleted from Get, got %v", err)
		}
	})

	t.Run("error", func(t *testing.T) {
		boom := errors.New("boom")
		ev := Error[int](boom)
		if !ev.IsTerminal() || ev.IsCompletion() {
			t.Fatalf("expected error terminal, got %v", ev)
		}
		if !errors.Is(ev.Err(), boom) {
			t.Errorf("expected boom, got %v", ev.Err())
		}
	})

	t.Run("nil error is completion", func(t *testing.T) {
		if ev := Error[int](nil); !ev.IsCompletion() {
			t.Errorf("expected completion, got %v", ev)
		}
	})
}

func TestEvent_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Event[any]
		want bool
	}{
		{"same values", Value[any](1), Value[any](1), true},
		{"different values", Value[any](1), Value[any](2), false},
		{"value and terminal", Value[any](1), Completion[any](), false},
		{"completions", Completion[any](), Completion[any](), true},
		{"errors with same text", Error[any](errors.New("x")), Error[any](errors.New("x")), true},
		{"errors with different text", Error[any](errors.New("x")), Error[any](errors.New("y")), false},
		{"incomparable values", Value[any]([]int{1}), Value[any]([]int{1}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMapEvent(t *testing.T) {
	itoa := func(v int) (string, error) { return strconv.Itoa(v), nil }

	if got := MapEvent(Value(7), itoa); !got.Equal(Value("7")) {
		t.Errorf("expected value(7), got %v", got)
	}
	if got := MapEvent(Completion[int](), itoa); !got.IsCompletion() {
		t.Errorf("expected completion to pass through, got %v", got)
	}

	boom := errors.New("boom")
	failing := func(int) (string, error) { return "", boom }
	if got := MapEvent(Value(1), failing); !errors.Is(got.Err(), boom) {
		t.Errorf("expected transform error, got %v", got)
	}
}

func TestFlatMapEvent(t *testing.T) {
	half := func(v int) Event[int] {
		if v%2 != 0 {
			return Error[int](errors.New("odd"))
		}
		return Value(v / 2)
	}

	if got := FlatMapEvent(Value(4), half); !got.Equal(Value(2)) {
		t.Errorf("expected value(2), got %v", got)
	}
	if got := FlatMapEvent(Value(3), half); got.Err() == nil {
		t.Errorf("expected error, got %v", got)
	}
	boom := errors.New("boom")
	if got := FlatMapEvent(Error[int](boom), half); !errors.Is(got.Err(), boom) {
		t.Errorf("expected boom to pass through, got %v", got)
	}
}

func TestEvent_String(t *testing.T) {
	if got := Value(3).String(); got != "value(3)" {
		t.Errorf("got %q", got)
	}
	if got := Completion[int]().String(); got != "completed" {
		t.Errorf("got %q", got)
	}
	if got := Error[int](errors.New("bad")).String(); got != "error(bad)" {
		t.Errorf("got %q", got)
	}
}
