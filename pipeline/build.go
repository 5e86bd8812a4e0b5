package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/petal-labs/petalstream"
	"github.com/petal-labs/petalstream/bus"
	"github.com/petal-labs/petalstream/timer"
)

// ErrOverflow is the stream error of a map step whose result does not fit
// in an int64.
var ErrOverflow = errors.New("pipeline: integer overflow")

// Pipeline is a built definition. Nothing flows before Start.
type Pipeline struct {
	Name   string
	Buffer int
	Stream petalstream.Stream[int64]

	opts     []petalstream.Option
	starters []func()
	stoppers []func()
}

// Start starts tick sources and releases paused steps.
func (p *Pipeline) Start() {
	for _, start := range p.starters {
		start()
	}
}

// Stop stops tick sources. Range sources end on their own.
func (p *Pipeline) Stop() {
	for _, stop := range p.stoppers {
		stop()
	}
}

// Run subscribes to the pipeline through a consumer buffer, starts it and
// calls fn for every value until the stream ends, fn fails or ctx is done.
// Normal completion returns nil.
func (p *Pipeline) Run(ctx context.Context, fn func(int64) error) error {
	c := bus.Consume(p.Stream, p.Buffer)
	defer c.Close()

	p.Start()
	defer p.Stop()

	for v, err := range c.All(ctx) {
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

// Build creates the streams of def. opts configure the source stream;
// every step inherits its logger and observer.
func Build(def *Definition, opts ...petalstream.Option) (*Pipeline, error) {
	if diags := Validate(def); HasErrors(diags) {
		return nil, &DiagnosticError{Diagnostics: diags}
	}

	name := def.Name
	if name == "" {
		name = "pipeline"
	}
	p := &Pipeline{Name: name, Buffer: def.Buffer}

	srcOpts := append([]petalstream.Option{petalstream.WithName(name)}, opts...)
	s, err := p.buildSource(def.Source, srcOpts)
	if err != nil {
		return nil, err
	}

	p.opts = opts
	for i, step := range def.Steps {
		s = p.buildStep(s, i, step)
	}
	p.Stream = s
	return p, nil
}

func (p *Pipeline) buildSource(src Source, opts []petalstream.Option) (petalstream.Stream[int64], error) {
	var tm *timer.Timer
	switch src.Kind {
	case SourceRange:
		return petalstream.Range(src.Start, src.Count, opts...), nil
	case SourceTimer:
		tm = timer.New(src.Interval, opts...)
	case SourceCron:
		var err error
		if tm, err = timer.NewCron(src.Schedule, opts...); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown source kind %q", src.Kind)
	}

	p.starters = append(p.starters, func() { tm.Start() })
	p.stoppers = append(p.stoppers, tm.Stop)

	// Map runs on its own queue, so the counter needs no lock.
	n := src.Start
	var ticks petalstream.Stream[int64] = petalstream.Map(tm, func(time.Time) (int64, error) {
		v := n
		n++
		return v, nil
	})
	if src.Count > 0 {
		ticks = petalstream.Limit(ticks, src.Count)
	}
	return ticks, nil
}

func (p *Pipeline) buildStep(s petalstream.Stream[int64], i int, step Step) petalstream.Stream[int64] {
	switch step.Op {
	case OpMap:
		return petalstream.Map(s, arithmetic(step.Fn, step.Value))
	case OpFilter:
		return petalstream.Filter(s, predicate(step.Fn, step.Value))
	case OpSkip:
		return petalstream.Skip(s, step.Count)
	case OpLimit:
		return petalstream.Limit(s, step.Count)
	case OpReduce:
		return reduce(s, step.Fn)
	case OpCount:
		return petalstream.Map(petalstream.CountEvents(s), func(n int) (int64, error) {
			return int64(n), nil
		})
	case OpCoalesce:
		return coalesce(s, step.Order)
	case OpSplit:
		return p.fanOut(s, i, step, int64(step.Branches), func(in petalstream.Stream[int64]) petalstream.Stream[int64] {
			branches := petalstream.Split(in, step.Branches)
			streams := make([]petalstream.Stream[int64], len(branches))
			for i, b := range branches {
				streams[i] = b
			}
			if step.DelayErrors {
				return petalstream.MergeDelayingErrors(streams...)
			}
			return petalstream.Merge(streams...)
		})
	case OpFlatMap:
		repeat := step.Repeat
		transform := func(v int64) petalstream.Stream[int64] {
			return repeated(v, repeat)
		}
		return p.fanOut(s, i, step, repeat, func(in petalstream.Stream[int64]) petalstream.Stream[int64] {
			if step.DelayErrors {
				return petalstream.FlatMapDelayingErrors(in, transform)
			}
			return petalstream.FlatMap(in, transform)
		})
	case OpPaused:
		paused := petalstream.Paused(s)
		p.starters = append(p.starters, paused.Start)
		return paused
	default:
		// Unreachable after Validate.
		panic(fmt.Sprintf("pipeline: unknown operation %q", step.Op))
	}
}

// fanOut wraps a split or flatmap stage in a relay, so every value the
// stage emits reaches downstream however small the consumer buffer is.
func (p *Pipeline) fanOut(
	s petalstream.Stream[int64],
	i int,
	step Step,
	factor int64,
	build func(petalstream.Stream[int64]) petalstream.Stream[int64],
) petalstream.Stream[int64] {
	window := int64(p.Buffer)
	if window <= 0 {
		window = bus.DefaultBufferSize
	}
	name := fmt.Sprintf("%s.%s%d", p.Name, step.Op, i)
	r := newRelay(s, factor, window, name, p.opts, build)
	p.starters = append(p.starters, r.start)
	p.stoppers = append(p.stoppers, r.stop)
	return r.Stream()
}

func arithmetic(fn string, operand int64) func(int64) (int64, error) {
	return func(v int64) (int64, error) {
		var r int64
		switch fn {
		case "add":
			r = v + operand
			if (operand > 0 && r < v) || (operand < 0 && r > v) {
				return 0, fmt.Errorf("%d + %d: %w", v, operand, ErrOverflow)
			}
		case "sub":
			r = v - operand
			if (operand > 0 && r > v) || (operand < 0 && r < v) {
				return 0, fmt.Errorf("%d - %d: %w", v, operand, ErrOverflow)
			}
		case "mul":
			r = v * operand
			if v != 0 && (r/v != operand || (v == -1 && operand == math.MinInt64)) {
				return 0, fmt.Errorf("%d * %d: %w", v, operand, ErrOverflow)
			}
		}
		return r, nil
	}
}

func predicate(fn string, operand int64) func(int64) bool {
	switch fn {
	case "even":
		return func(v int64) bool { return v%2 == 0 }
	case "odd":
		return func(v int64) bool { return v%2 != 0 }
	case "gt":
		return func(v int64) bool { return v > operand }
	default: // "lt"
		return func(v int64) bool { return v < operand }
	}
}

func reduce(s petalstream.Stream[int64], fn string) petalstream.Stream[int64] {
	switch fn {
	case "sum":
		return petalstream.Reduce(s, int64(0), func(acc, v int64) (int64, error) {
			return arithmetic("add", v)(acc)
		})
	case "min":
		return extreme(s, func(a, b int64) bool { return a < b })
	default: // "max"
		return extreme(s, func(a, b int64) bool { return a > b })
	}
}

// extreme keeps the value for which better reports true against every
// other. An empty stream produces nothing.
func extreme(s petalstream.Stream[int64], better func(a, b int64) bool) petalstream.Stream[int64] {
	seen := false
	var best int64
	keep := petalstream.Map(s, func(v int64) (int64, error) {
		if !seen || better(v, best) {
			best, seen = v, true
		}
		return best, nil
	})
	return petalstream.Final(keep)
}

// coalesce collects the whole stream and re-emits it in the given order.
func coalesce(s petalstream.Stream[int64], order string) petalstream.Stream[int64] {
	batches := petalstream.Coalesce(s)
	return petalstream.FlatMap(batches, func(batch []int64) petalstream.Stream[int64] {
		switch order {
		case "asc":
			slices.Sort(batch)
		case "desc":
			slices.Sort(batch)
			slices.Reverse(batch)
		}
		return petalstream.FromSlice(batch)
	})
}

// repeated returns a started stream producing v n times.
func repeated(v, n int64) petalstream.Stream[int64] {
	s := petalstream.NewOnRequestStream(func(i int64) (int64, error) {
		if i >= n {
			return 0, petalstream.ErrStreamCompleted
		}
		return v, nil
	})
	s.Start()
	return s
}
