package future

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/petal-labs/petalstream"
)

func TestFrom(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		stream  func() petalstream.Stream[int64]
		want    int64
		wantErr error
	}{
		{
			name:   "first value",
			stream: func() petalstream.Stream[int64] { return petalstream.Range(5, 3) },
			want:   5,
		},
		{
			name:    "empty stream",
			stream:  func() petalstream.Stream[int64] { return petalstream.Range(0, 0) },
			wantErr: ErrNoValue,
		},
		{
			name: "error",
			stream: func() petalstream.Stream[int64] {
				return petalstream.NewOnRequestStream(func(int64) (int64, error) { return 0, boom })
			},
			wantErr: boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.stream()
			if o, ok := s.(*petalstream.OnRequestStream[int64]); ok {
				o.Start()
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			got, err := From(s).Get(ctx)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestFuture_ReleasesStreamAfterValue(t *testing.T) {
	box := petalstream.NewPostBox[string]()
	f := From[string](box)

	if got := box.Pending(); got != 1 {
		t.Fatalf("expected demand 1, got %d", got)
	}
	box.Post("hello")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := f.Get(ctx)
	if err != nil || got != "hello" {
		t.Fatalf("expected (hello, nil), got (%q, %v)", got, err)
	}

	box.Queue().Sync(func() {})
	if got := box.Pending(); got != 0 {
		t.Errorf("expected no demand left, got %d", got)
	}
}

func TestFuture_GetHonoursContext(t *testing.T) {
	box := petalstream.NewPostBox[int]()
	f := From[int](box)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestFuture_Cancel(t *testing.T) {
	box := petalstream.NewPostBox[int]()
	f := From[int](box)

	f.Cancel()
	f.Cancel()

	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a cancelled future to resolve")
	}
	if _, err := f.Get(context.Background()); !errors.Is(err, petalstream.ErrObserverRemoved) {
		t.Errorf("expected ErrObserverRemoved, got %v", err)
	}

	box.Queue().Sync(func() {})
	if got := box.Pending(); got != 0 {
		t.Errorf("expected demand released, got %d", got)
	}
}
