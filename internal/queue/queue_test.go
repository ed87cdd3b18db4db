package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"clan-tracker/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
)

func newTestQueue(t *testing.T, name string) *Queue {
	t.Helper()

	mini := miniredis.RunT(t)
	cfg := &config.Config{RedisAddr: mini.Addr()}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	q := New(client, name, zerolog.Nop())
	t.Cleanup(q.Close)
	return q
}

func TestQueueFIFO(t *testing.T) {
	q := newTestQueue(t, "test")
	ctx := context.Background()

	for _, item := range []string{"first", "second", "third"} {
		if err := q.Put(ctx, []byte(item)); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}

	size, err := q.Size(ctx)
	if err != nil {
		t.Fatalf("size failed: %v", err)
	}
	if size != 3 {
		t.Fatalf("size = %d, want 3", size)
	}

	for _, want := range []string{"first", "second", "third"} {
		got, err := q.Get(ctx, false, 0)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if string(got) != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}

	empty, err := q.Empty(ctx)
	if err != nil {
		t.Fatalf("empty failed: %v", err)
	}
	if !empty {
		t.Error("queue should be empty after draining")
	}
}

func TestQueueGetEmpty(t *testing.T) {
	q := newTestQueue(t, "test")

	if _, err := q.Get(context.Background(), false, 0); !errors.Is(err, ErrEmpty) {
		t.Fatalf("err = %v, want ErrEmpty", err)
	}
}

func TestQueueBlockingGetReturnsQueuedItem(t *testing.T) {
	q := newTestQueue(t, "test")
	ctx := context.Background()

	if err := q.Put(ctx, []byte("ready")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := q.Get(ctx, true, 5*time.Second)
	if err != nil {
		t.Fatalf("blocking get failed: %v", err)
	}
	if string(got) != "ready" {
		t.Errorf("got %q, want %q", got, "ready")
	}
}

func TestJobRoundTrip(t *testing.T) {
	q := newTestQueue(t, "test")
	ctx := context.Background()

	in := ProcessingJob{
		MembershipID:   "4611686018467260709",
		MembershipType: 3,
		CharacterID:    "2305843009301040747",
		Mode:           5,
		MatchID:        13946829228,
	}
	if err := PutJSON(ctx, q, in); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	out, err := GetJSON[ProcessingJob](ctx, q, time.Second)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if *out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", *out, in)
	}
}

func TestQueuesShareOneConnection(t *testing.T) {
	mini := miniredis.RunT(t)
	cfg := &config.Config{RedisAddr: mini.Addr()}

	queues, err := NewQueues(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create queues: %v", err)
	}
	t.Cleanup(queues.Close)

	ctx := context.Background()
	if err := queues.Discovery.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	// The two queues are distinct lists on one server.
	if err := PutJSON(ctx, queues.Discovery, DiscoveryJob{MembershipID: "1", MembershipType: 3, Mode: 5}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	empty, err := queues.Matches.Empty(ctx)
	if err != nil {
		t.Fatalf("empty failed: %v", err)
	}
	if !empty {
		t.Error("discovery job must not appear on the matches queue")
	}

	job, err := GetJSON[DiscoveryJob](ctx, queues.Discovery, time.Second)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if job.MembershipID != "1" {
		t.Errorf("membership id = %q", job.MembershipID)
	}
}
