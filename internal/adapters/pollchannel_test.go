package adapters

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go2tv.app/uniremote/internal/domain"
)

type recorder struct {
	mu    sync.Mutex
	found []string
	lost  []string
}

func (r *recorder) onFound(rc domain.Receiver) {
	r.mu.Lock()
	r.found = append(r.found, rc.ID)
	r.mu.Unlock()
}

func (r *recorder) onLost(rc domain.Receiver) {
	r.mu.Lock()
	r.lost = append(r.lost, rc.ID)
	r.mu.Unlock()
}

func TestDiffReceiversEmitsFoundAndLost(t *testing.T) {
	rec := &recorder{}
	known := diffReceivers(map[string]domain.Receiver{}, []domain.Receiver{{ID: "a"}, {ID: "b"}, {ID: ""}}, rec.onFound, rec.onLost)
	known = diffReceivers(known, []domain.Receiver{{ID: "b"}, {ID: "c"}}, rec.onFound, rec.onLost)

	if len(known) != 2 {
		t.Fatalf("expected two known receivers, got %v", known)
	}
	if got := len(rec.found); got != 3 {
		t.Fatalf("expected found a,b,c got %v", rec.found)
	}
	if len(rec.lost) != 1 || rec.lost[0] != "a" {
		t.Fatalf("expected a lost, got %v", rec.lost)
	}
}

func TestPollChannelStartStop(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	snapshots := [][]domain.Receiver{
		{{ID: "tv-1", FriendlyName: "Fire TV Stick"}},
		{},
	}
	ch := NewPollChannel("test", 5*time.Millisecond, func(context.Context) ([]domain.Receiver, error) {
		mu.Lock()
		defer mu.Unlock()
		idx := calls
		calls++
		if idx >= len(snapshots) {
			return nil, errors.New("source gone")
		}
		return snapshots[idx], nil
	}, nil)

	rec := &recorder{}
	if err := ch.Start(context.Background(), rec.onFound, rec.onLost); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := ch.Start(context.Background(), rec.onFound, rec.onLost); err == nil {
		t.Fatal("expected second start to fail")
	}

	deadline := time.Now().Add(time.Second)
	for {
		rec.mu.Lock()
		lost := len(rec.lost)
		rec.mu.Unlock()
		if lost == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := ch.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := ch.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.found) != 1 || len(rec.lost) != 1 {
		t.Fatalf("expected one found and one lost, got %v / %v", rec.found, rec.lost)
	}
}
