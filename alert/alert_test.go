// Copyright (c) 2025 BVK Chaitanya

package alert

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bvk/orbtrader/journal"
	"github.com/visvasity/topic"
)

type fakeNotifier struct {
	mu   sync.Mutex
	err  error
	msgs []string
}

func (f *fakeNotifier) Name() string { return "fake" }

func (f *fakeNotifier) SendMessage(ctx context.Context, at time.Time, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.err
}

func (f *fakeNotifier) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.msgs...)
}

func TestMulti(t *testing.T) {
	a, b := new(fakeNotifier), &fakeNotifier{err: errors.New("offline")}
	err := Multi{a, b}.SendMessage(context.Background(), time.Now(), "hello")
	if err == nil || !strings.Contains(err.Error(), "fake: offline") {
		t.Fatalf("want the joined error, got %v", err)
	}
	if len(a.messages()) != 1 || len(b.messages()) != 1 {
		t.Fatalf("want the message on every notifier")
	}
}

func TestWatch(t *testing.T) {
	transitions := topic.New[*journal.Transition]()
	faults := topic.New[error]()

	tr, err := topic.Subscribe(transitions, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	fr, err := topic.Subscribe(faults, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	defer fr.Close()

	n := new(fakeNotifier)
	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { done <- Watch(ctx, n, tr, fr) }()

	transitions.Send(&journal.Transition{Seq: 1, From: "Connecting", To: "AwaitingRange"})
	transitions.Send(&journal.Transition{Seq: 2, From: "AnalyzingGex", To: "ExecutingTrade", Reason: "gex strike is 5010"})
	faults.Send(errors.New("late event"))

	deadline := time.Now().Add(2 * time.Second)
	for len(n.messages()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("want two alerts, got %v", n.messages())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("want watch to return after cancel")
	}

	var sawTrade, sawFault bool
	for _, m := range n.messages() {
		if m == "AnalyzingGex -> ExecutingTrade: gex strike is 5010" {
			sawTrade = true
		}
		if m == "gateway fault: late event" {
			sawFault = true
		}
		if strings.Contains(m, "AwaitingRange") {
			t.Fatalf("want waiting states filtered, got %q", m)
		}
	}
	if !sawTrade || !sawFault {
		t.Fatalf("unexpected alerts: %v", n.messages())
	}
}
