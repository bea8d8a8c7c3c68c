package authkit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, nil)
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), AuditEvent{EventType: AuditLoginSuccess})
	d.Close()
	if got := d.Dropped(); got != 0 {
		t.Fatalf("expected 0 dropped on nil dispatcher, got %d", got)
	}
}

func TestDispatcherDeliversToSink(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: AuditLoginSuccess})
	}
	d.Close()

	if got := sink.count.Load(); got != 5 {
		t.Fatalf("expected 5 delivered, got %d", got)
	}
}

type blockingSink struct {
	gate chan struct{}
}

func (s *blockingSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{gate: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// First event occupies the worker, the second fills the buffer; more
	// must be counted as dropped rather than blocking this goroutine.
	deadline := time.After(2 * time.Second)
	for d.Dropped() == 0 {
		d.Emit(context.Background(), AuditEvent{EventType: AuditLoginFailure})
		select {
		case <-deadline:
			t.Fatal("no drops recorded")
		default:
		}
	}

	close(sink.gate)
	d.Close()
}

func TestDispatcherCloseFlushesBuffer(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 20; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: AuditPhoneChallengeIssued})
	}
	d.Close()

	if got := sink.count.Load(); got != 20 {
		t.Fatalf("expected 20 after flush, got %d", got)
	}
}

func TestChannelSinkDelivers(t *testing.T) {
	sink := NewChannelSink(4)
	sink.Emit(context.Background(), AuditEvent{EventType: AuditLogout, Success: true})

	select {
	case ev := <-sink.Events():
		if ev.EventType != AuditLogout {
			t.Fatalf("unexpected event type %q", ev.EventType)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}
