package websocket

import (
	"fmt"
	"testing"
)

func TestOutbox_KeepsOrderPastOldBufferSize(t *testing.T) {
	o := newOutbox()
	for i := 0; i < 5000; i++ {
		if !o.push([]byte(fmt.Sprint(i))) {
			t.Fatalf("push %d rejected", i)
		}
	}

	select {
	case <-o.wake:
	default:
		t.Fatal("expected a wake-up after push")
	}

	batch, closed := o.drain()
	if closed {
		t.Fatal("outbox should still be open")
	}
	if len(batch) != 5000 {
		t.Fatalf("expected 5000 frames, got %d", len(batch))
	}
	for i, frame := range batch {
		if string(frame) != fmt.Sprint(i) {
			t.Fatalf("frame %d out of order: %s", i, frame)
		}
	}
	if o.len() != 0 {
		t.Errorf("drain should empty the queue, %d left", o.len())
	}
}

func TestOutbox_RejectsWhenFullOrClosed(t *testing.T) {
	o := newOutbox()
	for i := 0; i < MaxPending; i++ {
		o.push(nil)
	}
	if o.push(nil) {
		t.Error("push beyond MaxPending should be rejected")
	}

	o.drain()
	o.push([]byte("last"))
	o.close()
	o.close()
	if o.push([]byte("late")) {
		t.Error("push after close should be rejected")
	}

	batch, closed := o.drain()
	if !closed {
		t.Error("drain should report the close")
	}
	if len(batch) != 1 || string(batch[0]) != "last" {
		t.Errorf("frames queued before close must survive, got %q", batch)
	}
}
