package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMarkedRoundTrip(t *testing.T) {
	msg, err := NewMarked("s-1")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != TypeAttendanceMarked {
		t.Fatalf("Type = %q", msg.Type)
	}
	m, err := DecodeMarked(msg)
	if err != nil {
		t.Fatalf("DecodeMarked() error = %v", err)
	}
	if m.SessionID != "s-1" {
		t.Errorf("SessionID = %q, want s-1", m.SessionID)
	}
}

func TestDecodeMarkedRejects(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"wrong type", Message{Type: "checkin", Body: []byte(`{"sessionId":"x"}`)}},
		{"bad body", Message{Type: TypeAttendanceMarked, Body: []byte(`{`)}},
		{"missing id", Message{Type: TypeAttendanceMarked, Body: []byte(`{}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeMarked(tt.msg); err == nil {
				t.Error("DecodeMarked() error = nil")
			}
		})
	}
}

func TestInMemoryPublishConsume(t *testing.T) {
	q := NewInMemory(2)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, _ := NewMarked("s-1")
	if err := q.Publish(ctx, msg); err != nil {
		t.Fatal(err)
	}
	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-ch:
		if got.Type != TypeAttendanceMarked {
			t.Errorf("Type = %q", got.Type)
		}
	case <-ctx.Done():
		t.Fatal("no message consumed")
	}
}

func TestInMemoryFull(t *testing.T) {
	q := NewInMemory(1)
	ctx := context.Background()
	msg, _ := NewMarked("s-1")
	if err := q.Publish(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if err := q.Publish(ctx, msg); !errors.Is(err, ErrFull) {
		t.Errorf("second Publish() error = %v, want ErrFull", err)
	}
}
