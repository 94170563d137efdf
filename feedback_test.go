package rabbitmq

import "testing"

type fakeAcknowledger struct {
	acks   []uint64
	nacks  []nackCall
	ackErr error
}

type nackCall struct {
	tag     uint64
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acks = append(f.acks, tag)
	return f.ackErr
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacks = append(f.nacks, nackCall{tag: tag, requeue: requeue})
	return nil
}

func TestFeedbackSender_AckResolvesOnce(t *testing.T) {
	ack := &fakeAcknowledger{}
	fs := NewFeedbackSender(ack, 7, "orders", "/")

	if err := fs.Ack(); err != nil {
		t.Fatalf("first Ack: unexpected error %v", err)
	}
	if !fs.Resolved() {
		t.Fatal("expected Resolved() true after Ack")
	}

	if err := fs.Ack(); err != ErrFeedbackAlreadySent {
		t.Fatalf("second Ack: expected ErrFeedbackAlreadySent, got %v", err)
	}
	if err := fs.Nack(true); err != ErrFeedbackAlreadySent {
		t.Fatalf("Nack after Ack: expected ErrFeedbackAlreadySent, got %v", err)
	}

	if len(ack.acks) != 1 || len(ack.nacks) != 0 {
		t.Fatalf("expected exactly one broker ack and no nacks, got acks=%v nacks=%v", ack.acks, ack.nacks)
	}
}

func TestFeedbackSender_NackResolvesOnce(t *testing.T) {
	ack := &fakeAcknowledger{}
	fs := NewFeedbackSender(ack, 3, "orders", "/")

	if err := fs.Nack(false); err != nil {
		t.Fatalf("first Nack: unexpected error %v", err)
	}
	if err := fs.Nack(true); err != ErrFeedbackAlreadySent {
		t.Fatalf("second Nack: expected ErrFeedbackAlreadySent, got %v", err)
	}

	if len(ack.nacks) != 1 {
		t.Fatalf("expected exactly one broker nack, got %v", ack.nacks)
	}
	if ack.nacks[0].requeue {
		t.Fatal("expected requeue=false to reach the broker")
	}
}

func TestFeedbackSender_Abandon(t *testing.T) {
	ack := &fakeAcknowledger{}
	fs := NewFeedbackSender(ack, 9, "orders", "/")

	fs.Abandon()
	if !fs.Resolved() {
		t.Fatal("expected Resolved() true after Abandon")
	}
	if len(ack.nacks) != 1 || !ack.nacks[0].requeue {
		t.Fatalf("expected one requeuing nack from Abandon, got %v", ack.nacks)
	}

	// Abandon after resolution must not double-nack.
	fs.Abandon()
	if len(ack.nacks) != 1 {
		t.Fatalf("expected Abandon to be a no-op once resolved, got %v", ack.nacks)
	}
}
