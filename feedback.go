package rabbitmq

import "sync/atomic"

// acknowledger is the subset of *amqp.Channel a FeedbackSender needs. It
// exists so tests can resolve feedback against a fake channel instead of a
// live broker connection.
type acknowledger interface {
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
}

// FeedbackSender is the one-shot ack/nack gate for a single Delivery. Exactly
// one of Ack, Nack(true), or Nack(false) must be called during its lifetime;
// a second call returns ErrFeedbackAlreadySent and never reaches the broker.
//
// FeedbackSender is owned by the ProcessingWorker handling its delivery for
// the scope of that one delivery (§3).
type FeedbackSender struct {
	ch          acknowledger
	deliveryTag uint64
	resolved    atomic.Bool

	// QueueName and VirtualHost are carried for the RejectionHandler's
	// benefit; they are not used by Ack/Nack themselves.
	QueueName   string
	VirtualHost string
}

// NewFeedbackSender builds a FeedbackSender bound to one delivery tag on ch.
func NewFeedbackSender(ch acknowledger, deliveryTag uint64, queueName, virtualHost string) *FeedbackSender {
	return &FeedbackSender{
		ch:          ch,
		deliveryTag: deliveryTag,
		QueueName:   queueName,
		VirtualHost: virtualHost,
	}
}

// Ack acknowledges successful processing.
func (f *FeedbackSender) Ack() error {
	if !f.resolved.CompareAndSwap(false, true) {
		return ErrFeedbackAlreadySent
	}
	return f.ch.Ack(f.deliveryTag, false)
}

// Nack rejects the delivery. When requeue is true the broker redelivers it;
// when false the broker drops it (ProcessingWorker also hands such payloads
// to its RejectionHandler).
func (f *FeedbackSender) Nack(requeue bool) error {
	if !f.resolved.CompareAndSwap(false, true) {
		return ErrFeedbackAlreadySent
	}
	return f.ch.Nack(f.deliveryTag, false, requeue)
}

// Resolved reports whether Ack or Nack has already been called.
func (f *FeedbackSender) Resolved() bool {
	return f.resolved.Load()
}

// Abandon is the safety default: if a FeedbackSender is about to be
// destroyed without having been resolved (e.g. the owning subscription was
// cancelled mid-delivery), the surrounding worker must call this so the
// message is requeued rather than silently left unacked past the channel's
// lifetime. It is a no-op if feedback was already resolved.
func (f *FeedbackSender) Abandon() {
	if f.resolved.CompareAndSwap(false, true) {
		_ = f.ch.Nack(f.deliveryTag, false, true)
	}
}
