// Package rabbitmq is a client-side library for consuming messages from an
// AMQP 0-9-1 broker with dynamic concurrency, typed deserialization,
// retry/requeue/discard semantics, and graceful shutdown.
//
// The consumer runtime is a self-scaling pool of per-channel subscribers
// (QueueConsumer) that pulls work from a named queue, hands each delivery to
// a user-supplied ProcessingWorker, and translates the worker's outcome into
// broker acknowledgements through a FeedbackSender. A ConnectionPool
// multiplexes channels over a small number of long-lived connections, and a
// ConsumerCountManager decides how many subscriptions should be active based
// on observed queue depth.
//
// Publishing helpers, queue/exchange declaration, the default JSON
// serializer, and the logging interface are thin collaborators documented at
// the boundaries of the types below; see QueueClient for how they compose.
package rabbitmq
