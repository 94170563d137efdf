package rabbitmq

// Metrics is the instrumentation sink the core reports through. Every method
// must be safe for concurrent use and must never block or panic — a metrics
// backend outage must not affect message processing. See the promx
// subpackage for the Prometheus-backed implementation wired in SPEC_FULL.
type Metrics interface {
	// SetActiveSubscriptions reports the current number of open
	// subscriptions for queue.
	SetActiveSubscriptions(queue string, n int)
	// SetTargetScale reports the scaling decision for queue.
	SetTargetScale(queue string, n int)
	// IncAcks counts one successful acknowledgement for queue.
	IncAcks(queue string)
	// IncNacks counts one negative acknowledgement for queue, tagged by
	// whether it was requeued.
	IncNacks(queue string, requeued bool)
	// IncRetries counts one retried callback invocation for queue.
	IncRetries(queue string)
	// IncDeserializationFailures counts one payload that failed to
	// deserialize for queue.
	IncDeserializationFailures(queue string)
	// ObserveCallbackDuration records how long one callback invocation took.
	ObserveCallbackDuration(queue string, seconds float64)
}

// NopMetrics discards everything. It is the default when no Metrics is
// supplied.
type NopMetrics struct{}

func (NopMetrics) SetActiveSubscriptions(string, int)      {}
func (NopMetrics) SetTargetScale(string, int)              {}
func (NopMetrics) IncAcks(string)                          {}
func (NopMetrics) IncNacks(string, bool)                   {}
func (NopMetrics) IncRetries(string)                       {}
func (NopMetrics) IncDeserializationFailures(string)       {}
func (NopMetrics) ObserveCallbackDuration(string, float64) {}

var _ Metrics = NopMetrics{}
