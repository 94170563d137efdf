package rabbitmq

import (
	"testing"
	"time"
)

func TestDefaultConsumerCountManager_ClampFormula(t *testing.T) {
	cases := []struct {
		name  string
		depth int
		want  uint
	}{
		{"below min stays at min", 0, 1},
		{"S6 seed depth 47 clamps to max", 47, 10},
		{"drained to 3 scales down to 1", 3, 1},
		{"exact ratio multiple", 20, 4},
		{"one above ratio multiple rounds up", 21, 5},
	}

	mgr := NewDefaultConsumerCountManager(ConsumerCountManagerConfig{
		MinConcurrentConsumers:   1,
		MaxConcurrentConsumers:   10,
		MessagesPerConsumerRatio: 5,
		AutoScaleInterval:        time.Second,
	})

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mgr.TargetScale(tc.depth, 0)
			if got != tc.want {
				t.Errorf("TargetScale(%d) = %d, want %d", tc.depth, got, tc.want)
			}
		})
	}
}

func TestConsumerCountManagerConfig_Validate(t *testing.T) {
	valid := DefaultConsumerCountManagerConfig()
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}

	cases := []ConsumerCountManagerConfig{
		{MinConcurrentConsumers: 5, MaxConcurrentConsumers: 1, MessagesPerConsumerRatio: 1, AutoScaleInterval: 1},
		{MinConcurrentConsumers: 1, MaxConcurrentConsumers: 5, MessagesPerConsumerRatio: 0, AutoScaleInterval: 1},
		{MinConcurrentConsumers: 1, MaxConcurrentConsumers: 5, MessagesPerConsumerRatio: 1, AutoScaleInterval: 0},
	}
	for i, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected validation error, got nil", i)
		}
	}
}

func TestFixedConsumerCountManager(t *testing.T) {
	mgr := NewFixedConsumerCountManager(3)
	for _, depth := range []int{0, 100, 5} {
		if got := mgr.TargetScale(depth, 99); got != 3 {
			t.Errorf("TargetScale(%d) = %d, want 3", depth, got)
		}
	}
}
