package rabbitmq

import "testing"

func TestDefaultTopologyConfig(t *testing.T) {
	cfg := DefaultTopologyConfig("orders.topic", "orders")

	if cfg.ExchangeName != "orders.topic" {
		t.Fatalf("expected exchange %q, got %q", "orders.topic", cfg.ExchangeName)
	}
	if cfg.ExchangeKind != ExchangeTopic {
		t.Fatalf("expected topic exchange kind, got %q", cfg.ExchangeKind)
	}
	if cfg.QueueName != "orders" {
		t.Fatalf("expected queue %q, got %q", "orders", cfg.QueueName)
	}
	if cfg.RoutingKey != "orders" {
		t.Fatalf("expected default routing key to equal queue name, got %q", cfg.RoutingKey)
	}
	if !cfg.Durable {
		t.Fatalf("expected default topology to be durable")
	}
}

func TestRejectionExchangeName(t *testing.T) {
	if got := RejectionExchangeName("orders"); got != "orders.rejected" {
		t.Fatalf("expected %q, got %q", "orders.rejected", got)
	}
}
