package otel

import (
	"context"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,broken, =skip,tenant=aux,")
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %v", headers)
	}
	if headers["api-key"] != "abc" || headers["tenant"] != "aux" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestInitValidates(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing service name to be rejected")
	}
	if _, err := Init(context.Background(), Config{ServiceName: "kpirewardd", SampleRatio: 2}); err == nil {
		t.Fatalf("expected out of range sample ratio to be rejected")
	}
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "kpirewardd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
