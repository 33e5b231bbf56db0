package obs

import (
	"context"
	"testing"
)

func TestInitTracer_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "raffles-api", "", "test")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracer_WithEndpoint(t *testing.T) {
	// The gRPC exporter connects lazily, so no collector is needed.
	shutdown, err := InitTracer(context.Background(), "raffles-api", "localhost:4317", "test")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_ = shutdown(ctx)
}
