package observability

import (
	"context"
	"testing"

	"github.com/user/verdandi/internal/config"
)

func TestInitOTLPGRPC(t *testing.T) {
	cfg := config.OTLPConfig{
		Endpoint:    "localhost:4317",
		Protocol:    "grpc",
		ServiceName: "verdandi-test",
		Insecure:    true,
	}

	shutdown, err := InitOTLP(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to init OTLP: %v", err)
	}

	if shutdown == nil {
		t.Fatal("Shutdown function is nil")
	}

	// Clean up
	_ = shutdown(context.Background())
}

func TestInitOTLPHTTP(t *testing.T) {
	cfg := config.OTLPConfig{
		Endpoint:    "localhost:4318",
		Protocol:    "http",
		ServiceName: "verdandi-test",
		Insecure:    true,
	}

	shutdown, err := InitOTLP(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to init OTLP HTTP: %v", err)
	}

	if shutdown == nil {
		t.Fatal("Shutdown function is nil")
	}

	// Clean up
	_ = shutdown(context.Background())
}

func TestInitOTLPDisabled(t *testing.T) {
	shutdown, err := InitOTLP(context.Background(), config.OTLPConfig{})
	if err != nil {
		t.Fatalf("empty endpoint should be a no-op: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown returned error: %v", err)
	}
}

func TestInitOTLPDefaultProtocol(t *testing.T) {
	cfg := config.OTLPConfig{
		Endpoint:    "localhost:4317",
		ServiceName: "verdandi-test",
		Insecure:    true,
	}

	shutdown, err := InitOTLP(context.Background(), cfg)
	if err != nil {
		t.Fatalf("empty protocol should fall back to grpc: %v", err)
	}
	_ = shutdown(context.Background())
}

func TestInitOTLPUnknownProtocol(t *testing.T) {
	cfg := config.OTLPConfig{
		Endpoint: "localhost:4317",
		Protocol: "thrift",
	}

	if _, err := InitOTLP(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unsupported protocol")
	}
}
