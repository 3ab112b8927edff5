package redis

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/abac-auth-service/internal/infra/config"
)

func TestNewClient_PingAndHealthCheck(t *testing.T) {
	server := miniredis.RunT(t)
	port, err := strconv.Atoi(server.Port())
	if err != nil {
		t.Fatalf("parse miniredis port: %v", err)
	}

	client, err := NewClient(context.Background(), config.RedisSettings{Host: server.Host(), Port: port}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}

	server.Close()
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatalf("expected health check to fail once redis is gone")
	}
}
