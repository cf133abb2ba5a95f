package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/npcfleet/internal/config"
)

func TestMigrate_InvalidDirection(t *testing.T) {
	_, err := Migrate("postgres://localhost/none", "sideways", 0)
	assert.ErrorContains(t, err, "invalid direction")
}

func TestNewPool_StopsRetryingWhenCancelled(t *testing.T) {
	prev := connectBackoff
	connectBackoff = time.Second
	t.Cleanup(func() { connectBackoff = prev })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := NewPool(ctx, config.DatabaseConfig{
		Host:     "127.0.0.1",
		Port:     1,
		User:     "npcfleet",
		Password: "npcfleet",
		Name:     "npcfleet",
		SSLMode:  "disable",
		MaxConns: 1,
	}, zaptest.NewLogger(t))
	assert.Error(t, err)
	assert.Less(t, time.Since(start), connectAttempts*connectBackoff, "gave up before exhausting attempts")
}
