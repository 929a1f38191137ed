package realtime

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/feedbackpulse/internal/models"
)

func TestRedisBridgeRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	hub := NewHub(nil)
	defer hub.Close()
	c := NewClient(DashboardChannel, "o1", false)
	hub.Register(c)

	bridge := NewRedisBridge(client, hub, nil)
	bridge.channel = "feedbackpulse:test:" + t.Name()

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- bridge.Run(runCtx) }()

	// publish until the subscriber is attached
	metrics := &models.DashboardMetrics{TotalSurveys: 7}
	var msg Message
	require.Eventually(t, func() bool {
		require.NoError(t, bridge.EmitMetricsUpdate(ctx, models.Scope{OrganizationID: "o1"}, metrics))
		select {
		case data := <-c.Send:
			return json.Unmarshal(data, &msg) == nil
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, MsgMetricsUpdate, msg.Type)
	assert.Contains(t, string(msg.Payload), `"totalSurveys":7`)

	stop()
	assert.NoError(t, <-done)
}

func TestRedisBridgeRunWithoutHub(t *testing.T) {
	bridge := NewRedisBridge(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), nil, nil)
	defer bridge.client.Close()

	assert.Error(t, bridge.Run(context.Background()))
}
