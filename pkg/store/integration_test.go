package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/friendlyhq/friendly/pkg/models"
)

var (
	testRedisClient    *redis.Client
	testRedisContainer testcontainers.Container
	skipIntegration    bool
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	// Start Redis container once for all tests.
	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		}
		testRedisContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()

	if containerErr != nil {
		fmt.Printf("Docker not available, integration tests will be skipped: %v\n", containerErr)
		skipIntegration = true
	} else {
		host, err := testRedisContainer.Host(ctx)
		if err != nil {
			fmt.Printf("Failed to get container host: %v\n", err)
			skipIntegration = true
		} else {
			port, err := testRedisContainer.MappedPort(ctx, "6379")
			if err != nil {
				fmt.Printf("Failed to get container port: %v\n", err)
				skipIntegration = true
			} else {
				testRedisClient = redis.NewClient(&redis.Options{
					Addr: host + ":" + port.Port(),
				})
				if err := testRedisClient.Ping(ctx).Err(); err != nil {
					fmt.Printf("Failed to ping redis: %v\n", err)
					skipIntegration = true
				}
			}
		}
	}

	code := m.Run()

	if testRedisClient != nil {
		_ = testRedisClient.Close()
	}
	if testRedisContainer != nil {
		_ = testRedisContainer.Terminate(ctx)
	}

	os.Exit(code)
}

// getStore returns a Store backed by the shared Redis container, with the
// database flushed for test isolation. Skips the test when Docker is not
// available.
func getStore(t *testing.T) *Store {
	t.Helper()
	if skipIntegration {
		t.Skip("Docker not available, skipping integration test")
	}
	require.NoError(t, testRedisClient.FlushDB(context.Background()).Err())
	return NewFromClient(testRedisClient)
}

func TestStore_SaveLoadDelete(t *testing.T) {
	s := getStore(t)
	ctx := context.Background()

	session := models.NewBlitzSession("", "book me a haircut tomorrow", models.RouterParams{
		Service:   "barber",
		Timeframe: "tomorrow",
	})
	session.Status = models.SessionCalling

	require.NoError(t, s.Save(ctx, KindSession, session.ID, session, KindSession.TTL()))

	var loaded models.BlitzSession
	found, err := s.Load(ctx, KindSession, session.ID, &loaded)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, session.ID, loaded.ID)
	assert.Equal(t, "book me a haircut tomorrow", loaded.UserMessage)
	assert.Equal(t, models.SessionCalling, loaded.Status)
	assert.Equal(t, "barber", loaded.ParsedParams.Service)

	// The key must carry a TTL so abandoned sessions expire on their own.
	ttl, err := testRedisClient.TTL(ctx, "session:"+session.ID).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)

	require.NoError(t, s.Delete(ctx, KindSession, session.ID))
	found, err = s.Load(ctx, KindSession, session.ID, &loaded)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_LoadMissing(t *testing.T) {
	s := getStore(t)

	var out models.QueueSession
	found, err := s.Load(context.Background(), KindQueue, "nope", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_QueueSessionTTL(t *testing.T) {
	s := getStore(t)
	ctx := context.Background()

	qs := models.NewQueueSession("wait on hold with the bank", "+15551234567", "First Bank", "dispute a charge")
	require.NoError(t, s.Save(ctx, KindQueue, qs.ID, qs, KindQueue.TTL()))

	// Queue sessions outlive regular ones: holds can run for most of an hour.
	ttl, err := testRedisClient.TTL(ctx, "queue:"+qs.ID).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Hour)
	assert.LessOrEqual(t, ttl, 2*time.Hour)
}

func TestStore_EventOrdering(t *testing.T) {
	s := getStore(t)
	ctx := context.Background()
	sessionID := "evt-order"

	for i := 0; i < 3; i++ {
		evt := models.NewEvent("status", map[string]any{"seq": i})
		require.NoError(t, s.PushEvent(ctx, sessionID, evt))
	}

	for i := 0; i < 3; i++ {
		evt, err := s.PopEvent(ctx, sessionID, time.Second)
		require.NoError(t, err)
		require.NotNil(t, evt)
		assert.Equal(t, "status", evt.Type)
		// JSON numbers decode as float64.
		assert.Equal(t, float64(i), evt.Data["seq"])
	}

	// Empty queue: the blocking pop times out and reports no event.
	evt, err := s.PopEvent(ctx, sessionID, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, evt)
}

func TestStore_ClearEvents(t *testing.T) {
	s := getStore(t)
	ctx := context.Background()

	require.NoError(t, s.PushEvent(ctx, "evt-clear", models.NewEvent("status", nil)))
	require.NoError(t, s.ClearEvents(ctx, "evt-clear"))

	evt, err := s.PopEvent(ctx, "evt-clear", 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, evt)
}

func TestStore_AudioCache(t *testing.T) {
	s := getStore(t)
	ctx := context.Background()

	audio := []byte{0xff, 0xf3, 0x44, 0x00, 0x12}
	require.NoError(t, s.CacheAudio(ctx, "Please hold while I connect you.", audio))

	got, err := s.CachedAudio(ctx, "Please hold while I connect you.")
	require.NoError(t, err)
	assert.Equal(t, audio, got)

	miss, err := s.CachedAudio(ctx, "never synthesized")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestStore_Preview(t *testing.T) {
	s := getStore(t)
	ctx := context.Background()

	id := NewPreviewID()
	require.NoError(t, s.SavePreview(ctx, id, "<html><body>hi</body></html>"))

	html, err := s.LoadPreview(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "<html><body>hi</body></html>", html)

	_, err = s.LoadPreview(ctx, "deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Traces(t *testing.T) {
	s := getStore(t)
	ctx := context.Background()

	batch := []json.RawMessage{
		json.RawMessage(`{"operation":"blitz_call","duration_ms":1200}`),
		json.RawMessage(`{"operation":"blitz_call","duration_ms":880}`),
	}
	require.NoError(t, s.PersistTraces(ctx, batch))
	require.NoError(t, s.PersistTraces(ctx, []json.RawMessage{
		json.RawMessage(`{"operation":"router","duration_ms":300}`),
	}))

	traces, err := s.LoadTraces(ctx, 10)
	require.NoError(t, err)
	require.Len(t, traces, 3)
	// Newest batch first.
	assert.JSONEq(t, `{"operation":"router","duration_ms":300}`, string(traces[0]))
}

func TestStore_InboxCache(t *testing.T) {
	s := getStore(t)
	ctx := context.Background()

	summary := models.InboxSummary{
		ImportantCount:   3,
		TopUpdates:       []string{"Invoice from Acme due Friday"},
		NeedsAction:      true,
		SenderHighlights: []string{"Your manager Alex"},
		TimeRange:        "last 24 hours",
	}
	require.NoError(t, s.CacheInboxSummary(ctx, "default", summary))

	var got models.InboxSummary
	found, err := s.CachedInboxSummary(ctx, "default", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, summary, got)

	found, err = s.CachedInboxSummary(ctx, "other-entity", &got)
	require.NoError(t, err)
	assert.False(t, found)
}
