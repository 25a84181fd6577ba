package availability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/flow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeChannel is an in-process EventChannel. Tests feed provider replies
// into the subscription and inspect published requests.
type fakeChannel struct {
	mu         sync.Mutex
	pingErr    error
	publishErr error
	published  [][]byte
	messages   chan Message
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{messages: make(chan Message, 16)}
}

func (c *fakeChannel) Publish(_ context.Context, _ string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, payload)
	return nil
}

func (c *fakeChannel) Subscribe(_ context.Context, _ string) (<-chan Message, error) {
	return c.messages, nil
}

func (c *fakeChannel) Ping(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingErr
}

func (c *fakeChannel) Close() error { return nil }

func (c *fakeChannel) publishedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

func (c *fakeChannel) reply(t *testing.T, reqID, providerID, phone, status string) {
	t.Helper()
	payload, err := json.Marshal(map[string]string{
		"req_id":         reqID,
		"provider_id":    providerID,
		"provider_phone": phone,
		"estado":         status,
	})
	require.NoError(t, err)
	c.messages <- Message{Payload: payload}
}

// fastConfig shrinks the window so tests finish in milliseconds.
func fastConfig() Config {
	return Config{
		RequestTopic:   "availability:requests",
		ResponseTopic:  "availability:responses",
		HardDeadline:   400 * time.Millisecond,
		GraceWindow:    80 * time.Millisecond,
		PollInterval:   20 * time.Millisecond,
		DocumentTTL:    time.Minute,
		PublishTimeout: 100 * time.Millisecond,
		RetryDelay:     10 * time.Millisecond,
		QueueSize:      8,
	}
}

func setupCoordinator(t *testing.T, cfg Config) (*Coordinator, *fakeChannel) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	channel := newFakeChannel()
	c := NewCoordinator(client, channel, cfg, testLogger())
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close() })

	return c, channel
}

func candidates() []flow.ProviderCandidate {
	return []flow.ProviderCandidate{
		{ID: "p1", Phone: "+593991111111", Name: "Ana"},
		{ID: "p2", Phone: "+593992222222", Name: "Beto"},
		{ID: "p3", Phone: "+593993333333", Name: "Carla"},
	}
}

// publishedReqID extracts the request id from the broadcast payload.
func publishedReqID(t *testing.T, channel *fakeChannel) string {
	t.Helper()

	deadline := time.After(time.Second)
	for channel.publishedCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("request was never published")
		case <-time.After(5 * time.Millisecond):
		}
	}

	channel.mu.Lock()
	defer channel.mu.Unlock()

	var msg RequestMessage
	require.NoError(t, json.Unmarshal(channel.published[0], &msg))
	return msg.ReqID
}

func TestCoordinator_NoRepliesWaitsFullDeadline(t *testing.T) {
	cfg := fastConfig()
	c, _ := setupCoordinator(t, cfg)

	start := time.Now()
	accepted := c.RequestAndWait(context.Background(), Request{
		Phone: "+111", Service: "plomero", City: "Quito", Candidates: candidates(),
	})
	elapsed := time.Since(start)

	assert.Empty(t, accepted)
	assert.GreaterOrEqual(t, elapsed, cfg.HardDeadline)
	assert.Less(t, elapsed, 3*cfg.HardDeadline)
}

func TestCoordinator_FirstAcceptanceArmsGraceWindow(t *testing.T) {
	cfg := fastConfig()
	c, channel := setupCoordinator(t, cfg)

	go func() {
		reqID := publishedReqID(t, channel)
		channel.reply(t, reqID, "p2", "+593992222222", "si")
	}()

	start := time.Now()
	accepted := c.RequestAndWait(context.Background(), Request{
		Phone: "+111", Service: "plomero", City: "Quito", Candidates: candidates(),
	})
	elapsed := time.Since(start)

	require.Len(t, accepted, 1)
	assert.Equal(t, "p2", accepted[0].ID)
	// The grace window closes the request well before the hard deadline.
	assert.Less(t, elapsed, cfg.HardDeadline)
}

func TestCoordinator_GraceWindowBatchesSecondAcceptance(t *testing.T) {
	cfg := fastConfig()
	c, channel := setupCoordinator(t, cfg)

	go func() {
		reqID := publishedReqID(t, channel)
		channel.reply(t, reqID, "p1", "+593991111111", "si")
		time.Sleep(30 * time.Millisecond)
		channel.reply(t, reqID, "p3", "+593993333333", "disponible")
	}()

	accepted := c.RequestAndWait(context.Background(), Request{
		Phone: "+111", Service: "plomero", City: "Quito", Candidates: candidates(),
	})

	require.Len(t, accepted, 2)
	// Original candidate order, not reply order.
	assert.Equal(t, "p1", accepted[0].ID)
	assert.Equal(t, "p3", accepted[1].ID)
}

func TestCoordinator_DeclinesDoNotShortenWindow(t *testing.T) {
	cfg := fastConfig()
	c, channel := setupCoordinator(t, cfg)

	go func() {
		reqID := publishedReqID(t, channel)
		channel.reply(t, reqID, "p1", "+593991111111", "ocupado")
	}()

	start := time.Now()
	accepted := c.RequestAndWait(context.Background(), Request{
		Phone: "+111", Service: "plomero", City: "Quito", Candidates: candidates(),
	})
	elapsed := time.Since(start)

	assert.Empty(t, accepted)
	assert.GreaterOrEqual(t, elapsed, cfg.HardDeadline)
}

func TestCoordinator_DuplicateReplyFirstClassificationWins(t *testing.T) {
	cfg := fastConfig()
	c, channel := setupCoordinator(t, cfg)

	go func() {
		reqID := publishedReqID(t, channel)
		channel.reply(t, reqID, "p1", "+593991111111", "si")
		// Conflicting later status for the same provider must be ignored.
		channel.reply(t, reqID, "p1", "+593991111111", "no")
	}()

	accepted := c.RequestAndWait(context.Background(), Request{
		Phone: "+111", Service: "plomero", City: "Quito", Candidates: candidates(),
	})

	require.Len(t, accepted, 1)
	assert.Equal(t, "p1", accepted[0].ID)
}

func TestCoordinator_UnknownStatusIsDropped(t *testing.T) {
	cfg := fastConfig()
	cfg.HardDeadline = 150 * time.Millisecond
	c, channel := setupCoordinator(t, cfg)

	go func() {
		reqID := publishedReqID(t, channel)
		channel.reply(t, reqID, "p1", "+593991111111", "tal vez")
	}()

	accepted := c.RequestAndWait(context.Background(), Request{
		Phone: "+111", Service: "plomero", City: "Quito", Candidates: candidates(),
	})

	assert.Empty(t, accepted)
}

func TestCoordinator_NotStartedFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewCoordinator(client, newFakeChannel(), fastConfig(), testLogger())

	start := time.Now()
	accepted := c.RequestAndWait(context.Background(), Request{
		Phone: "+111", Service: "plomero", City: "Quito", Candidates: candidates(),
	})

	assert.Empty(t, accepted)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestCoordinator_UnreachableChannelFailsOpen(t *testing.T) {
	cfg := fastConfig()
	c, channel := setupCoordinator(t, cfg)

	channel.mu.Lock()
	channel.pingErr = errors.New("connection refused")
	channel.mu.Unlock()

	start := time.Now()
	accepted := c.RequestAndWait(context.Background(), Request{
		Phone: "+111", Service: "plomero", City: "Quito", Candidates: candidates(),
	})

	assert.Empty(t, accepted)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestCoordinator_EmptyCandidatesSkipsBroadcast(t *testing.T) {
	c, channel := setupCoordinator(t, fastConfig())

	accepted := c.RequestAndWait(context.Background(), Request{
		Phone: "+111", Service: "plomero", City: "Quito",
	})

	assert.Empty(t, accepted)
	assert.Zero(t, channel.publishedCount())
}

func TestCoordinator_StartIsIdempotent(t *testing.T) {
	c, _ := setupCoordinator(t, fastConfig())

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Start(context.Background()))
}

func TestMatchAccepted(t *testing.T) {
	cands := []flow.ProviderCandidate{
		{ID: "p1", Phone: "511"},
		{ID: "p2", Phone: "522"},
		{ID: "p3", Phone: "533"},
	}

	t.Run("matches by id", func(t *testing.T) {
		result := matchAccepted(cands, []ResponseRecord{{ProviderID: "p2"}})
		require.Len(t, result, 1)
		assert.Equal(t, "p2", result[0].ID)
	})

	t.Run("matches by phone only", func(t *testing.T) {
		result := matchAccepted(cands, []ResponseRecord{{Phone: "+533"}})
		require.Len(t, result, 1)
		assert.Equal(t, "p3", result[0].ID)
	})

	t.Run("keeps candidate order", func(t *testing.T) {
		result := matchAccepted(cands, []ResponseRecord{{ProviderID: "p3"}, {ProviderID: "p1"}})
		require.Len(t, result, 2)
		assert.Equal(t, "p1", result[0].ID)
		assert.Equal(t, "p3", result[1].ID)
	})

	t.Run("no accepted", func(t *testing.T) {
		assert.Nil(t, matchAccepted(cands, nil))
	})
}

func TestRedisChannel_PublishQoS(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()

	t.Run("qos zero ignores receiver count", func(t *testing.T) {
		channel := NewRedisChannel(client, 0, testLogger())
		assert.NoError(t, channel.Publish(ctx, "nobody-listening", []byte("x")))
	})

	t.Run("qos one requires a receiver", func(t *testing.T) {
		channel := NewRedisChannel(client, 1, testLogger())
		assert.ErrorIs(t, channel.Publish(ctx, "nobody-listening", []byte("x")), ErrNoReceivers)
	})

	t.Run("qos one with subscriber", func(t *testing.T) {
		channel := NewRedisChannel(client, 1, testLogger())
		t.Cleanup(func() { _ = channel.Close() })

		messages, err := channel.Subscribe(ctx, "topic")
		require.NoError(t, err)

		require.NoError(t, channel.Publish(ctx, "topic", []byte("hola")))

		select {
		case msg := <-messages:
			assert.Equal(t, "topic", msg.Topic)
			assert.Equal(t, []byte("hola"), msg.Payload)
		case <-time.After(time.Second):
			t.Fatal("message never arrived")
		}
	})
}
