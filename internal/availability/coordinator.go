package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/devtinkubot/tinkubot-microservices-sub001/internal/flow"
	"github.com/devtinkubot/tinkubot-microservices-sub001/pkg/metrics"
)

const documentKeyPattern = "availability:req:%s"

// Config tunes one coordinator instance. All durations come from
// environment-level configuration.
type Config struct {
	RequestTopic   string
	ResponseTopic  string
	HardDeadline   time.Duration
	GraceWindow    time.Duration
	PollInterval   time.Duration
	DocumentTTL    time.Duration
	PublishTimeout time.Duration
	RetryDelay     time.Duration
	QueueSize      int
}

// Request describes one availability broadcast.
type Request struct {
	Phone      string
	Service    string
	City       string
	Candidates []flow.ProviderCandidate
}

// Coordinator broadcasts availability requests and aggregates provider
// replies with a two-phase deadline: a hard maximum, shrunk to a short grace
// window once the first acceptance arrives. It owns exactly one listener and
// one publisher goroutine, started lazily and idempotently.
type Coordinator struct {
	kv      redis.Cmdable
	channel EventChannel
	cfg     Config
	log     *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	queue   chan publishJob
	wg      sync.WaitGroup
}

// NewCoordinator constructs a Coordinator. Call Start before issuing
// requests; an unstarted coordinator answers every request with an empty
// accepted list.
func NewCoordinator(kv redis.Cmdable, channel EventChannel, cfg Config, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	return &Coordinator{
		kv:      kv,
		channel: channel,
		cfg:     cfg,
		log:     log,
	}
}

// Start launches the listener and publisher tasks. Calling it again while
// they are running is a no-op.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)

	messages, err := c.channel.Subscribe(runCtx, c.cfg.ResponseTopic)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to %s: %w", c.cfg.ResponseTopic, err)
	}

	c.cancel = cancel
	c.queue = make(chan publishJob, c.cfg.QueueSize)
	c.started = true

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.runListener(runCtx, messages)
	}()
	go func() {
		defer c.wg.Done()
		c.runPublisher(runCtx)
	}()

	c.log.Info("availability coordinator started",
		slog.String("request_topic", c.cfg.RequestTopic),
		slog.String("response_topic", c.cfg.ResponseTopic))

	return nil
}

// Close stops the listener and publisher and waits for them to exit.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()

	return c.channel.Close()
}

func (c *Coordinator) isStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// UpdateTunables applies reloaded window tunables. Topics and queue size are
// fixed at Start; only the timing knobs move at runtime.
func (c *Coordinator) UpdateTunables(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg.HardDeadline = cfg.HardDeadline
	c.cfg.GraceWindow = cfg.GraceWindow
	c.cfg.PollInterval = cfg.PollInterval
	c.cfg.DocumentTTL = cfg.DocumentTTL
	c.cfg.PublishTimeout = cfg.PublishTimeout
	c.cfg.RetryDelay = cfg.RetryDelay
}

// tunables snapshots the current configuration.
func (c *Coordinator) tunables() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// RequestAndWait broadcasts one availability request and returns the subset
// of candidates that confirmed availability within the window, in original
// candidate order. It never blocks past the hard deadline and never fails:
// an unreachable channel degrades to "nobody available".
func (c *Coordinator) RequestAndWait(ctx context.Context, req Request) []flow.ProviderCandidate {
	candidates := DedupeCandidates(req.Candidates)
	if len(candidates) == 0 {
		return nil
	}

	if !c.isStarted() {
		c.log.Warn("coordinator not started, failing open", slog.String("phone", req.Phone))
		return nil
	}
	if err := c.channel.Ping(ctx); err != nil {
		c.log.Warn("event channel unreachable, failing open", slog.Any("error", err))
		return nil
	}

	cfg := c.tunables()

	reqID := uuid.NewString()
	doc := &RequestDocument{
		ReqID:     reqID,
		Providers: candidates,
		Accepted:  []ResponseRecord{},
		Declined:  []ResponseRecord{},
		Phone:     req.Phone,
		Service:   req.Service,
		City:      req.City,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.writeDocument(ctx, doc, cfg.DocumentTTL); err != nil {
		c.log.Warn("failed to create availability document, failing open",
			slog.String("req_id", reqID), slog.Any("error", err))
		return nil
	}

	payload, err := json.Marshal(RequestMessage{
		ReqID:       reqID,
		Service:     req.Service,
		City:        req.City,
		Candidates:  candidates,
		WaitSeconds: int(cfg.HardDeadline / time.Second),
	})
	if err != nil {
		return nil
	}

	metrics.RecordAvailabilityRequest()
	c.enqueue(publishJob{topic: cfg.RequestTopic, payload: payload})

	start := time.Now()
	accepted := c.waitForReplies(ctx, cfg, reqID, start)

	result := matchAccepted(candidates, accepted)
	metrics.RecordAvailabilityResult(len(result), time.Since(start))

	c.log.Info("availability window closed",
		slog.String("req_id", reqID),
		slog.Int("candidates", len(candidates)),
		slog.Int("accepted", len(result)),
		slog.Duration("waited", time.Since(start)))

	return result
}

// waitForReplies polls the KV document until the effective deadline passes,
// then reads the final accepted list. The first acceptance shrinks the
// deadline to min(hard deadline, now + grace window) so near-simultaneous
// replies still batch together.
func (c *Coordinator) waitForReplies(ctx context.Context, cfg Config, reqID string, start time.Time) []ResponseRecord {
	deadline := start.Add(cfg.HardDeadline)
	graceArmed := false

	for time.Now().Before(deadline) {
		wait := cfg.PollInterval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return c.finalAccepted(cfg, reqID)
		case <-time.After(wait):
		}

		if graceArmed {
			continue
		}

		doc, err := c.readDocument(ctx, reqID)
		if err != nil || doc == nil {
			continue
		}

		if len(doc.Accepted) > 0 {
			graceArmed = true
			if graceEnd := time.Now().Add(cfg.GraceWindow); graceEnd.Before(deadline) {
				deadline = graceEnd
			}
		}
	}

	return c.finalAccepted(cfg, reqID)
}

func (c *Coordinator) finalAccepted(cfg Config, reqID string) []ResponseRecord {
	// Detached context: the final read must happen even when the caller's
	// context is already done.
	readCtx, cancel := context.WithTimeout(context.Background(), cfg.PublishTimeout)
	defer cancel()

	doc, err := c.readDocument(readCtx, reqID)
	if err != nil || doc == nil {
		return nil
	}

	return doc.Accepted
}

// matchAccepted maps accepted reply records back to full candidate objects,
// keeping the order of the original candidate list.
func matchAccepted(candidates []flow.ProviderCandidate, accepted []ResponseRecord) []flow.ProviderCandidate {
	if len(accepted) == 0 {
		return nil
	}

	acceptedIDs := make(map[string]struct{}, len(accepted))
	acceptedPhones := make(map[string]struct{}, len(accepted))
	for _, record := range accepted {
		if record.ProviderID != "" {
			acceptedIDs[record.ProviderID] = struct{}{}
		}
		if phone := NormalizePhone(record.Phone); phone != "" {
			acceptedPhones[phone] = struct{}{}
		}
	}

	var result []flow.ProviderCandidate
	for _, candidate := range candidates {
		if _, ok := acceptedIDs[candidate.ID]; ok {
			result = append(result, candidate)
			continue
		}
		if _, ok := acceptedPhones[NormalizePhone(candidate.Phone)]; ok {
			result = append(result, candidate)
		}
	}

	return result
}

func (c *Coordinator) readDocument(ctx context.Context, reqID string) (*RequestDocument, error) {
	data, err := c.kv.Get(ctx, documentKey(reqID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var doc RequestDocument
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

// writeDocument persists the document with the fixed TTL. The TTL is
// independent of the wait window so closed requests stay inspectable for a
// while.
func (c *Coordinator) writeDocument(ctx context.Context, doc *RequestDocument, ttl time.Duration) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	return c.kv.Set(ctx, documentKey(doc.ReqID), data, ttl).Err()
}

func documentKey(reqID string) string {
	return fmt.Sprintf(documentKeyPattern, reqID)
}
