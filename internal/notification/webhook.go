package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type WebhookConfig struct {
	URL        string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
	Workers    int
	QueueSize  int
}

type worker struct {
	id   int
	pool chan chan Alert
	jobs chan Alert
}

func (w *worker) start(ctx context.Context, wg *sync.WaitGroup, process func(Alert)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case w.pool <- w.jobs:
			case <-ctx.Done():
				return
			}
			select {
			case alert := <-w.jobs:
				process(alert)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// WebhookNotifier posts alerts as JSON from a small worker pool. Notify only
// enqueues; deliveries share one token bucket.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	queue   chan Alert
	pool    chan chan Alert
	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

func NewWebhookNotifier(cfg WebhookConfig, logger *slog.Logger) *WebhookNotifier {
	ctx, cancel := context.WithCancel(context.Background())

	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	n := &WebhookNotifier{
		url:     cfg.URL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		queue:   make(chan Alert, queueSize),
		pool:    make(chan chan Alert, workers),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
	n.start()
	return n
}

func (n *WebhookNotifier) start() {
	n.once.Do(func() {
		for i := 0; i < n.workers; i++ {
			w := &worker{id: i, pool: n.pool, jobs: make(chan Alert)}
			w.start(n.ctx, &n.wg, n.deliver)
		}
		n.wg.Add(1)
		go n.dispatch()
		n.logger.Info("alert webhook workers started", "workers", n.workers, "queue_size", cap(n.queue))
	})
}

func (n *WebhookNotifier) dispatch() {
	defer n.wg.Done()
	for {
		select {
		case alert := <-n.queue:
			select {
			case jobs := <-n.pool:
				select {
				case jobs <- alert:
				case <-n.ctx.Done():
					return
				}
			case <-n.ctx.Done():
				return
			}
		case <-n.ctx.Done():
			return
		}
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, alert Alert) error {
	select {
	case n.queue <- alert:
		return nil
	default:
		n.logger.WarnContext(ctx, "alert queue full, dropping alert", "severity", alert.Severity, "user_id", alert.UserID)
		return ErrQueueFull
	}
}

func (n *WebhookNotifier) deliver(alert Alert) {
	if err := n.limiter.Wait(n.ctx); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(n.ctx, n.client.Timeout)
	defer cancel()
	if err := n.Send(ctx, alert); err != nil {
		n.logger.Error("alert webhook delivery failed", "severity", alert.Severity, "error", err)
	}
}

// Send posts one alert synchronously.
func (n *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Shutdown stops the workers; queued alerts that were not picked up are dropped.
func (n *WebhookNotifier) Shutdown() {
	n.cancel()
	n.wg.Wait()
	n.logger.Info("alert webhook workers stopped", "dropped", len(n.queue))
}
