package notification_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/frahmantamala/assistant-guard/internal/notification"
	"github.com/frahmantamala/assistant-guard/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type sink struct {
	mu     sync.Mutex
	alerts []notification.Alert
}

func (s *sink) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var a notification.Alert
		Expect(json.NewDecoder(r.Body).Decode(&a)).To(Succeed())
		s.mu.Lock()
		s.alerts = append(s.alerts, a)
		s.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func sampleAlert(severity string) notification.Alert {
	return notification.Alert{
		Type:       notification.TypeSecurityAlert,
		Severity:   severity,
		UserID:     "u-1",
		Command:    "rm -rf /",
		Categories: []string{"deletion"},
		Timestamp:  time.Now(),
		Action:     "blocked",
	}
}

var _ = Describe("WebhookNotifier", func() {
	var (
		received *sink
		server   *httptest.Server
	)

	BeforeEach(func() {
		received = &sink{}
		server = httptest.NewServer(received.handler(http.StatusOK))
		DeferCleanup(server.Close)
	})

	It("delivers queued alerts in the background", func() {
		n := notification.NewWebhookNotifier(notification.WebhookConfig{URL: server.URL, Workers: 2, QueueSize: 10}, logger.Discard())
		DeferCleanup(n.Shutdown)

		for i := 0; i < 3; i++ {
			Expect(n.Notify(context.Background(), sampleAlert("high"))).To(Succeed())
		}
		Eventually(received.count).Should(Equal(3))
		Expect(received.alerts[0].Categories).To(Equal([]string{"deletion"}))
	})

	It("throttles deliveries", func() {
		n := notification.NewWebhookNotifier(notification.WebhookConfig{
			URL: server.URL, RatePerSec: 1, Burst: 1, Workers: 1, QueueSize: 10,
		}, logger.Discard())
		DeferCleanup(n.Shutdown)

		for i := 0; i < 3; i++ {
			Expect(n.Notify(context.Background(), sampleAlert("critical"))).To(Succeed())
		}
		Eventually(received.count).Should(Equal(1))
		Consistently(received.count, 500*time.Millisecond).Should(BeNumerically("<=", 1))
	})

	It("reports non-2xx responses from Send", func() {
		failing := httptest.NewServer(received.handler(http.StatusBadGateway))
		DeferCleanup(failing.Close)
		n := notification.NewWebhookNotifier(notification.WebhookConfig{URL: failing.URL}, logger.Discard())
		DeferCleanup(n.Shutdown)

		err := n.Send(context.Background(), sampleAlert("high"))
		Expect(err).To(MatchError(ContainSubstring("status 502")))
	})

	It("rejects alerts once the queue is full", func() {
		blocked := make(chan struct{})
		slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-blocked
		}))
		DeferCleanup(slow.Close)
		DeferCleanup(func() { close(blocked) })

		n := notification.NewWebhookNotifier(notification.WebhookConfig{URL: slow.URL, Workers: 1, QueueSize: 1, Timeout: time.Second}, logger.Discard())
		DeferCleanup(n.Shutdown)

		var full error
		for i := 0; i < 10 && full == nil; i++ {
			full = n.Notify(context.Background(), sampleAlert("high"))
		}
		Expect(errors.Is(full, notification.ErrQueueFull)).To(BeTrue())
	})
})

type failing struct{ err error }

func (f failing) Notify(context.Context, notification.Alert) error { return f.err }

var _ = Describe("Fanout", func() {
	It("delivers to every notifier and joins errors", func() {
		boom := errors.New("boom")
		f := notification.Fanout{notification.NewLogNotifier(logger.Discard()), failing{boom}}
		Expect(f.Notify(context.Background(), sampleAlert("high"))).To(MatchError(boom))
	})
})
