package risk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/frahmantamala/assistant-guard/internal/notification"
)

// Classifier is the external text classifier consulted for medium and
// worse pattern results.
type Classifier interface {
	Classify(ctx context.Context, command string, hints map[string]interface{}) (*Assessment, error)
}

type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

type ActivityLogger interface {
	LogActivity(ctx context.Context, userID, action string, details map[string]interface{})
}

// EventSink persists security events beyond the in-memory ring.
type EventSink interface {
	Append(ctx context.Context, event SecurityEvent) error
}

type Recorder interface {
	RiskAssessed(level, action string)
	ClassifierCalled(outcome string, d time.Duration)
}

type Options struct {
	RingSize          int
	CommandMaxLength  int
	ClassifierTimeout time.Duration
	MaxConcurrent     int
}

func DefaultOptions() Options {
	return Options{
		RingSize:          1000,
		CommandMaxLength:  200,
		ClassifierTimeout: 10 * time.Second,
		MaxConcurrent:     4,
	}
}

type Engine struct {
	admins     AdminChecker
	classifier Classifier
	notifier   notification.Notifier
	activity   ActivityLogger
	sink       EventSink
	recorder   Recorder
	logger     *slog.Logger

	opts Options
	sem  *semaphore.Weighted
	ring *Ring
	now  func() time.Time
}

func NewEngine(admins AdminChecker, logger *slog.Logger, opts Options) *Engine {
	def := DefaultOptions()
	if opts.RingSize <= 0 {
		opts.RingSize = def.RingSize
	}
	if opts.CommandMaxLength <= 0 {
		opts.CommandMaxLength = def.CommandMaxLength
	}
	if opts.ClassifierTimeout <= 0 {
		opts.ClassifierTimeout = def.ClassifierTimeout
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = def.MaxConcurrent
	}
	return &Engine{
		admins: admins,
		logger: logger,
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		ring:   NewRing(opts.RingSize),
		now:    time.Now,
	}
}

func (e *Engine) WithClassifier(c Classifier) *Engine {
	e.classifier = c
	return e
}

func (e *Engine) WithNotifier(n notification.Notifier) *Engine {
	e.notifier = n
	return e
}

func (e *Engine) WithActivityLog(a ActivityLogger) *Engine {
	e.activity = a
	return e
}

func (e *Engine) WithEventSink(s EventSink) *Engine {
	e.sink = s
	return e
}

func (e *Engine) WithRecorder(r Recorder) *Engine {
	e.recorder = r
	return e
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Assess scores the command, decides whether to block it and records the
// outcome. It always returns an assessment. The caller's cancellation is
// ignored so the audit trail is written even if the client went away.
func (e *Engine) Assess(ctx context.Context, req Request) (result Assessment) {
	ctx = context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "risk assessment panicked", "user_id", req.UserID, "panic", r)
			result = failedAssessment(fmt.Errorf("%v", r))
		}
	}()

	final := AssessPatterns(req.Command)
	if final.Level.AtLeast(LevelMedium) && e.classifier != nil {
		final = merge(final, e.classify(ctx, req))
	}
	final.Blocked = e.shouldBlock(ctx, final, req.UserID)

	e.record(ctx, req, final)
	return final
}

// IsCommandSafe reports whether the command would be allowed.
func (e *Engine) IsCommandSafe(ctx context.Context, req Request) bool {
	return !e.Assess(ctx, req).Blocked
}

type classifyResult struct {
	assessment *Assessment
	err        error
}

// classify runs the classifier on the bounded pool with a deadline. The
// call is abandoned on timeout; its slot is released when it returns.
func (e *Engine) classify(ctx context.Context, req Request) Assessment {
	cctx, cancel := context.WithTimeout(ctx, e.opts.ClassifierTimeout)
	defer cancel()

	start := e.now()
	if err := e.sem.Acquire(cctx, 1); err != nil {
		return e.classifierFailed(ctx, req, fmt.Errorf("classifier pool exhausted: %w", err), start)
	}

	done := make(chan classifyResult, 1)
	go func() {
		defer e.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- classifyResult{err: fmt.Errorf("classifier panicked: %v", r)}
			}
		}()
		a, err := e.classifier.Classify(cctx, req.Command, req.Context)
		done <- classifyResult{assessment: a, err: err}
	}()

	var res classifyResult
	select {
	case res = <-done:
	case <-cctx.Done():
		res.err = fmt.Errorf("classifier timed out: %w", cctx.Err())
	}

	if res.err == nil && res.assessment == nil {
		res.err = ErrEmptyResponse
	}
	if res.err != nil {
		return e.classifierFailed(ctx, req, res.err, start)
	}
	if e.recorder != nil {
		e.recorder.ClassifierCalled("success", e.now().Sub(start))
	}
	return normalizeClassified(*res.assessment)
}

func (e *Engine) classifierFailed(ctx context.Context, req Request, err error, start time.Time) Assessment {
	e.logger.WarnContext(ctx, "classifier unavailable, using conservative estimate", "user_id", req.UserID, "error", err)
	if e.recorder != nil {
		e.recorder.ClassifierCalled("fallback", e.now().Sub(start))
	}
	return classifierFallback(err)
}

// normalizeClassified makes a classifier answer safe to merge: unknown
// levels become medium and confidence is clamped.
func normalizeClassified(a Assessment) Assessment {
	if a.Level.Rank() < 0 {
		a.Level = LevelMedium
	}
	a.Confidence = clampConfidence(a.Confidence)
	if a.Categories == nil {
		a.Categories = []Category{}
	}
	if !strings.HasPrefix(a.Reasoning, "AI assessment") {
		a.Reasoning = "AI assessment: " + a.Reasoning
	}
	if len(a.Recommendations) == 0 {
		a.Recommendations = Recommendations(a.Categories)
	}
	if a.Metadata == nil {
		a.Metadata = map[string]interface{}{}
	}
	a.Metadata["method"] = MethodAI
	a.Blocked = false
	return a
}

func (e *Engine) shouldBlock(ctx context.Context, a Assessment, userID string) bool {
	switch a.Level {
	case LevelCritical:
		return true
	case LevelHigh:
		if e.admins == nil {
			return true
		}
		admin, err := e.admins.IsAdmin(ctx, userID)
		if err != nil {
			e.logger.WarnContext(ctx, "admin lookup failed, blocking high risk command", "user_id", userID, "error", err)
			return true
		}
		return !admin
	}
	return a.Confidence > 0.8 && anyDangerous(a.Categories)
}

func (e *Engine) record(ctx context.Context, req Request, a Assessment) {
	action := ActionAllowed
	if a.Blocked {
		action = ActionBlocked
	}
	now := e.now()
	event := SecurityEvent{
		ID:         newEventID(now),
		Timestamp:  now,
		UserID:     req.UserID,
		Command:    truncate(req.Command, e.opts.CommandMaxLength),
		Assessment: a,
		Action:     action,
		ClientAddr: req.ClientAddr,
	}
	e.ring.Append(event)

	if e.recorder != nil {
		e.recorder.RiskAssessed(a.Level.String(), action)
	}
	if e.sink != nil {
		if err := e.sink.Append(ctx, event); err != nil {
			e.logger.WarnContext(ctx, "failed to persist security event", "event_id", event.ID, "error", err)
		}
	}
	if e.activity != nil {
		e.activity.LogActivity(ctx, req.UserID, "security_event", map[string]interface{}{
			"command":         event.Command,
			"risk_level":      a.Level.String(),
			"risk_categories": categoryNames(a.Categories),
			"confidence":      a.Confidence,
			"blocked":         a.Blocked,
			"action_taken":    action,
			"client_addr":     req.ClientAddr,
		})
	}

	if a.Level.AtLeast(LevelHigh) {
		e.alert(ctx, event)
	}
	e.logger.InfoContext(ctx, "command assessed",
		"user_id", req.UserID, "risk_level", a.Level, "action_taken", action, "event_id", event.ID)
}

func (e *Engine) alert(ctx context.Context, event SecurityEvent) {
	if e.notifier == nil {
		return
	}
	alert := notification.Alert{
		Type:       notification.TypeSecurityAlert,
		Severity:   event.Assessment.Level.String(),
		UserID:     event.UserID,
		Command:    event.Command,
		Categories: categoryNames(event.Assessment.Categories),
		Reasoning:  event.Assessment.Reasoning,
		Timestamp:  event.Timestamp,
		Action:     event.Action,
	}
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("notifier panicked: %v", r)
			}
		}()
		return e.notifier.Notify(ctx, alert)
	}()
	if err != nil {
		e.logger.ErrorContext(ctx, "admin notification failed", "event_id", event.ID, "error", err)
		return
	}
	if e.activity != nil {
		e.activity.LogActivity(ctx, "system", "admin_notification_sent", map[string]interface{}{
			"severity":     alert.Severity,
			"user_id":      alert.UserID,
			"event_id":     event.ID,
			"action_taken": alert.Action,
		})
	}
}

func categoryNames(cs []Category) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, string(c))
	}
	return out
}

// EventFilter narrows Events; zero values match everything.
type EventFilter struct {
	UserID string
	Level  Level
	Limit  int
}

const DefaultEventLimit = 100

func (e *Engine) Events(f EventFilter) []SecurityEvent {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	return e.ring.Newest(limit, func(ev SecurityEvent) bool {
		if f.UserID != "" && ev.UserID != f.UserID {
			return false
		}
		if f.Level != "" && ev.Assessment.Level != f.Level {
			return false
		}
		return true
	})
}
