// Package dispatch runs authorized, risk-cleared commands against their
// registered executors and audits every run.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/frahmantamala/assistant-guard/internal"
	"github.com/frahmantamala/assistant-guard/internal/guard"
	"github.com/frahmantamala/assistant-guard/internal/permission"
	"github.com/frahmantamala/assistant-guard/internal/risk"
)

type Authorizer interface {
	CanAccessCategory(ctx context.Context, userID string, c permission.Category) bool
}

type RiskGate interface {
	Assess(ctx context.Context, req risk.Request) risk.Assessment
}

type ActivityLogger interface {
	LogActivity(ctx context.Context, userID, action string, details map[string]interface{})
}

type Recorder interface {
	DispatchExecuted(capability, status string)
}

// Request is an incoming command before any checks.
type Request struct {
	Command    string                 `json:"command"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Text       string                 `json:"text,omitempty"`
	UserID     string                 `json:"-"`
	ClientAddr string                 `json:"-"`
}

type Dispatcher struct {
	authorizer Authorizer
	risk       RiskGate
	activity   ActivityLogger
	recorder   Recorder
	logger     *slog.Logger
	executors  map[Capability]Executor
}

func NewDispatcher(authorizer Authorizer, gate RiskGate, activity ActivityLogger, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		authorizer: authorizer,
		risk:       gate,
		activity:   activity,
		logger:     logger,
		executors:  make(map[Capability]Executor),
	}
}

func (d *Dispatcher) WithRecorder(r Recorder) *Dispatcher {
	d.recorder = r
	return d
}

// Register binds an executor to a declared capability. It is not safe to
// call once requests are being served.
func (d *Dispatcher) Register(c Capability, e Executor) *Dispatcher {
	if _, ok := byName[c]; !ok {
		panic(fmt.Sprintf("dispatch: register of undeclared capability %q", c))
	}
	d.executors[c] = e
	return d
}

type CapabilityInfo struct {
	Name        Capability          `json:"name"`
	Category    permission.Category `json:"category"`
	Description string              `json:"description"`
	Configured  bool                `json:"configured"`
}

// Available lists the capabilities userID may invoke.
func (d *Dispatcher) Available(ctx context.Context, userID string) []CapabilityInfo {
	out := []CapabilityInfo{}
	for _, c := range Capabilities() {
		if !d.authorizer.CanAccessCategory(ctx, userID, c.Category()) {
			continue
		}
		_, configured := d.executors[c]
		out = append(out, CapabilityInfo{
			Name:        c,
			Category:    c.Category(),
			Description: c.Description(),
			Configured:  configured,
		})
	}
	return out
}

// Execute authorizes, risk-checks and runs a command. Returned errors are
// AppErrors for requests rejected before any side effect; once an executor
// runs, failures are reported inside the Result.
func (d *Dispatcher) Execute(ctx context.Context, req Request) (Result, error) {
	capability, err := ParseCapability(req.Command)
	if err != nil {
		d.logger.WarnContext(ctx, "unknown command", "command", req.Command, "user_id", req.UserID, "client_addr", req.ClientAddr)
		return Result{}, internal.NewValidationError(fmt.Sprintf("Unknown command: %s", req.Command), internal.ErrCodeCapabilityNotFound)
	}

	if !d.authorizer.CanAccessCategory(ctx, req.UserID, capability.Category()) {
		return Result{}, internal.ErrForbidden
	}

	assessment := d.risk.Assess(ctx, risk.Request{
		Command:    riskText(capability, req),
		UserID:     req.UserID,
		ClientAddr: req.ClientAddr,
		Context:    map[string]interface{}{"capability": capability.String()},
	})
	if assessment.Blocked {
		d.record(capability, "blocked")
		return Result{}, internal.NewRiskBlockedError("Command blocked by risk assessment", map[string]interface{}{
			"risk_level":      assessment.Level,
			"risk_categories": assessment.Categories,
			"reasoning":       assessment.Reasoning,
			"recommendations": assessment.Recommendations,
		})
	}

	// Nothing has been committed yet, so a caller that went away gets nothing.
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	inv := Invocation{
		Capability: capability,
		Parameters: guard.SanitizeParams(req.Parameters),
		UserID:     req.UserID,
		ClientAddr: req.ClientAddr,
	}
	d.audit(ctx, inv, "command_started", nil)
	result := d.run(context.WithoutCancel(ctx), inv)
	d.audit(ctx, inv, "command_completed", map[string]interface{}{"status": result.Status})
	d.record(capability, result.Status)
	return result, nil
}

func (d *Dispatcher) run(ctx context.Context, inv Invocation) (result Result) {
	executor, ok := d.executors[inv.Capability]
	if !ok {
		return Failure(fmt.Sprintf("%s is not configured", inv.Capability))
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "executor panicked", "capability", inv.Capability, "panic", r)
			result = Failure(fmt.Sprintf("%s failed: internal error", inv.Capability))
		}
	}()

	res, err := executor.Execute(ctx, inv)
	if err != nil {
		d.logger.ErrorContext(ctx, "executor failed", "capability", inv.Capability, "user_id", inv.UserID, "error", err)
		return Failure(fmt.Sprintf("%s failed: %v", inv.Capability, err))
	}
	if res.Status == "" {
		res.Status = StatusSuccess
	}
	return res
}

func (d *Dispatcher) audit(ctx context.Context, inv Invocation, action string, extra map[string]interface{}) {
	if d.activity == nil {
		return
	}
	details := map[string]interface{}{
		"command":     inv.Capability.String(),
		"client_addr": inv.ClientAddr,
	}
	for k, v := range extra {
		details[k] = v
	}
	d.activity.LogActivity(ctx, inv.UserID, action, details)
}

func (d *Dispatcher) record(c Capability, status string) {
	if d.recorder != nil {
		d.recorder.DispatchExecuted(c.String(), status)
	}
}

// riskText renders the command and its raw string parameters as one line of
// text for pattern matching.
func riskText(c Capability, req Request) string {
	var b strings.Builder
	b.WriteString(c.String())
	if req.Text != "" {
		b.WriteString(" ")
		b.WriteString(req.Text)
	}
	keys := make([]string, 0, len(req.Parameters))
	for k := range req.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		appendValue(&b, req.Parameters[k])
	}
	return b.String()
}

func appendValue(b *strings.Builder, v interface{}) {
	switch t := v.(type) {
	case string:
		b.WriteString(" ")
		b.WriteString(t)
	case []interface{}:
		for _, item := range t {
			appendValue(b, item)
		}
	case []string:
		for _, item := range t {
			appendValue(b, item)
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			appendValue(b, t[k])
		}
	}
}
