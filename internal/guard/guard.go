package guard

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/frahmantamala/assistant-guard/internal"
	"github.com/frahmantamala/assistant-guard/internal/credential"
	"github.com/frahmantamala/assistant-guard/internal/transport"
	"github.com/frahmantamala/assistant-guard/pkg/logger"
)

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*credential.Claims, error)
}

// RejectionRecorder observes short-circuited requests. Reasons are
// "rate_limited", "locked_out" and "unauthenticated".
type RejectionRecorder interface {
	GuardRejected(reason string)
}

type Options struct {
	RateLimit        int
	RateWindow       time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration
}

type Guard struct {
	*transport.BaseHandler
	limiter  Limiter
	lockout  *Lockout
	verifier TokenVerifier
	recorder RejectionRecorder
	opts     Options
}

func New(base *transport.BaseHandler, limiter Limiter, lockout *Lockout, verifier TokenVerifier, opts Options) *Guard {
	return &Guard{
		BaseHandler: base,
		limiter:     limiter,
		lockout:     lockout,
		verifier:    verifier,
		opts:        opts,
	}
}

func (g *Guard) WithRecorder(r RejectionRecorder) *Guard {
	g.recorder = r
	return g
}

func (g *Guard) reject(w http.ResponseWriter, reason string, err error) {
	if g.recorder != nil {
		g.recorder.GuardRejected(reason)
	}
	g.WriteAppError(w, err)
}

func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

// admit runs the rate-limit and lockout checks. It writes the rejection and
// returns false when the request must stop.
func (g *Guard) admit(w http.ResponseWriter, r *http.Request, addr string) bool {
	ctx := r.Context()

	decision, err := g.limiter.Allow(ctx, addr)
	if err != nil {
		g.Logger.WarnContext(ctx, "rate limiter unavailable, allowing request", "client_addr", addr, "error", err)
	} else if !decision.Allowed {
		secs := retrySeconds(decision.RetryAfter)
		g.Logger.WarnContext(ctx, "rate limit exceeded", "client_addr", addr, "count", decision.Count)
		g.reject(w, "rate_limited", internal.NewTooManyRequestsError(
			fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", secs), internal.ErrCodeRateLimited, secs))
		return false
	}

	if locked, remaining := g.lockout.Check(ctx, addr); locked {
		secs := retrySeconds(remaining)
		g.Logger.WarnContext(ctx, "request from locked out source", "client_addr", addr)
		g.reject(w, "locked_out", internal.NewTooManyRequestsError(
			fmt.Sprintf("Too many failed attempts. Try again in %d seconds.", secs), internal.ErrCodeLockedOut, secs))
		return false
	}
	return true
}

// Throttle applies rate limiting and lockout without requiring a token.
// The login route uses it.
func (g *Guard) Throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := transport.ClientAddr(r)
		if !g.admit(w, r, addr) {
			return
		}
		ctx := internal.ContextWithClientAddr(r.Context(), addr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticate enforces rate limit, then lockout, then a valid bearer token.
// A missing or invalid token counts as a failed attempt for the source.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := transport.ClientAddr(r)
		if !g.admit(w, r, addr) {
			return
		}

		ctx := internal.ContextWithClientAddr(r.Context(), addr)
		token := transport.ExtractToken(r)
		if token == "" {
			g.lockout.RecordFailure(ctx, addr)
			g.reject(w, "unauthenticated", internal.ErrAuthRequired)
			return
		}

		claims, err := g.verifier.Verify(ctx, token)
		if err != nil {
			g.lockout.RecordFailure(ctx, addr)
			g.Logger.WarnContext(ctx, "token rejected", "client_addr", addr, "error", err)
			g.reject(w, "unauthenticated", internal.ErrInvalidToken)
			return
		}
		g.lockout.RecordSuccess(ctx, addr)

		ctx = internal.ContextWithPrincipal(ctx, &internal.Principal{
			UserID:   claims.UserID,
			Username: claims.Username,
			Email:    claims.Email,
			Role:     claims.Role,
			TokenID:  claims.ID,
		})
		ctx = internal.ContextWithToken(ctx, token)
		ctx = logger.With(ctx, "user_id", claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RecordFailure and RecordSuccess let the login handler feed the lockout.
func (g *Guard) RecordFailure(ctx context.Context, key string) {
	g.lockout.RecordFailure(ctx, key)
}

func (g *Guard) RecordSuccess(ctx context.Context, key string) {
	g.lockout.RecordSuccess(ctx, key)
}

type Stats struct {
	TrackedSources         int `json:"tracked_sources"`
	LockedSources          int `json:"locked_sources"`
	RateLimit              int `json:"rate_limit"`
	RateWindowSeconds      int `json:"rate_window_seconds"`
	LockoutThreshold       int `json:"lockout_threshold"`
	LockoutDurationSeconds int `json:"lockout_duration_seconds"`
}

func (g *Guard) Stats(ctx context.Context) Stats {
	tracked, err := g.limiter.Tracked(ctx)
	if err != nil {
		g.Logger.WarnContext(ctx, "failed to count rate limit windows", "error", err)
	}
	return Stats{
		TrackedSources:         tracked,
		LockedSources:          g.lockout.Locked(),
		RateLimit:              g.opts.RateLimit,
		RateWindowSeconds:      int(g.opts.RateWindow.Seconds()),
		LockoutThreshold:       g.opts.LockoutThreshold,
		LockoutDurationSeconds: int(g.opts.LockoutDuration.Seconds()),
	}
}

func (g *Guard) StatsHandler(w http.ResponseWriter, r *http.Request) {
	g.WriteJSON(w, http.StatusOK, g.Stats(r.Context()))
}
