package dispatch

import (
	"context"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is what the caller sees. Executors report their own failures with
// StatusError; the dispatcher converts returned errors and panics the same way.
type Result struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

func Success(message string, data map[string]interface{}) Result {
	return Result{Status: StatusSuccess, Message: message, Data: data}
}

func Failure(message string) Result {
	return Result{Status: StatusError, Message: message}
}

// Invocation is a sanitized, authorized, risk-cleared request.
type Invocation struct {
	Capability Capability
	Parameters map[string]interface{}
	UserID     string
	ClientAddr string
}

type Executor interface {
	Execute(ctx context.Context, inv Invocation) (Result, error)
}

type ExecutorFunc func(ctx context.Context, inv Invocation) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, inv Invocation) (Result, error) {
	return f(ctx, inv)
}

func stringParam(params map[string]interface{}, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}
