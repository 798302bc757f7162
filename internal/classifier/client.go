// Package classifier asks an OpenAI-compatible chat completions endpoint to
// grade a command's risk.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/frahmantamala/assistant-guard/internal"
	"github.com/frahmantamala/assistant-guard/internal/risk"
)

const (
	DefaultModel     = "gpt-4o-mini"
	temperature      = 0.1
	maxTokens        = 500
	maxResponseBytes = 1 << 20
)

var ErrMalformedResponse = errors.New("malformed classifier response")

type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

type Client struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
	logger   *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		model:    model,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

const systemPrompt = `You are a cybersecurity expert analyzing commands for potential risks.

Assess the security risk of the given command and classify it into these categories:
- DELETION: Commands that delete or remove data/files
- OVERWRITE: Commands that overwrite existing data
- EXTERNAL_TRANSMISSION: Commands that send data externally
- FINANCIAL: Commands involving financial transactions
- SYSTEM_ACCESS: Commands accessing system-level functions
- DATA_EXFILTRATION: Commands that extract sensitive data
- PRIVILEGE_ESCALATION: Commands that escalate privileges
- MALICIOUS_CODE: Commands containing potentially malicious code
- SUSPICIOUS_FILE: Commands involving suspicious file types
- UNAUTHORIZED_ACCESS: Commands attempting unauthorized access

Risk levels: SAFE, LOW, MEDIUM, HIGH, CRITICAL

Respond with JSON only:
{
    "risk_level": "SAFE|LOW|MEDIUM|HIGH|CRITICAL",
    "risk_categories": ["CATEGORY1", "CATEGORY2"],
    "confidence": 0.0-1.0,
    "reasoning": "Detailed explanation",
    "recommendations": ["recommendation1", "recommendation2"]
}`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type verdict struct {
	RiskLevel       string   `json:"risk_level"`
	RiskCategories  []string `json:"risk_categories"`
	Confidence      float64  `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	Recommendations []string `json:"recommendations"`
}

func userPrompt(command string, hints map[string]interface{}) string {
	ctxJSON := []byte("{}")
	if len(hints) > 0 {
		if b, err := json.MarshalIndent(hints, "", "  "); err == nil {
			ctxJSON = b
		}
	}
	return fmt.Sprintf("Analyze this command for security risks:\n\nCommand: %s\nContext: %s\n\nConsider the intent, potential impact, and security implications.", command, ctxJSON)
}

func (c *Client) Classify(ctx context.Context, command string, hints map[string]interface{}) (*risk.Assessment, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(command, hints)},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal classifier request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes)); err != nil {
			c.logger.DebugContext(ctx, "failed to drain classifier response", "error", err)
		}
		return nil, internal.NewExternalError("classifier unavailable", fmt.Errorf("classifier returned status %d", resp.StatusCode))
	}

	var chat chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&chat); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, risk.ErrEmptyResponse
	}

	a, err := c.parse(chat.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "classifier verdict", "risk_level", a.Level, "confidence", a.Confidence)
	return a, nil
}

// parse accepts the verdict as bare JSON or wrapped in a markdown fence.
func (c *Client) parse(content string) (*risk.Assessment, error) {
	raw := stripFence(content)
	if raw == "" {
		return nil, risk.ErrEmptyResponse
	}

	var v verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	level, err := risk.ParseLevel(v.RiskLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	categories := make([]risk.Category, 0, len(v.RiskCategories))
	for _, name := range v.RiskCategories {
		cat, err := risk.ParseCategory(name)
		if err != nil {
			c.logger.Warn("classifier returned unknown category", "category", name)
			continue
		}
		categories = append(categories, cat)
	}

	recs := v.Recommendations
	if recs == nil {
		recs = []string{}
	}
	return &risk.Assessment{
		Level:           level,
		Categories:      categories,
		Confidence:      v.Confidence,
		Reasoning:       "AI assessment: " + v.Reasoning,
		Recommendations: recs,
		Metadata:        map[string]interface{}{"method": risk.MethodAI, "model": c.model},
	}, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
