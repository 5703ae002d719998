// Package narrative asks a hosted language model to narrate and judge
// battles. Every failure is reported as conquest.ErrExternalServiceUnavailable
// so the combat resolver falls back to its deterministic result.
package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/freeeve/hex-conquest/api/internal/config"
	"github.com/freeeve/hex-conquest/api/internal/telemetry"
	"github.com/freeeve/hex-conquest/api/pkg/conquest"
)

const (
	apiVersion = "2023-06-01"
	maxTokens  = 600
)

const systemPrompt = `You are the battle master of a hex-map strategy game.
You receive a battle as JSON: both armies, the terrain, the city defense level,
each side's written strategy and the baseline result of the deterministic model.
Judge the strategies and narrate the battle in two or three sentences.
Reply with a single JSON object and nothing else:
{"winner":"attacker|defender|draw",
 "attacker_losses":{"<class>":n}, "defender_losses":{"<class>":n},
 "narrative":"...",
 "attacker_score":{"terrain_fit":0-25,"unit_synergy":0-25,"logical_coherence":0-25,"counter_intelligence":0-25},
 "defender_score":{...same axes...}}
Losses per class may never exceed the troops of that class. A side without a
strategy scores zero on every axis. Stay close to the baseline unless a
strategy clearly earns a different outcome.`

// Client calls the Anthropic Messages API.
type Client struct {
	apiKey     string
	url        string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a narrative client. Returns nil if no API key is
// configured (narration disabled).
func NewClient(cfg config.NarrativeConfig) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	perMin := cfg.RatePerMin
	if perMin <= 0 {
		perMin = 20
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = conquest.DefaultAugmentTimeout
	}
	return &Client{
		apiKey:     cfg.APIKey,
		url:        cfg.URL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(float64(perMin)/60), perMin),
	}
}

// Enabled returns true if the client has a valid API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", conquest.ErrExternalServiceUnavailable, fmt.Sprintf(format, args...))
}

// Augment implements conquest.NarrativeAugmenter.
func (c *Client) Augment(ctx context.Context, req conquest.AugmentRequest) (*conquest.AugmentResponse, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "narrative.augment")
	defer span.End()
	span.SetAttributes(
		attribute.String("battle.terrain", string(req.Terrain)),
		attribute.Int("battle.attackers", req.Attacker.Total()),
		attribute.Int("battle.defenders", req.Defender.Total()),
	)

	resp, err := c.augment(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("battle.winner", string(resp.Winner)))
	return resp, nil
}

func (c *Client) augment(ctx context.Context, req conquest.AugmentRequest) (*conquest.AugmentResponse, error) {
	if !c.Enabled() {
		return nil, unavailable("narrative client not configured")
	}
	if !c.limiter.Allow() {
		return nil, unavailable("rate limit exceeded")
	}

	battle, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal battle: %w", err)
	}
	body, err := json.Marshal(request{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    systemPrompt,
		Messages:  []message{{Role: "user", Content: string(battle)}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, unavailable("API call: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable("read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, unavailable("API error %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, unavailable("unmarshal response: %v", err)
	}
	if len(apiResp.Content) == 0 {
		return nil, unavailable("empty response")
	}

	log.Debug().
		Int("inputTokens", apiResp.Usage.InputTokens).
		Int("outputTokens", apiResp.Usage.OutputTokens).
		Dur("took", time.Since(start)).
		Msg("narrative call")

	out, err := parseVerdict(apiResp.Content[0].Text)
	if err != nil {
		return nil, unavailable("%v", err)
	}
	return out, nil
}

// parseVerdict pulls the JSON object out of the model's reply, tolerating
// prose or code fences around it.
func parseVerdict(text string) (*conquest.AugmentResponse, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, errors.New("no JSON object in reply")
	}
	var out conquest.AugmentResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
