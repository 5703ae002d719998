package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/freeeve/hex-conquest/api/internal/config"
	"github.com/freeeve/hex-conquest/api/pkg/conquest"
)

func battle() conquest.AugmentRequest {
	in := conquest.BattleInput{
		Attacker:         conquest.Troops{conquest.Infantry: 100},
		Defender:         conquest.Troops{conquest.Infantry: 50},
		Terrain:          conquest.Plains,
		AttackerStrategy: "pin them in the center, flank on the left",
	}
	rules := conquest.DefaultRules()
	base := conquest.ResolveCombat(in, &rules)
	return conquest.AugmentRequest{BattleInput: in, Baseline: base}
}

func reply(text string) []byte {
	b, _ := json.Marshal(map[string]any{
		"content": []map[string]string{{"type": "text", "text": text}},
		"usage":   map[string]int{"input_tokens": 10, "output_tokens": 20},
	})
	return b
}

func newTestClient(t *testing.T, h http.HandlerFunc, perMin int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.NarrativeConfig{
		APIKey:     "test-key",
		URL:        srv.URL,
		Model:      "test-model",
		Timeout:    2 * time.Second,
		RatePerMin: perMin,
	})
}

func TestNewClientDisabledWithoutKey(t *testing.T) {
	c := NewClient(config.NarrativeConfig{})
	if c != nil {
		t.Fatal("expected nil client without an API key")
	}
	if c.Enabled() {
		t.Fatal("nil client must report disabled")
	}
	_, err := c.Augment(context.Background(), battle())
	if !errors.Is(err, conquest.ErrExternalServiceUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestAugmentSuccess(t *testing.T) {
	var got request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" || r.Header.Get("anthropic-version") != apiVersion {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write(reply("Here is the verdict:\n```json\n" +
			`{"winner":"attacker","attacker_losses":{"infantry":20},"defender_losses":{"infantry":30},` +
			`"narrative":"The left flank broke.","attacker_score":{"terrain_fit":20,"unit_synergy":10,"logical_coherence":15,"counter_intelligence":5}}` +
			"\n```"))
	}, 20)

	resp, err := c.Augment(context.Background(), battle())
	if err != nil {
		t.Fatalf("augment: %v", err)
	}
	if resp.Winner != conquest.OutcomeAttacker || resp.AttackerLosses[conquest.Infantry] != 20 {
		t.Fatalf("unexpected verdict: %+v", resp)
	}
	if resp.AttackerScore.Total() != 50 || resp.Narrative != "The left flank broke." {
		t.Fatalf("unexpected scores or narrative: %+v", resp)
	}
	if got.Model != "test-model" || len(got.Messages) != 1 || got.System == "" {
		t.Fatalf("unexpected request: %+v", got)
	}
	var sent conquest.AugmentRequest
	if err := json.Unmarshal([]byte(got.Messages[0].Content), &sent); err != nil {
		t.Fatalf("battle payload is not JSON: %v", err)
	}
	if sent.Attacker[conquest.Infantry] != 100 || sent.Baseline.Winner != conquest.OutcomeAttacker {
		t.Fatalf("unexpected battle payload: %+v", sent)
	}
}

func TestAugmentFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		}},
		{"empty content", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"content":[]}`))
		}},
		{"prose only", func(w http.ResponseWriter, r *http.Request) {
			w.Write(reply("The attackers won decisively."))
		}},
		{"broken object", func(w http.ResponseWriter, r *http.Request) {
			w.Write(reply(`{"winner": attacker}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler, 20)
			_, err := c.Augment(context.Background(), battle())
			if !errors.Is(err, conquest.ErrExternalServiceUnavailable) {
				t.Fatalf("expected unavailable, got %v", err)
			}
		})
	}
}

func TestAugmentRateLimited(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write(reply(`{"winner":"draw","attacker_losses":{},"defender_losses":{}}`))
	}, 1)

	if _, err := c.Augment(context.Background(), battle()); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := c.Augment(context.Background(), battle())
	if !errors.Is(err, conquest.ErrExternalServiceUnavailable) {
		t.Fatalf("expected the second call to be limited, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("limited call must not reach the server, got %d calls", calls)
	}
}

func TestAugmentHonorsDeadline(t *testing.T) {
	block := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}, 20)
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Augment(ctx, battle())
	if !errors.Is(err, conquest.ErrExternalServiceUnavailable) {
		t.Fatalf("expected unavailable on timeout, got %v", err)
	}
}

func TestCombatResolverFallsBackOnServiceError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}, 20)
	req := battle()
	rules := conquest.DefaultRules()
	cr := &conquest.CombatResolver{Rules: &rules, Augmenter: c}
	got := cr.Resolve(context.Background(), req.BattleInput)
	if got.Augmented || got.FallbackReason == "" || got.Winner != req.Baseline.Winner {
		t.Fatalf("expected the deterministic fallback, got %+v", got)
	}
}
