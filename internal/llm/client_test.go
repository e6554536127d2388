package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPClientEvaluate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"scores\":{}}"}}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "key", "gpt-x", nil)
	out, err := c.Evaluate(context.Background(), "sistema", "segmento")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out != `{"scores":{}}` {
		t.Fatalf("unexpected content %q", out)
	}
	if got.Model != "gpt-x" || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestHTTPClientEvaluate_Errors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"http status", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, "status=429"},
		{"api error", http.StatusOK, `{"error":{"message":"bad model"}}`, "bad model"},
		{"empty choices", http.StatusOK, `{"choices":[]}`, "empty response"},
		{"not json", http.StatusOK, `<html>`, "unmarshal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, "key", "m", nil).Evaluate(context.Background(), "", "p")
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestHTTPClientEvaluate_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewHTTPClient(srv.URL, "key", "m", nil).Evaluate(ctx, "", "p")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("b", &MockClient{}); err != nil {
		t.Fatalf("register b: %v", err)
	}
	if err := reg.Register("a", &MockClient{}); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := reg.Register("a", &MockClient{}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := reg.Register(" ", &MockClient{}); err == nil {
		t.Fatalf("expected empty id error")
	}
	if err := reg.Register("c", nil); err == nil {
		t.Fatalf("expected nil evaluator error")
	}

	ids := reg.IDs()
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "a" {
		t.Fatalf("expected registration order [b a], got %v", ids)
	}
	ids[0] = "mutated"
	if reg.IDs()[0] != "b" {
		t.Fatalf("IDs must return a copy")
	}

	if _, err := reg.Get("zzz"); !errors.Is(err, ErrUnknownEvaluator) {
		t.Fatalf("expected ErrUnknownEvaluator, got %v", err)
	}
}

func TestNewHTTPRegistry(t *testing.T) {
	reg, err := NewHTTPRegistry("", "k", []string{"m1", " ", "m2"}, nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 evaluators, got %d", reg.Len())
	}
	ev, _ := reg.Get("m2")
	if ev.(*HTTPClient).Model() != "m2" {
		t.Fatalf("unexpected model")
	}

	if _, err := NewHTTPRegistry("", "k", []string{""}, nil); err == nil {
		t.Fatalf("expected error for empty pool")
	}
	if _, err := NewHTTPRegistry("", "k", []string{"m1", "m1"}, nil); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestMockClient(t *testing.T) {
	m := &MockClient{Responses: []string{"uno", "dos"}}
	for _, want := range []string{"uno", "dos", "dos"} {
		got, err := m.Evaluate(context.Background(), "", "p-"+want)
		if err != nil || got != want {
			t.Fatalf("expected %q, got %q (%v)", want, got, err)
		}
	}
	if m.Calls() != 3 || m.LastPrompt() != "p-dos" {
		t.Fatalf("unexpected bookkeeping: %d %q", m.Calls(), m.LastPrompt())
	}
}
