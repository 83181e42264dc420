package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func completionServer(t *testing.T, wantPath, wantAuth, wantModel string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wantPath {
			t.Errorf("path = %s, want %s", r.URL.Path, wantPath)
		}
		if got := r.Header.Get("Authorization"); got != wantAuth {
			t.Errorf("Authorization = %q, want %q", got, wantAuth)
		}

		var req openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != wantModel {
			t.Errorf("model = %q, want %q", req.Model, wantModel)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		_ = json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: Message{Role: "assistant", Content: "Hi there!"}}},
			Model:   req.Model,
			Usage:   openaiUsage{PromptTokens: 10, CompletionTokens: 5},
		})
	}))
}

func TestOpenAIProvider_Complete(t *testing.T) {
	tests := []struct {
		name      string
		newFunc   func(url string) *OpenAIProvider
		path      string
		auth      string
		wantName  string
		reqModel  string
		wantModel string
	}{
		{
			name:      "openai",
			newFunc:   func(url string) *OpenAIProvider { return NewOpenAIProvider("test-key", WithBaseURL(url)) },
			path:      "/chat/completions",
			auth:      "Bearer test-key",
			wantName:  "openai",
			reqModel:  "gpt-4o",
			wantModel: "gpt-4o",
		},
		{
			name:      "deepseek default model",
			newFunc:   func(url string) *OpenAIProvider { return NewDeepSeekProvider("ds-key", WithBaseURL(url)) },
			path:      "/chat/completions",
			auth:      "Bearer ds-key",
			wantName:  "deepseek",
			wantModel: "deepseek-chat",
		},
		{
			name:      "ollama without auth",
			newFunc:   func(url string) *OpenAIProvider { return NewOllamaProvider(url) },
			path:      "/v1/chat/completions",
			wantName:  "ollama",
			wantModel: "llama3:8b",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := completionServer(t, tt.path, tt.auth, tt.wantModel)
			defer server.Close()

			p := tt.newFunc(server.URL)
			if p.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.wantName)
			}
			resp, err := p.Complete(context.Background(), CompletionRequest{
				Messages: []Message{{Role: "user", Content: "hello"}},
				Model:    tt.reqModel,
			})
			if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}
			if resp.Content != "Hi there!" || resp.InputTokens != 10 || resp.OutputTokens != 5 {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestOpenAIProvider_Complete_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"api error", http.StatusTooManyRequests, `{"error":"rate limited"}`, "status 429"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"bad json", http.StatusOK, `not json`, "unmarshal response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := NewOpenAIProvider("test-key", WithBaseURL(server.URL))
			_, err := p.Complete(context.Background(), CompletionRequest{
				Messages: []Message{{Role: "user", Content: "hello"}},
			})
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Complete() error = %v, want containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestOpenAIProvider_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := NewOpenAIProvider("k", WithBaseURL(server.URL)).HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := NewOpenAIProvider("k", WithBaseURL(server.URL+"/missing")).HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should fail on 404")
	}
}

func TestOpenAIProvider_Models(t *testing.T) {
	if len(NewOpenAIProvider("k").Models()) == 0 {
		t.Error("Models() returned empty")
	}
	if got := NewOllamaProvider("http://localhost:11434").Models(); len(got) != 1 || got[0].ID != "llama3:8b" {
		t.Errorf("ollama Models() = %+v", got)
	}
}
