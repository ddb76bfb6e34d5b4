package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"voicebot/internal/infra/config"
)

// chatRequest is the part of a Chat Completions request the fakes inspect.
type chatRequest struct {
	ToolChoice string `json:"tool_choice"`
	Tools      []struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	} `json:"tools"`
	Messages []struct {
		Role       string  `json:"role"`
		Content    *string `json:"content"`
		ToolCallID string  `json:"tool_call_id"`
	} `json:"messages"`
}

// fakeOpenAI serves chat, transcription and speech from one httptest server.
// The first chat request in a turn gets toolCall (if set); any request that
// already carries tool results gets final.
type fakeOpenAI struct {
	srv   *httptest.Server
	audio []byte

	mu         sync.Mutex
	transcript string
	toolCall   string // JSON tool call or "" for a plain answer
	final      string
	chats      []chatRequest
	tts        []string
}

func newFakeOpenAI(t *testing.T) *fakeOpenAI {
	t.Helper()
	f := &fakeOpenAI{audio: []byte("ID3-fake-mp3")}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /audio/transcriptions", f.handleTranscription)
	mux.HandleFunc("POST /audio/speech", f.handleSpeech)
	mux.HandleFunc("POST /chat/completions", f.handleChat)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

// script sets what the next turn hears, calls and answers.
func (f *fakeOpenAI) script(transcript, toolCall, final string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcript, f.toolCall, f.final = transcript, toolCall, final
}

func (f *fakeOpenAI) handleTranscription(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	text := f.transcript
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
}

func (f *fakeOpenAI) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input string `json:"input"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	f.tts = append(f.tts, req.Input)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "audio/mpeg")
	_, _ = w.Write(f.audio)
}

func (f *fakeOpenAI) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	body, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.chats = append(f.chats, req)
	toolCall, final := f.toolCall, f.final
	f.mu.Unlock()

	last := req.Messages[len(req.Messages)-1]
	message := `{"role":"assistant","content":` + quote(final) + `}`
	if toolCall != "" && last.Role == "user" {
		message = `{"role":"assistant","content":null,"tool_calls":[` + toolCall + `]}`
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"id":"chatcmpl-1","model":"gpt-4o-mini","created":1700000000,`+
		`"choices":[{"index":0,"finish_reason":"stop","message":`+message+`}],`+
		`"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
}

func (f *fakeOpenAI) chatRequests() []chatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatRequest(nil), f.chats...)
}

func (f *fakeOpenAI) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tts...)
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// newLookupServer serves the weather and exchange-rate endpoints.
func newLookupServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /forecast", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"current_weather":{"temperature":21.5,"windspeed":3.2}}`)
	})
	mux.HandleFunc("GET /latest/USD", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"base":"USD","rates":{"KRW":1380.25,"JPY":149.1}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// testConfig points every backend at the fakes.
func testConfig(openai, lookup string) *config.Config {
	cfg := config.Defaults()
	cfg.LLM.Providers[0].BaseURL = openai
	cfg.LLM.Providers[0].APIKey = "sk-test"
	cfg.LLM.CircuitBreaker.Enabled = false
	cfg.Speech.BaseURL = openai
	cfg.Speech.APIKey = "sk-test"
	cfg.Tools.Weather.BaseURL = strings.TrimRight(lookup, "/") + "/forecast"
	cfg.Tools.Exchange.BaseURL = strings.TrimRight(lookup, "/") + "/latest"
	cfg.Channels.HTTP.Addr = "127.0.0.1:0"
	return cfg
}
