// Package main implements a mock LLM server for offline pipeline testing.
// It serves OpenAI-compatible /v1/chat/completions responses from fixture
// files, routing by the "model" field in the request. Point the writing,
// judging and extraction endpoints at it and a full generation run needs
// no real model.
//
// Usage:
//
//	mock-llm -fixtures /path/to/fixtures -port 11434
//
// Fixture files are named by model: model "mock-writer" is served from
// "mock-writer.json" (or "mock-writer.md" for prose drafts). The file
// content becomes the assistant message verbatim.
//
// Sequential fixtures: if numbered files exist ("mock-judge.1.json",
// "mock-judge.2.json"), the Nth call to that model returns the Nth
// fixture, then the base file repeats. That is enough to script a
// fail-then-pass judge loop.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// server routes chat completions to fixtures and tracks per-model call
// counts for sequential fixtures and the /stats endpoint.
type server struct {
	fixturesDir string

	mu    sync.Mutex
	calls map[string]int
}

func newServer(fixturesDir string) *server {
	return &server{
		fixturesDir: fixturesDir,
		calls:       make(map[string]int),
	}
}

func main() {
	fixtures := flag.String("fixtures", "fixtures", "Directory of fixture files")
	port := flag.Int("port", 11434, "Listen port")
	flag.Parse()

	info, err := os.Stat(*fixtures)
	if err != nil || !info.IsDir() {
		log.Fatalf("fixtures directory not usable: %s", *fixtures)
	}

	s := newServer(*fixtures)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChat)
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/stats", s.handleStats)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("mock-llm listening on %s, fixtures from %s", addr, *fixtures)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"status":"ok"}`)
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
		return
	}
	if req.Model == "" {
		http.Error(w, "model is required", http.StatusBadRequest)
		return
	}

	call := s.recordCall(req.Model)

	content, path, err := s.fixtureFor(req.Model, call)
	if err != nil {
		log.Printf("no fixture for model %q (call %d): %v", req.Model, call, err)
		http.Error(w, fmt.Sprintf("no fixture for model %q", req.Model), http.StatusNotFound)
		return
	}
	log.Printf("model=%s call=%d fixture=%s", req.Model, call, filepath.Base(path))

	promptLen := 0
	for _, m := range req.Messages {
		promptLen += len(m.Content)
	}

	resp := chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: string(content)},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     promptLen / 4,
			CompletionTokens: len(content) / 4,
			TotalTokens:      (promptLen + len(content)) / 4,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// recordCall increments and returns the 1-based call count for a model.
func (s *server) recordCall(model string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[model]++
	return s.calls[model]
}

// fixtureFor resolves the fixture for the Nth call to a model. Numbered
// fixtures ("model.N.json") win while they last; then the base file
// ("model.json" or "model.md") serves every later call.
func (s *server) fixtureFor(model string, call int) ([]byte, string, error) {
	for _, ext := range []string{".json", ".md"} {
		numbered := filepath.Join(s.fixturesDir, model+"."+strconv.Itoa(call)+ext)
		if data, err := os.ReadFile(numbered); err == nil {
			return data, numbered, nil
		}
	}

	for _, ext := range []string{".json", ".md"} {
		base := filepath.Join(s.fixturesDir, model+ext)
		if data, err := os.ReadFile(base); err == nil {
			return data, base, nil
		}
	}
	return nil, "", fmt.Errorf("no fixture file under %s", s.fixturesDir)
}

// handleModels lists the models derivable from fixture file names, so
// clients that probe /v1/models see something sensible.
func (s *server) handleModels(w http.ResponseWriter, _ *http.Request) {
	entries, err := os.ReadDir(s.fixturesDir)
	if err != nil {
		http.Error(w, "cannot read fixtures", http.StatusInternalServerError)
		return
	}

	seen := make(map[string]bool)
	for _, entry := range entries {
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".json" && ext != ".md" {
			continue
		}
		name = strings.TrimSuffix(name, ext)
		// Strip a trailing sequence number.
		if i := strings.LastIndex(name, "."); i > 0 {
			if _, err := strconv.Atoi(name[i+1:]); err == nil {
				name = name[:i]
			}
		}
		seen[name] = true
	}

	models := make([]string, 0, len(seen))
	for name := range seen {
		models = append(models, name)
	}
	sort.Strings(models)

	type modelInfo struct {
		ID     string `json:"id"`
		Object string `json:"object"`
	}
	list := struct {
		Object string      `json:"object"`
		Data   []modelInfo `json:"data"`
	}{Object: "list"}
	for _, m := range models {
		list.Data = append(list.Data, modelInfo{ID: m, Object: "model"})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	stats := make(map[string]int, len(s.calls))
	for model, n := range s.calls {
		stats[model] = n
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}
