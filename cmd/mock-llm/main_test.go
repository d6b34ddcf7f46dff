package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func postChat(t *testing.T, s *server, model string) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"model": "` + model + `", "messages": [{"role": "user", "content": "hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleChat(rec, req)
	return rec
}

func assistantContent(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response JSON: %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("expected 1 choice, got %d", len(resp.Choices))
	}
	return resp.Choices[0].Message.Content
}

func TestChatServesFixtureByModel(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mock-writer.md", "# 2025 ZEEKR 7X Review\n\nA draft.")
	s := newServer(dir)

	rec := postChat(t, s, "mock-writer")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := assistantContent(t, rec); !strings.Contains(got, "ZEEKR 7X") {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestChatSequentialFixturesThenFallback(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mock-judge.1.json", `{"scores": {"accuracy": 4}}`)
	writeFixture(t, dir, "mock-judge.2.json", `{"scores": {"accuracy": 8}}`)
	writeFixture(t, dir, "mock-judge.json", `{"scores": {"accuracy": 9}}`)
	s := newServer(dir)

	want := []string{"4", "8", "9", "9"}
	for i, score := range want {
		got := assistantContent(t, postChat(t, s, "mock-judge"))
		if !strings.Contains(got, score) {
			t.Errorf("call %d: expected score %s, got %q", i+1, score, got)
		}
	}
}

func TestChatUnknownModelIs404(t *testing.T) {
	s := newServer(t.TempDir())
	rec := postChat(t, s, "nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestChatRequiresModel(t *testing.T) {
	s := newServer(t.TempDir())
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"messages": []}`))
	rec := httptest.NewRecorder()
	s.handleChat(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestModelsStripsSequenceNumbers(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mock-judge.1.json", `{}`)
	writeFixture(t, dir, "mock-judge.json", `{}`)
	writeFixture(t, dir, "mock-writer.md", "draft")
	s := newServer(dir)

	rec := httptest.NewRecorder()
	s.handleModels(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))

	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Data) != 2 {
		t.Fatalf("expected 2 models, got %d", len(list.Data))
	}
	if list.Data[0].ID != "mock-judge" || list.Data[1].ID != "mock-writer" {
		t.Errorf("unexpected model list: %+v", list.Data)
	}
}

func TestStatsCountsCalls(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mock-writer.md", "draft")
	s := newServer(dir)

	postChat(t, s, "mock-writer")
	postChat(t, s, "mock-writer")

	rec := httptest.NewRecorder()
	s.handleStats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	var stats map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats["mock-writer"] != 2 {
		t.Errorf("expected 2 calls, got %d", stats["mock-writer"])
	}
}
