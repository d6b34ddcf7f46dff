package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/autopress/llm"
	"github.com/c360studio/autopress/spec"
)

type judgeProvider struct{}

func (judgeProvider) Name() string                { return "judge-test" }
func (judgeProvider) BuildURL(base string) string { return base }
func (judgeProvider) SetHeaders(_ *http.Request)  {}

func (judgeProvider) BuildRequestBody(model string, messages []llm.Message, _ *float64, _ int) ([]byte, error) {
	return json.Marshal(map[string]any{"model": model, "messages": messages})
}

func (judgeProvider) ParseResponse(body []byte, _ string) (*llm.Response, error) {
	var resp struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &llm.Response{Content: resp.Content}, nil
}

func init() {
	llm.RegisterProvider(judgeProvider{})
}

// newJudge wires both the judging and writing capabilities to the same
// test server.
func newJudge(t *testing.T, url string, opts ...Option) *Judge {
	t.Helper()
	registry := llm.NewRegistry(
		map[llm.Capability][]string{
			llm.CapabilityJudging: {"ep"},
			llm.CapabilityWriting: {"ep"},
		},
		map[string]*llm.EndpointConfig{
			"ep": {Provider: "judge-test", URL: url, Model: "m"},
		},
	)
	client := llm.NewClient(registry, llm.WithRetryConfig(llm.RetryConfig{
		MaxAttempts: 1, BackoffBase: 1, BackoffMultiplier: 1, MaxBackoff: 1,
	}))
	return New(client, opts...)
}

func scoresReply(acc, eng, comp, read, seo float64, issues ...string) string {
	v := map[string]any{
		"scores": map[string]float64{
			"accuracy": acc, "engagement": eng, "completeness": comp,
			"readability": read, "seo": seo,
		},
		"issues": issues,
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func serveReplies(t *testing.T, replies ...string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		idx := int(n) - 1
		if idx >= len(replies) {
			idx = len(replies) - 1
		}
		body, _ := json.Marshal(map[string]string{"content": replies[idx]})
		w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestJudgeWeightedOverall(t *testing.T) {
	server, _ := serveReplies(t, scoresReply(10, 8, 6, 4, 2))
	j := newJudge(t, server.URL)

	v := j.Judge(context.Background(), "2025 ZEEKR 7X Review", "# article", nil)

	// 10*.30 + 8*.25 + 6*.20 + 4*.15 + 2*.10 = 7.0
	assert.InDelta(t, 7.0, v.Overall, 1e-9)
	assert.True(t, v.Passed)
	assert.Empty(t, v.Err)
}

func TestJudgeClampsAndDefaults(t *testing.T) {
	reply := `{"scores": {"accuracy": 15, "engagement": -3, "seo": 8}, "issues": []}`
	server, _ := serveReplies(t, reply)
	j := newJudge(t, server.URL)

	v := j.Judge(context.Background(), "title", "content", nil)

	assert.Equal(t, 10.0, v.Scores[DimensionAccuracy], "clamped high")
	assert.Equal(t, 1.0, v.Scores[DimensionEngagement], "clamped low")
	assert.Equal(t, 5.0, v.Scores[DimensionCompleteness], "missing defaults neutral")
	assert.Equal(t, 5.0, v.Scores[DimensionReadability])
	assert.Equal(t, 8.0, v.Scores[DimensionSEO])
}

func TestJudgeFailsOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	j := newJudge(t, server.URL)
	v := j.Judge(context.Background(), "title", "content", nil)

	assert.True(t, v.Passed)
	assert.NotEmpty(t, v.Err)
	assert.InDelta(t, 5.0, v.Overall, 1e-9)
}

func TestJudgeFailsOpenOnGarbageReply(t *testing.T) {
	server, _ := serveReplies(t, "I refuse to grade this.")
	j := newJudge(t, server.URL)

	v := j.Judge(context.Background(), "title", "content", nil)
	assert.True(t, v.Passed)
	assert.NotEmpty(t, v.Err)
}

func TestJudgeAndImprovePassingDraftSkipsLoop(t *testing.T) {
	server, calls := serveReplies(t, scoresReply(9, 9, 9, 9, 9))
	j := newJudge(t, server.URL)

	result := j.JudgeAndImprove(context.Background(), "title", "good draft", nil)

	assert.Equal(t, "good draft", result.Content)
	assert.Equal(t, 1, result.Attempts, "the initial judging pass is attempt one")
	assert.False(t, result.Improved)
	assert.True(t, result.Final.Passed)
	assert.Equal(t, int64(1), calls.Load(), "single judge call, no rewrites")
}

func TestJudgeAndImproveAcceptsBetterDraft(t *testing.T) {
	server, calls := serveReplies(t,
		scoresReply(5, 5, 5, 5, 5, "too thin"), // initial verdict: fails
		"# Revised draft",                      // improvement reply
		scoresReply(9, 9, 9, 9, 9),             // re-judge: passes
	)
	j := newJudge(t, server.URL)

	result := j.JudgeAndImprove(context.Background(), "title", "weak draft", nil)

	assert.Equal(t, "# Revised draft", result.Content)
	assert.Equal(t, 2, result.Attempts)
	assert.True(t, result.Improved)
	assert.True(t, result.Final.Passed)
	require.Len(t, result.History, 2)
	assert.Equal(t, int64(3), calls.Load())
}

func TestJudgeAndImproveKeepsBestDraft(t *testing.T) {
	server, _ := serveReplies(t,
		scoresReply(6, 6, 6, 6, 6, "issue"), // initial: 6.0, fails
		"# Worse rewrite",
		scoresReply(4, 4, 4, 4, 4), // rewrite grades worse
		"# Second rewrite",
		scoresReply(4, 4, 4, 4, 4), // still worse
	)
	j := newJudge(t, server.URL)

	result := j.JudgeAndImprove(context.Background(), "title", "original draft", nil)

	// Neither rewrite beat the original, so it survives.
	assert.Equal(t, "original draft", result.Content)
	assert.Equal(t, 3, result.Attempts)
	assert.False(t, result.Improved)
	assert.InDelta(t, 6.0, result.Final.Overall, 1e-9)
	assert.False(t, result.Final.Passed)
	assert.Len(t, result.History, 3)
}

func TestJudgeAndImproveBoundedAttempts(t *testing.T) {
	server, calls := serveReplies(t,
		scoresReply(2, 2, 2, 2, 2, "bad"),
		"# rewrite",
		scoresReply(3, 3, 3, 3, 3),
		"# rewrite again",
		scoresReply(3, 3, 3, 3, 3),
	)
	j := newJudge(t, server.URL, WithMaxAttempts(2))

	result := j.JudgeAndImprove(context.Background(), "title", "bad draft", nil)

	assert.Equal(t, 3, result.Attempts, "initial pass plus two re-judges")
	// 1 judge + 2 * (improve + re-judge) = 5 calls, never more.
	assert.Equal(t, int64(5), calls.Load())
}

func TestJudgeAndImproveRejectsCollapsedRevision(t *testing.T) {
	long := "# Original\n\n"
	for i := 0; i < 20; i++ {
		long += "A solid paragraph about the vehicle under review.\n\n"
	}
	server, calls := serveReplies(t,
		scoresReply(4, 4, 4, 4, 4, "thin"),
		"# ok", // rewrite collapsed to almost nothing
	)
	j := newJudge(t, server.URL)

	result := j.JudgeAndImprove(context.Background(), "title", long, nil)

	// The collapsed rewrite is rejected and the loop stops immediately.
	assert.Equal(t, long, result.Content)
	assert.Equal(t, 1, result.Attempts, "the rejected rewrite was never judged")
	assert.False(t, result.Improved)
	assert.Equal(t, int64(2), calls.Load())
}

func TestJudgeIncludesRecordInPrompt(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []llm.Message `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		prompt = req.Messages[len(req.Messages)-1].Content
		body, _ := json.Marshal(map[string]string{"content": scoresReply(9, 9, 9, 9, 9)})
		w.Write(body)
	}))
	defer server.Close()

	record := spec.NewRecord()
	record.SetIfUnfilled(spec.FieldHorsepower, "435 HP")

	j := newJudge(t, server.URL)
	j.Judge(context.Background(), "title", "content", record)

	assert.Contains(t, prompt, "horsepower: 435 HP")
	assert.NotContains(t, prompt, "torque:", "unfilled fields stay out of the prompt")
}

// structuredReply builds a grader reply in the full per-dimension shape:
// every dimension scores the same, with feedback on accuracy.
func structuredReply(score float64, accuracyFeedback string, suggestions ...string) string {
	dims := map[string]any{}
	for _, d := range []string{"accuracy", "engagement", "completeness", "readability", "seo"} {
		entry := map[string]any{"score": score}
		if d == "accuracy" && accuracyFeedback != "" {
			entry["feedback"] = accuracyFeedback
		}
		dims[d] = entry
	}
	b, _ := json.Marshal(map[string]any{
		"scores":                  dims,
		"critical_issues":         []string{},
		"improvement_suggestions": suggestions,
	})
	return string(b)
}

// servePromptCapture serves scripted replies and records the user prompt of
// every request.
func servePromptCapture(t *testing.T, replies ...string) (*httptest.Server, *[]string) {
	t.Helper()
	var prompts []string
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []llm.Message `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		prompts = append(prompts, req.Messages[len(req.Messages)-1].Content)

		n := calls.Add(1)
		idx := int(n) - 1
		if idx >= len(replies) {
			idx = len(replies) - 1
		}
		body, _ := json.Marshal(map[string]string{"content": replies[idx]})
		w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server, &prompts
}

func TestJudgeAndImproveRevisesLatestDraft(t *testing.T) {
	server, prompts := servePromptCapture(t,
		structuredReply(6, "cite the claimed range", "open with the price"), // initial: fails
		"# First rewrite\n\nStill thin.",
		scoresReply(4, 4, 4, 4, 4), // worse than the original
		"# Second rewrite\n\nLonger again here.",
		scoresReply(5, 5, 5, 5, 5), // still worse
	)
	j := newJudge(t, server.URL)

	result := j.JudgeAndImprove(context.Background(), "title", "# Original draft\n\nShort.", nil)

	// The best draft ships, but each revision builds on the previous one.
	assert.Contains(t, result.Content, "Original draft")
	assert.Equal(t, 3, result.Attempts)
	assert.False(t, result.Improved)

	require.Len(t, *prompts, 5)
	firstImprove := (*prompts)[1]
	assert.Contains(t, firstImprove, "cite the claimed range", "dimension feedback reaches the revision prompt")
	assert.Contains(t, firstImprove, "open with the price", "suggestions reach the revision prompt")

	secondImprove := (*prompts)[3]
	assert.Contains(t, secondImprove, "# First rewrite")
	assert.NotContains(t, secondImprove, "Original draft")
}

func TestParseVerdictStructuredScores(t *testing.T) {
	reply := `{"scores": {"accuracy": {"score": 9, "feedback": "numbers check out"}, "engagement": 4},` +
		` "critical_issues": ["weak intro"], "improvement_suggestions": ["add a verdict section"]}`

	v, err := parseVerdict(reply)
	require.NoError(t, err)

	assert.Equal(t, 9.0, v.Scores[DimensionAccuracy])
	assert.Equal(t, "numbers check out", v.Feedback[DimensionAccuracy])
	assert.Equal(t, 4.0, v.Scores[DimensionEngagement], "bare numbers still parse")
	assert.Equal(t, 5.0, v.Scores[DimensionSEO], "missing dimension defaults neutral")
	assert.Equal(t, []string{"weak intro"}, v.Issues)
	assert.Equal(t, []string{"add a verdict section"}, v.Suggestions)
}

func TestWeakestDimensions(t *testing.T) {
	scores := map[Dimension]float64{
		DimensionAccuracy:     9,
		DimensionEngagement:   3,
		DimensionCompleteness: 5,
		DimensionReadability:  3,
		DimensionSEO:          8,
	}
	got := weakestDimensions(scores, 3)
	assert.Equal(t, []Dimension{DimensionEngagement, DimensionReadability, DimensionCompleteness}, got)
}

func TestParseVerdictFromFencedReply(t *testing.T) {
	reply := "Here is my assessment:\n```json\n" +
		scoresReply(8, 7, 6, 9, 5, "headline too long") + "\n```"
	v, err := parseVerdict(reply)
	require.NoError(t, err)
	assert.Equal(t, []string{"headline too long"}, v.Issues)
	assert.InDelta(t, 8*.30+7*.25+6*.20+9*.15+5*.10, v.Overall, 1e-9)
}
