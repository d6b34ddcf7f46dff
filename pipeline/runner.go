// Package pipeline runs the end-to-end article generation flow: write a
// draft, mine the sources for specification values, vote a consistent
// record together, fill the gaps, verify the draft still names the right
// vehicle, and grade it before it ships. Generation is the only step that
// can fail a run; every enrichment step degrades to "contributed nothing".
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/autopress/consensus"
	"github.com/c360studio/autopress/entity"
	"github.com/c360studio/autopress/extract"
	"github.com/c360studio/autopress/gapfill"
	"github.com/c360studio/autopress/judge"
	"github.com/c360studio/autopress/llm"
	"github.com/c360studio/autopress/render"
	"github.com/c360studio/autopress/spec"
)

// Input is one generation request.
type Input struct {
	// Title is the trusted source title naming the vehicle.
	Title string
	// Transcript is the primary source text (video transcript or notes).
	Transcript string
	// ContextTexts are additional background texts (web context, search
	// snippets), in decreasing trust order.
	ContextTexts []string
}

// Artifact is the result of one run.
type Artifact struct {
	Title          string           `json:"title"`
	Content        string           `json:"content"`
	HTML           string           `json:"html,omitempty"`
	Entities       entity.EntitySet `json:"entities"`
	Record         spec.Record      `json:"record"`
	Coverage       spec.Coverage    `json:"coverage"`
	Refill         gapfill.Result   `json:"refill"`
	EntityWarnings []string         `json:"entity_warnings,omitempty"`
	Judge          judge.Verdict    `json:"judge"`
	Attempts       int              `json:"attempts"`
}

// Runner executes generation runs. Safe for concurrent use: runs share no
// mutable state.
type Runner struct {
	client    *llm.Client
	extractor *entity.Extractor
	filler    *gapfill.Filler
	judge     *judge.Judge
	renderer  *render.Renderer
	metrics   *Metrics
	logger    *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithEntityExtractor injects the entity extractor (and its alias table).
func WithEntityExtractor(x *entity.Extractor) Option {
	return func(r *Runner) { r.extractor = x }
}

// WithFiller injects a configured gap filler.
func WithFiller(f *gapfill.Filler) Option {
	return func(r *Runner) { r.filler = f }
}

// WithJudge injects a configured judge.
func WithJudge(j *judge.Judge) Option {
	return func(r *Runner) { r.judge = j }
}

// WithMetrics wires prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner builds a Runner around an LLM client with default collaborators.
func NewRunner(client *llm.Client, opts ...Option) *Runner {
	r := &Runner{
		client:    client,
		extractor: entity.NewExtractor(nil),
		filler:    gapfill.NewFiller(client),
		judge:     judge.New(client),
		renderer:  render.New(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one generation. Article generation fails closed — no draft,
// no artifact. Everything after it fails open and is reported on the
// artifact instead.
func (r *Runner) Run(ctx context.Context, in Input) (*Artifact, error) {
	if strings.TrimSpace(in.Title) == "" {
		r.metrics.observeRun("error")
		return nil, fmt.Errorf("input title is required")
	}

	entities := r.extractor.ExtractEntities(in.Title)
	r.logger.Info("run started", "title", in.Title, "vehicle", entities.FullName())

	content, err := r.generate(ctx, in, entities)
	if err != nil {
		r.metrics.observeRun("error")
		return nil, fmt.Errorf("generate article: %w", err)
	}

	record := r.buildRecord(in, entities)
	refill := r.filler.Refill(ctx, record, content, in.Transcript)
	coverage := spec.CalculateCoverage(record)

	var warnings []string
	check := r.extractor.Validate(in.Title, content)
	if !check.Valid {
		warnings = check.Mismatches
		if check.Fixed {
			r.logger.Warn("entity mismatch auto-fixed", "mismatches", check.Mismatches)
			content = check.FixedContent
		}
	}

	loop := r.judge.JudgeAndImprove(ctx, in.Title, content, record)
	content = loop.Content

	html, err := r.renderer.HTML(content)
	if err != nil {
		// Rendering is a convenience output; the markdown still ships.
		r.logger.Warn("HTML rendering failed", "error", err)
		html = ""
	}

	artifact := &Artifact{
		Title:          in.Title,
		Content:        content,
		HTML:           html,
		Entities:       entities,
		Record:         record,
		Coverage:       coverage,
		Refill:         refill,
		EntityWarnings: warnings,
		Judge:          loop.Final,
		Attempts:       loop.Attempts,
	}

	r.metrics.observeRun("success")
	r.metrics.observeResult(loop.Final.Overall, coverage.Percent)
	r.logger.Info("run complete",
		"coverage", coverage.Percent,
		"judge_score", loop.Final.Overall,
		"improve_attempts", loop.Attempts,
		"entity_warnings", len(warnings))
	return artifact, nil
}

// generate asks the writing capability for the article draft.
func (r *Runner) generate(ctx context.Context, in Input, entities entity.EntitySet) (string, error) {
	var b strings.Builder
	b.WriteString("Write a publication-ready article in markdown about the vehicle below.\n")
	b.WriteString("Start with a single # heading naming the vehicle. Use short sections with ## headings.\n")
	b.WriteString("Only state facts present in the source material. Do not invent specifications.\n\n")
	if name := entities.FullName(); name != "" {
		b.WriteString("Vehicle: ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	b.WriteString("Source title: ")
	b.WriteString(in.Title)
	b.WriteString("\n\n--- TRANSCRIPT ---\n")
	b.WriteString(in.Transcript)
	for _, ctxText := range in.ContextTexts {
		b.WriteString("\n\n--- BACKGROUND ---\n")
		b.WriteString(ctxText)
	}

	resp, err := r.client.Complete(ctx, llm.Request{
		Capability: llm.CapabilityWriting,
		Messages: []llm.Message{
			{Role: "system", Content: "You are an automotive journalist writing factual, engaging review articles."},
			{Role: "user", Content: b.String()},
		},
		Temperature: llm.Float(0.7),
	})
	if err != nil {
		return "", err
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", fmt.Errorf("empty draft from %s", resp.Provider)
	}
	return content, nil
}

// unitHints drives unit inference for fields whose numerals can arrive
// bare. The fallback is the unit of the dominant source market.
var unitHints = map[spec.FieldKey]struct {
	tokens   []string
	fallback string
}{
	spec.FieldTorque:   {[]string{"Nm", "lb-ft"}, "Nm"},
	spec.FieldRange:    {[]string{"km", "mi"}, "km"},
	spec.FieldBattery:  {[]string{"kWh"}, "kWh"},
	spec.FieldTopSpeed: {[]string{"km/h", "mph"}, "km/h"},
}

// buildRecord extracts candidates from every source and resolves them into
// a fresh record. The title's entities seed make, model and year; the
// transcript is the first (most trusted) voting source.
func (r *Runner) buildRecord(in Input, entities entity.EntitySet) spec.Record {
	record := spec.NewRecord()
	record.SetIfUnfilled(spec.FieldMake, entities.Brand)
	record.SetIfUnfilled(spec.FieldModel, entities.Model)
	record.SetIfUnfilled(spec.FieldYear, entities.Year)

	sources := append([]string{in.Transcript}, in.ContextTexts...)
	combined := strings.Join(sources, "\n\n")

	for _, field := range extract.SupportedFields() {
		var candidates []string
		for _, source := range sources {
			candidates = append(candidates, extract.Values(extract.Extract(source, field))...)
		}
		if len(candidates) == 0 {
			continue
		}

		var winner string
		var ok bool
		if field == spec.FieldDrivetrain {
			winner, ok = consensus.ResolveDrivetrain(candidates)
		} else {
			winner, ok = consensus.Resolve(candidates)
		}
		if !ok {
			continue
		}
		record.SetIfUnfilled(field, ensureUnit(field, winner, combined))
	}
	return record
}

// ensureUnit attaches an inferred unit to a bare numeric winner.
func ensureUnit(field spec.FieldKey, winner, sourceText string) string {
	hint, ok := unitHints[field]
	if !ok {
		return winner
	}
	lower := strings.ToLower(winner)
	for _, token := range hint.tokens {
		if strings.Contains(lower, strings.ToLower(token)) {
			return winner
		}
	}
	unit := consensus.InferUnit(sourceText, winner, hint.tokens, hint.fallback)
	return strings.TrimSpace(winner) + " " + unit
}
