package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"github.com/c360studio/autopress/config"
	"github.com/c360studio/autopress/entity"
	"github.com/c360studio/autopress/gapfill"
	"github.com/c360studio/autopress/judge"
	"github.com/c360studio/autopress/llm"
	"github.com/c360studio/autopress/pipeline"
	"github.com/c360studio/autopress/storage"
	"github.com/c360studio/autopress/webcontext"
)

func runCmd(configPath, logLevel *string) *cobra.Command {
	var (
		title        string
		contextGlobs []string
		contextURLs  []string
		outPath      string
		htmlPath     string
		noStore      bool
	)

	cmd := &cobra.Command{
		Use:   "run TRANSCRIPT_FILE",
		Short: "Generate one article from a transcript",
		Long: `Run generates one article. The transcript file is the primary source;
--title names the vehicle and is trusted over everything else. Extra
background text comes from local files (--context, glob patterns) and
web pages (--url, fetched and reduced to readable text).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), generateOpts{
				configPath:   *configPath,
				logLevel:     *logLevel,
				transcript:   args[0],
				title:        title,
				contextGlobs: contextGlobs,
				contextURLs:  contextURLs,
				outPath:      outPath,
				htmlPath:     htmlPath,
				noStore:      noStore,
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Source title naming the vehicle (required)")
	cmd.Flags().StringArrayVar(&contextGlobs, "context", nil, "Glob pattern for background text files (repeatable)")
	cmd.Flags().StringArrayVar(&contextURLs, "url", nil, "Web page URL for background context (repeatable, HTTPS only)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the article markdown to this file instead of stdout")
	cmd.Flags().StringVar(&htmlPath, "html", "", "Also write rendered HTML to this file")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Skip persisting the article even when NATS is configured")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

type generateOpts struct {
	configPath   string
	logLevel     string
	transcript   string
	title        string
	contextGlobs []string
	contextURLs  []string
	outPath      string
	htmlPath     string
	noStore      bool
}

func runGenerate(ctx context.Context, opts generateOpts) error {
	logger := newLogger(opts.logLevel)

	cfg, err := loadConfig(opts.configPath, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	transcript, err := os.ReadFile(opts.transcript)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	aliases, err := loadAliases(cfg)
	if err != nil {
		return err
	}
	if cfg.Entities.Watch && cfg.Entities.AliasFile != "" {
		go func() {
			if err := entity.WatchAliasFile(ctx, cfg.Entities.AliasFile, aliases, logger); err != nil && ctx.Err() == nil {
				logger.Warn("alias file watch stopped", "error", err)
			}
		}()
	}

	metrics := pipeline.NewMetrics(nil)
	client := llm.NewClient(cfg.Registry(),
		llm.WithLogger(logger),
		llm.WithObserver(metrics.Observer()),
		llm.WithHTTPClient(&http.Client{Timeout: cfg.LLM.Timeout}),
	)

	contexts, err := gatherContexts(ctx, cfg, opts, logger)
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(client,
		pipeline.WithEntityExtractor(entity.NewExtractor(aliases)),
		pipeline.WithFiller(gapfill.NewFiller(client,
			gapfill.WithThreshold(cfg.Pipeline.CoverageThreshold),
			gapfill.WithLogger(logger))),
		pipeline.WithJudge(judge.New(client,
			judge.WithPassThreshold(cfg.Pipeline.JudgePassScore),
			judge.WithMaxAttempts(cfg.Pipeline.MaxImproveAttempts),
			judge.WithLogger(logger))),
		pipeline.WithMetrics(metrics),
		pipeline.WithLogger(logger),
	)

	artifact, err := runner.Run(ctx, pipeline.Input{
		Title:        opts.title,
		Transcript:   string(transcript),
		ContextTexts: contexts,
	})
	if err != nil {
		return err
	}

	if err := writeOutputs(artifact, opts); err != nil {
		return err
	}

	if cfg.NATS.URL != "" && !opts.noStore {
		if err := storeArtifact(ctx, cfg.NATS.URL, artifact); err != nil {
			// The article is already on disk; persistence is best effort.
			logger.Warn("failed to store article", "error", err)
		}
	}

	if !artifact.Judge.Passed {
		logger.Warn("article shipped below the quality bar",
			"score", artifact.Judge.Overall,
			"attempts", artifact.Attempts)
	}
	return nil
}

func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.NewLoader(logger).Load()
}

func loadAliases(cfg *config.Config) (*entity.AliasTable, error) {
	if cfg.Entities.AliasFile == "" {
		return entity.DefaultAliasTable(), nil
	}
	table, err := entity.LoadAliasFile(cfg.Entities.AliasFile)
	if err != nil {
		return nil, fmt.Errorf("load alias file: %w", err)
	}
	return table, nil
}

// gatherContexts assembles background texts: local files first (more
// curated), then fetched web pages.
func gatherContexts(ctx context.Context, cfg *config.Config, opts generateOpts, logger *slog.Logger) ([]string, error) {
	var contexts []string

	for _, pattern := range opts.contextGlobs {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad context pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			logger.Warn("context pattern matched no files", "pattern", pattern)
		}
		for _, path := range matches {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read context file %s: %w", path, err)
			}
			if text := strings.TrimSpace(string(data)); text != "" {
				contexts = append(contexts, text)
			}
		}
	}

	if len(opts.contextURLs) > 0 {
		gatherer := webcontext.NewGatherer(
			webcontext.WithFetcher(webcontext.NewFetcher(cfg.Web.Timeout, cfg.Web.MaxPageBytes)),
			webcontext.WithLimits(cfg.Web.MaxContextChars/2, cfg.Web.MaxContextChars),
		)
		if web := gatherer.Gather(ctx, opts.contextURLs); web != "" {
			contexts = append(contexts, web)
		}
	}

	return contexts, nil
}

func writeOutputs(artifact *pipeline.Artifact, opts generateOpts) error {
	if opts.outPath != "" {
		if err := os.WriteFile(opts.outPath, []byte(artifact.Content), 0644); err != nil {
			return fmt.Errorf("write article: %w", err)
		}
	} else {
		fmt.Println(artifact.Content)
	}

	if opts.htmlPath != "" && artifact.HTML != "" {
		if err := os.WriteFile(opts.htmlPath, []byte(artifact.HTML), 0644); err != nil {
			return fmt.Errorf("write HTML: %w", err)
		}
	}
	return nil
}

func storeArtifact(ctx context.Context, natsURL string, artifact *pipeline.Artifact) error {
	nc, err := nats.Connect(natsURL, nats.Name(appName))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}

	store, err := storage.NewStore(ctx, js)
	if err != nil {
		return err
	}

	id, err := store.Create(ctx, &storage.Article{
		Title:          artifact.Title,
		Content:        artifact.Content,
		HTML:           artifact.HTML,
		Record:         artifact.Record,
		Coverage:       artifact.Coverage,
		Refill:         artifact.Refill,
		EntityWarnings: artifact.EntityWarnings,
		Judge:          artifact.Judge,
		Attempts:       artifact.Attempts,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "stored article %s\n", id)
	return nil
}
