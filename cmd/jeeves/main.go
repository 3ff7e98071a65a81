// Command jeeves is the entry point for the personal-assistant core:
// wiring every component together and exposing the "serve", "ask",
// "sessions", and "version" subcommands.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/eddmann/jeeves/internal/agent"
	"github.com/eddmann/jeeves/internal/agentlock"
	"github.com/eddmann/jeeves/internal/buildinfo"
	"github.com/eddmann/jeeves/internal/compaction"
	"github.com/eddmann/jeeves/internal/config"
	"github.com/eddmann/jeeves/internal/heartbeat"
	"github.com/eddmann/jeeves/internal/llmclient"
	"github.com/eddmann/jeeves/internal/memoryindex"
	"github.com/eddmann/jeeves/internal/scheduler"
	"github.com/eddmann/jeeves/internal/session"
	"github.com/eddmann/jeeves/internal/workspace"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := newLogger()

	if flag.NArg() == 0 {
		printUsage()
		return
	}

	switch flag.Arg(0) {
	case "serve":
		runServe(logger, *configPath)
	case "ask":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: jeeves ask <question>")
			os.Exit(1)
		}
		runAsk(logger, *configPath, strings.Join(flag.Args()[1:], " "))
	case "sessions":
		runSessions(logger, *configPath, flag.Args()[1:])
	case "version":
		fmt.Println(buildinfo.BuildInfo()["version"])
		for k, v := range buildinfo.BuildInfo() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Jeeves - personal assistant core")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Run the scheduler and heartbeat against the workspace")
	fmt.Println("  ask       Ask a single question (one-shot session)")
	fmt.Println("  sessions  List or dump session transcripts")
	fmt.Println("  version   Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       slog.LevelInfo,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

func loadConfig(logger *slog.Logger, configPath string) *config.Config {
	path, err := config.FindConfig(configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("failed to load config", "path", path, "error", err)
		os.Exit(1)
	}
	if level, err := config.ParseLogLevel(cfg.LogLevel); err == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}
	return cfg
}

// components bundles every collaborator built once per process and
// shared across the loop, scheduler, and heartbeat.
type components struct {
	logger    *slog.Logger
	cfg       *config.Config
	llm       llmclient.Client
	sessions  *session.Store
	index     *memoryindex.Index
	loop      *agent.Loop
	mutex     *agentlock.Mutex
	sessDir   string
}

func buildComponents(logger *slog.Logger, cfg *config.Config) (*components, error) {
	sessionsDir := filepath.Join(cfg.DataDir, "sessions")
	sessionStore, err := session.New(sessionsDir, logger)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	llm := llmclient.NewAnthropicClient(llmclient.AnthropicConfig{
		APIKey:  cfg.Anthropic.APIKey,
		Model:   cfg.Anthropic.Model,
		BaseURL: cfg.Anthropic.BaseURL,
	}, logger)

	engine := compaction.New(compaction.NewLLMSummarizer(llm, cfg.Anthropic.Model), logger)

	var embedder memoryindex.Embedder = memoryindex.NoopEmbedder{}
	if cfg.Embeddings.Configured() {
		embedder = memoryindex.NewOpenAIEmbedder(cfg.Embeddings.APIKey, cfg.Embeddings.Model)
	}
	index, err := memoryindex.Open(filepath.Join(cfg.DataDir, "memory.db"), embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("memory index: %w", err)
	}

	tools := agent.NewRegistry()
	tools.Register(memoryindex.NewSearchTool(index))

	loop := agent.NewLoop(logger, sessionStore, engine, llm, tools, cfg.Anthropic.Model, cfg.Workspace.Dir)
	loop.SetResyncer(&indexResyncer{logger: logger, index: index, cfg: cfg, sessionsDir: sessionsDir})

	return &components{
		logger:   logger,
		cfg:      cfg,
		llm:      llm,
		sessions: sessionStore,
		index:    index,
		loop:     loop,
		mutex:    agentlock.New(),
		sessDir:  sessionsDir,
	}, nil
}

// indexResyncer implements agent.Resyncer, re-syncing the memory index
// in the background after compaction. Failures are logged only — a
// failed resync never fails the turn that triggered it.
type indexResyncer struct {
	logger      *slog.Logger
	index       *memoryindex.Index
	cfg         *config.Config
	sessionsDir string
}

func (r *indexResyncer) RequestResync() {
	go func() {
		err := r.index.Sync(context.Background(), memoryindex.SyncOptions{
			WorkspaceDir: r.cfg.Workspace.Dir,
			SessionsDir:  r.sessionsDir,
		})
		if err != nil {
			r.logger.Error("memory index resync failed", "error", err)
		}
	}()
}

// stdoutChannel is the default OutboundChannel: it prints a scheduled
// job's or heartbeat's reply to stdout. Real chat transports are an
// external collaborator's job (see SPEC_FULL.md §9's non-goals); this
// keeps "jeeves serve" usable standalone.
type stdoutChannel struct{}

func (stdoutChannel) Send(ctx context.Context, text string) error {
	fmt.Println(text)
	return nil
}

func runServe(logger *slog.Logger, configPath string) {
	cfg := loadConfig(logger, configPath)
	comps, err := buildComponents(logger, cfg)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	channel := stdoutChannel{}

	cronStore, err := scheduler.OpenStore(filepath.Join(cfg.DataDir, "jobs.json"))
	if err != nil {
		logger.Error("failed to open cron store", "error", err)
		os.Exit(1)
	}
	sched := scheduler.New(logger, cronStore, func(ctx context.Context, job *scheduler.Job) error {
		reply, err := agentlock.WithLock(ctx, comps.mutex, func(ctx context.Context) (string, error) {
			return comps.loop.RunAgent(ctx, "cron_"+job.ID, llmclient.NewTextMessage(llmclient.RoleUser, job.Message))
		})
		if err != nil {
			return err
		}
		return channel.Send(ctx, reply)
	})
	hb, err := heartbeat.New(logger, comps.mutex, comps.loop, channel, cfg.Workspace.Dir, cfg.Heartbeat)
	if err != nil {
		logger.Error("failed to initialize heartbeat", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The scheduler tick loop and the heartbeat ticker are supervised
	// together so either's goroutine exiting unexpectedly tears down
	// the other rather than leaving a silent half-running process.
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		sched.Start()
		<-groupCtx.Done()
		sched.Stop()
		return nil
	})
	group.Go(func() error {
		hb.Start()
		<-groupCtx.Done()
		hb.Stop()
		return nil
	})

	logger.Info("jeeves serving", "workspace", cfg.Workspace.Dir, "data_dir", cfg.DataDir)

	<-ctx.Done()
	logger.Info("shutting down")
	if err := group.Wait(); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
}

func runAsk(logger *slog.Logger, configPath, question string) {
	cfg := loadConfig(logger, configPath)
	comps, err := buildComponents(logger, cfg)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	reply, err := comps.loop.RunAgent(context.Background(), "cli-ask", llmclient.NewTextMessage(llmclient.RoleUser, question))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(reply)
}

func runSessions(logger *slog.Logger, configPath string, args []string) {
	cfg := loadConfig(logger, configPath)
	sessionsDir := filepath.Join(cfg.DataDir, "sessions")

	store, err := session.New(sessionsDir, logger)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		os.Exit(1)
	}

	groups, err := session.ListGroups(sessionsDir)
	if err != nil {
		logger.Error("failed to list sessions", "error", err)
		os.Exit(1)
	}

	if len(args) == 0 {
		for key := range groups {
			fmt.Println(key)
		}
		return
	}

	key := args[0]
	messages, err := store.Get(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(workspace.RenderTranscriptMarkdown(key, messages))
}
