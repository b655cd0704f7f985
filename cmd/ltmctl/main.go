// Command ltmctl is a thin binary proving the engine links and runs end to
// end: open the store, mint a session, run injection, or run a dream
// cycle. It is not the CLI surface spec.md §1 names out of scope — just
// enough main() to exercise the pieces together.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mattgrain/animaltm/internal/store"
	"github.com/mattgrain/animaltm/pkg/config"
	"github.com/mattgrain/animaltm/pkg/diary"
	"github.com/mattgrain/animaltm/pkg/dream"
	"github.com/mattgrain/animaltm/pkg/embed"
	"github.com/mattgrain/animaltm/pkg/injection"
	"github.com/mattgrain/animaltm/pkg/integrity"
	"github.com/mattgrain/animaltm/pkg/memory"
	"github.com/mattgrain/animaltm/pkg/session"
	"github.com/mattgrain/animaltm/pkg/tier"
)

func main() {
	var (
		dbPath     = flag.String("db", "./.ltm/memory.db", "path to the SQLite store")
		configPath = flag.String("config", "./.ltm/config.yaml", "path to the YAML config file")
		agentName  = flag.String("agent", "default-agent", "agent name")
		projectDir = flag.String("project-dir", "", "project working directory (empty disables project scoping)")
		cmd        = flag.String("cmd", "session-start", "one of: session-start, dream, gc, integrity, remember")
		resume     = flag.Bool("resume", false, "resume an incomplete dream session")
		restart    = flag.Bool("restart", false, "discard an incomplete dream session and start over")
		content    = flag.String("content", "", "memory content, for -cmd remember")
		kind       = flag.String("kind", string(store.KindLearnings), "memory kind, for -cmd remember")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(*dbPath, *configPath, *agentName, *projectDir, *cmd, *content, *kind, *resume, *restart, logger); err != nil {
		logger.Error("ltmctl failed", "error", err)
		os.Exit(1)
	}
}

func run(dbPath, configPath, agentName, projectDir, cmd, content, kind string, resume, restart bool, logger *slog.Logger) error {
	cfg, err := config.NewLoader(configPath).Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	s, err := store.NewSQLiteStoreWithDSN(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	agent, err := resolveAgent(s, agentName)
	if err != nil {
		return fmt.Errorf("resolve agent: %w", err)
	}

	var projectID string
	if projectDir != "" {
		project, err := resolveProject(s, projectDir)
		if err != nil {
			return fmt.Errorf("resolve project: %w", err)
		}
		projectID = project.ID
	}

	now := time.Now()
	embedFn := embed.Func((embed.Hashing{}).Embed)
	diaryStore := diary.New(defaultDiaryDir())

	switch cmd {
	case "session-start":
		return runSessionStart(s, agent.ID, projectID, projectDir, agent.Name, embedFn, cfg, agent.SigningKey, now, logger)
	case "dream":
		return runDream(s, diaryStore, agent.ID, projectID, cfg, resume, restart, now, logger)
	case "gc":
		return runGC(s, cfg, now, logger)
	case "integrity":
		return runIntegrity(s, agent, projectID, logger)
	case "remember":
		return runRemember(s, agent.ID, projectID, content, kind, embedFn, agent.SigningKey, now, logger)
	default:
		return fmt.Errorf("unknown -cmd %q", cmd)
	}
}

func resolveAgent(s *store.SQLiteStore, name string) (*store.Agent, error) {
	id := "agent-" + name
	agent, err := s.GetAgent(id)
	if err == nil {
		return agent, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}

	agent = &store.Agent{ID: id, Name: name, SigningKey: key}
	if err := s.SaveAgent(agent); err != nil {
		return nil, err
	}
	return agent, nil
}

func resolveProject(s *store.SQLiteStore, dir string) (*store.Project, error) {
	project, err := s.GetProjectByPath(dir)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	project = &store.Project{ID: "project-" + dir, Path: dir}
	if err := s.SaveProject(project); err != nil {
		return nil, err
	}
	return project, nil
}

func runSessionStart(s *store.SQLiteStore, agentID, projectID, projectDir, agentName string, embedFn embed.Func, cfg config.Config, signingKey []byte, now time.Time, logger *slog.Logger) error {
	current, previous, err := session.Start(s, now)
	if err != nil {
		return err
	}
	logger.Info("session started", "current", current, "previous", previous)

	injectCfg := injection.Config{
		ContextSize:    cfg.Budget.ContextSize,
		ContextPercent: cfg.Budget.ContextPercent,
		MaxOutputBytes: cfg.HookOutput.MaxOutputBytes,
		MaxMemoryChars: cfg.HookOutput.MaxMemoryChars,
	}

	result, err := injection.Run(context.Background(), s, agentID, projectID, projectDir, previous, agentName, embedFn, injectCfg, signingKey, now.UnixMilli())
	if err != nil {
		return err
	}

	fmt.Println(result.DSL)
	if result.DeferredCount > 0 {
		logger.Info("memories deferred due to budget", "count", result.DeferredCount)
	}
	return nil
}

func runDream(s *store.SQLiteStore, diaryStore *diary.Store, agentID, projectID string, cfg config.Config, resume, restart bool, now time.Time, logger *slog.Logger) error {
	dreamCfg := dream.Config{
		ProjectLookbackDays:    cfg.Dream.LookbackDays,
		N2ProcessLimit:         cfg.Dream.ProcessLimit,
		N3ContradictionThresh:  float32(cfg.Dream.SimilarityThreshold),
		RetentionDays:          cfg.Dream.RetentionDays,
		DisableN2:              cfg.Dream.DisableN2,
		DisableN3:              cfg.Dream.DisableN3,
		DisableREM:             cfg.Dream.DisableREM,
		KnownProjectNames:      cfg.Dream.KnownProjectNames,
	}

	outcome, err := dream.Run(context.Background(), s, diaryStore, agentID, projectID, dreamCfg, false, dream.StartOptions{Resume: resume, Restart: restart}, 0, now.UnixMilli())
	if err != nil {
		var incomplete *dream.ErrIncompleteSession
		if errors.As(err, &incomplete) {
			logger.Warn("incomplete dream session found; pass -resume or -restart", "session", incomplete.SessionID, "state", incomplete.State)
		}
		return err
	}

	logger.Info("dream cycle finished", "state", outcome.Session.State)
	if outcome.N2 != nil {
		logger.Info("N2 consolidation", "summary", outcome.N2.Summary)
	}
	if outcome.N3 != nil {
		logger.Info("N3 deep processing", "summary", outcome.N3.Summary)
	}
	if outcome.REM != nil {
		logger.Info("REM gathering", "summary", outcome.REM.Summary)
	}
	return nil
}

func runGC(s *store.SQLiteStore, cfg config.Config, now time.Time, logger *slog.Logger) error {
	dreamCfg := dream.Config{RetentionDays: cfg.Dream.RetentionDays}
	n, err := dream.GC(s, dreamCfg, now.UnixMilli())
	if err != nil {
		return err
	}
	logger.Info("garbage collected dream sessions", "count", n)
	return nil
}

func runIntegrity(s *store.SQLiteStore, agent *store.Agent, projectID string, logger *slog.Logger) error {
	memories, err := s.GetMemoriesForAgent(agent.ID, store.RegionAgent, "")
	if err != nil {
		return err
	}
	if projectID != "" {
		projectMemories, err := s.GetMemoriesForAgent(agent.ID, store.RegionProject, projectID)
		if err != nil {
			return err
		}
		memories = append(memories, projectMemories...)
	}

	report := integrity.Check(memories, agent.SigningKey)
	logger.Info("integrity scan complete", "checked", report.TotalChecked, "issues", len(report.Issues))
	for _, issue := range report.Issues {
		logger.Warn("integrity issue", "memory", issue.MemoryIDPrefix, "field", issue.Field, "severity", issue.Severity, "description", issue.Description)
	}
	return nil
}

func runRemember(s *store.SQLiteStore, agentID, projectID, content, kind string, embedFn embed.Func, signingKey []byte, now time.Time, logger *slog.Logger) error {
	if content == "" {
		return fmt.Errorf("-content is required for -cmd remember")
	}

	region := store.RegionAgent
	if projectID != "" {
		region = store.RegionProject
	}

	embedding, err := embedFn(context.Background(), content)
	if err != nil {
		return fmt.Errorf("embed content: %w", err)
	}

	nowMillis := now.UnixMilli()
	m := &store.Memory{
		ID:           memory.NewID(),
		AgentID:      agentID,
		Region:       region,
		ProjectID:    projectID,
		Kind:         store.Kind(kind),
		Content:      content,
		Impact:       store.ImpactLow,
		Confidence:   1.0,
		CreatedAt:    nowMillis,
		LastAccessed: nowMillis,
		Embedding:    embedding,
	}
	m.Tier = tier.ClassifyMemory(m, nowMillis)
	if len(signingKey) > 0 {
		m.Signature = integrity.Sign(m, signingKey)
	}

	if err := s.SaveMemory(m); err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	logger.Info("memory saved", "id", m.ID, "tier", m.Tier)
	return nil
}

func defaultDiaryDir() string {
	return "./.ltm/diary"
}
