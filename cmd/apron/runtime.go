package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/airside-ops/apron/pkg/agent"
	"github.com/airside-ops/apron/pkg/config"
	"github.com/airside-ops/apron/pkg/database"
	"github.com/airside-ops/apron/pkg/llm"
	"github.com/airside-ops/apron/pkg/parser"
	"github.com/airside-ops/apron/pkg/playbook"
	"github.com/airside-ops/apron/pkg/queue"
	"github.com/airside-ops/apron/pkg/refdata"
	"github.com/airside-ops/apron/pkg/scenario"
	"github.com/airside-ops/apron/pkg/services"
	"github.com/airside-ops/apron/pkg/session"
	"github.com/airside-ops/apron/pkg/slack"
	"github.com/airside-ops/apron/pkg/tools"
	"github.com/airside-ops/apron/pkg/topology"
)

// runtime is the wired engine stack shared by serve and run-agent.
type runtime struct {
	cfg       *config.Config
	db        *database.Client
	store     session.Store
	pool      *queue.Pool
	scenarios *scenario.Registry
	playbooks *playbook.Service
	service   *services.EventService
}

// buildRuntime assembles the full stack from resolved configuration:
// the database (sql backend only), session store, scenario descriptors,
// airport topology, reference datasets, LLM client, tool registry,
// parser, engine, worker pool, and the event service on top.
func buildRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	var (
		db    *database.Client
		sqlDB *sql.DB
	)
	if cfg.Session.Backend == config.SessionBackendSQL {
		dbCfg, err := database.LoadConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("database config: %w", err)
		}
		db, err = database.NewClient(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		sqlDB = db.DB()
		logger.Info("Connected to PostgreSQL database")
	}

	var store session.Store
	fail := func(err error) (*runtime, error) {
		if store != nil {
			_ = store.Close()
		}
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}

	store, err := session.New(ctx, cfg.Session, sqlDB, logger)
	if err != nil {
		return fail(fmt.Errorf("session store: %w", err))
	}

	scenarios, err := loadScenarios(cfg.Engine)
	if err != nil {
		return fail(fmt.Errorf("load scenarios: %w", err))
	}
	graph, err := loadTopology(cfg.Engine, logger)
	if err != nil {
		return fail(fmt.Errorf("load topology: %w", err))
	}
	ref, err := loadRefdata(cfg.Engine)
	if err != nil {
		return fail(fmt.Errorf("load reference data: %w", err))
	}
	logger.Info("Datasets loaded",
		"scenarios", scenarios.Len(),
		"topology_nodes", graph.Len())

	llmClient := llm.NewFromConfig(cfg.LLM)

	toolReg, err := tools.NewRegistry(tools.Deps{
		Scenarios: scenarios,
		Graph:     graph,
		Ref:       ref,
		LLM:       llmClient,
		Logger:    logger,
	})
	if err != nil {
		return fail(fmt.Errorf("tool registry: %w", err))
	}

	msgParser := parser.New(scenarios, graph, ref, llmClient, cfg.Engine, logger)

	var playbooks *playbook.Service
	if cfg.Playbook != nil {
		playbooks = playbook.NewService(cfg.Playbook, os.Getenv(cfg.Playbook.TokenEnv), logger)
	}
	if playbooks != nil {
		logger.Info("Disposal-plan documents enabled",
			"scenarios", len(cfg.Playbook.Sources),
			"repo", cfg.Playbook.RepoURL)
	}

	engine, err := agent.New(agent.Config{
		Parser:    msgParser,
		Tools:     toolReg,
		Scenarios: scenarios,
		LLM:       llmClient,
		Playbooks: playbooks,
		Engine:    cfg.Engine,
		Logger:    logger,
	})
	if err != nil {
		return fail(fmt.Errorf("engine: %w", err))
	}

	pool := queue.NewPool(cfg.Queue, logger)

	var notifier *slack.Service
	if cfg.Slack != nil {
		notifier = slack.NewService(slack.ServiceConfig{
			Token:        os.Getenv(cfg.Slack.TokenEnv),
			Channel:      cfg.Slack.Channel,
			DashboardURL: cfg.Slack.DashboardURL,
		}, logger)
	}
	if notifier != nil {
		logger.Info("Duty-channel notifications enabled", "channel", cfg.Slack.Channel)
	}

	svc := services.NewEventService(store, pool, engine, msgParser, scenarios, notifier, logger)

	return &runtime{
		cfg:       cfg,
		db:        db,
		store:     store,
		pool:      pool,
		scenarios: scenarios,
		playbooks: playbooks,
		service:   svc,
	}, nil
}

// Close tears the stack down in shutdown order: drain the pool, close
// the store, then the database.
func (r *runtime) Close() {
	if err := r.service.Close(); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}
}

func loadScenarios(cfg *config.EngineConfig) (*scenario.Registry, error) {
	if cfg.ScenarioDir != "" {
		return scenario.Load(cfg.ScenarioDir)
	}
	return scenario.LoadDefault()
}

func loadTopology(cfg *config.EngineConfig, logger *slog.Logger) (*topology.Graph, error) {
	if cfg.TopologyFile != "" {
		return topology.LoadFile(cfg.TopologyFile, logger)
	}
	return topology.LoadDefault(logger)
}

func loadRefdata(cfg *config.EngineConfig) (*refdata.Store, error) {
	if cfg.RefdataDir != "" {
		return refdata.Load(cfg.RefdataDir)
	}
	return refdata.LoadDefault()
}
