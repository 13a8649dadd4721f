package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"resume-pipeline/internal/applications"
	"resume-pipeline/internal/blocks"
	"resume-pipeline/internal/cost"
	"resume-pipeline/internal/events"
	"resume-pipeline/internal/evidence"
	"resume-pipeline/internal/export"
	"resume-pipeline/internal/llm"
	openai "resume-pipeline/internal/llm/openai"
	"resume-pipeline/internal/prompts"
	"resume-pipeline/internal/queue"
	"resume-pipeline/internal/research"
	"resume-pipeline/internal/shared/config"
	"resume-pipeline/internal/shared/server"
	"resume-pipeline/internal/shared/storage/db"
	"resume-pipeline/internal/shared/storage/object"
	localstore "resume-pipeline/internal/shared/storage/object/local"
	s3store "resume-pipeline/internal/shared/storage/object/s3"
	"resume-pipeline/internal/shared/telemetry"
	"resume-pipeline/internal/tier"
	"resume-pipeline/internal/verify"
)

// App holds shared dependencies.
type App struct {
	Config       config.Config
	Router       *gin.Engine
	DB           *sql.DB
	Store        object.ObjectStore
	Queue        queue.Client
	Rabbit       *queue.RabbitMQClient
	Events       events.Publisher
	Prompts      *prompts.Registry
	Ledger       *cost.Ledger
	LLM          *llm.Client
	Repo         applications.Repo
	Evidence     evidence.Store
	Applications *applications.Service
	Handler      *applications.Handler

	closers []func()
}

// Build prepares shared dependencies and the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()
	app := &App{Config: cfg}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB
	if sqlDB != nil {
		app.closers = append(app.closers, func() { _ = sqlDB.Close() })
	}

	if app.Store, err = buildStore(ctx, cfg); err != nil {
		app.Close()
		return nil, err
	}
	if err := buildMessaging(app); err != nil {
		app.Close()
		return nil, err
	}
	if err := buildServices(app); err != nil {
		app.Close()
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:             app.Config,
		ApplicationHandler: app.Handler,
		Ready:              app.ready,
	})
	return app, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// ProcessApplication lets the worker drive the pipeline through the App.
func (a *App) ProcessApplication(ctx context.Context, applicationID string) error {
	return a.Applications.ProcessApplication(ctx, applicationID)
}

func (a *App) ready() error {
	if a.DB == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return a.DB.PingContext(ctx)
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.AWSRegion) == "" || strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires AWS_REGION and S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

// buildMessaging dials the optional brokers: RabbitMQ for jobs, NATS for status events.
func buildMessaging(app *App) error {
	cfg := app.Config
	pubs := events.Multi{events.LogPublisher{}}
	if strings.TrimSpace(cfg.NATSURL) != "" {
		nats, closeNATS, err := events.DialNATS(cfg.NATSURL)
		if err != nil {
			if !cfg.IsDevLike() {
				return err
			}
			telemetry.Warn("bootstrap.nats.disabled", map[string]any{"error": err.Error()})
		} else {
			pubs = append(pubs, nats)
			app.closers = append(app.closers, closeNATS)
		}
	}
	app.Events = pubs

	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		return nil
	}
	rabbit, err := queue.DialRabbitMQ(cfg.RabbitMQURL, cfg.JobQueue)
	if err != nil {
		return err
	}
	app.Rabbit = rabbit
	app.Queue = rabbit
	app.closers = append(app.closers, func() { _ = rabbit.Close() })
	return nil
}

func buildRegistry(cfg config.Config) (*prompts.Registry, error) {
	if dir := strings.TrimSpace(cfg.PromptsDir); dir != "" {
		return prompts.LoadDir(dir)
	}
	return prompts.Default()
}

func buildRates(cfg config.Config) (cost.RateTable, error) {
	if path := strings.TrimSpace(cfg.CostRatesFile); path != "" {
		return cost.LoadRatesFile(path)
	}
	return cost.DefaultRates(), nil
}

func buildProvider(cfg config.Config) (llm.Provider, error) {
	if cfg.LLMProvider != "openai" {
		telemetry.Warn("bootstrap.llm.placeholder", map[string]any{"provider": cfg.LLMProvider})
		return llm.PlaceholderProvider{}, nil
	}
	provider, err := openai.NewClient(openai.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Timeout: cfg.LLMTimeout,
	})
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.llm.placeholder", map[string]any{"error": err.Error()})
			return llm.PlaceholderProvider{}, nil
		}
		return nil, err
	}
	return provider, nil
}

func buildResearch(app *App, gen research.Generator, reg research.Renderer) (research.Researcher, error) {
	cfg := app.Config
	var r research.Researcher = research.Fallback{
		Primary:   research.NewWebResearcher(cfg.ResearchTimeout),
		Secondary: research.LLMResearcher{LLM: gen, Prompts: reg},
	}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return r, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	app.closers = append(app.closers, func() { _ = client.Close() })
	return research.NewRedisCache(r, client, cfg.ResearchCacheTTL), nil
}

func buildServices(app *App) error {
	cfg := app.Config

	var (
		repo      applications.Repo
		locker    applications.Locker
		facts     evidence.Store
		costStore cost.Store
	)
	if app.DB != nil {
		repo = &applications.PGRepo{DB: app.DB}
		locker = &applications.PGLocker{DB: app.DB}
		facts = &evidence.PGStore{DB: app.DB}
		costStore = &cost.PGStore{DB: app.DB}
	} else {
		repo = applications.NewMemoryRepo()
		facts = evidence.NewMemoryStore()
		costStore = cost.NewMemoryStore()
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	rates, err := buildRates(cfg)
	if err != nil {
		return fmt.Errorf("load cost rates: %w", err)
	}
	ledger := cost.NewLedger(costStore, rates, cfg.CostCeilingUSD, &events.BudgetAlerter{Publisher: app.Events})

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	policy := llm.DefaultBackoff()
	policy.MaxAttempts = cfg.RetryAttempts
	policy.BaseDelay = cfg.RetryBaseDelay
	client := &llm.Client{
		Provider:       provider,
		Policy:         policy,
		Ledger:         ledger,
		Recorder:       repo,
		Estimator:      llm.NewTiktokenEstimator(),
		Model:          cfg.LLMModel,
		AttemptTimeout: cfg.LLMTimeout,
	}

	budgets := tier.Budgets{Tier1Words: cfg.Tier1WordBudget, Tier2Words: cfg.Tier2WordBudget}
	lint := verify.DefaultLintConfig()
	if len(cfg.BannedPhrases) > 0 {
		lint.BannedPhrases = cfg.BannedPhrases
	}
	panel := verify.NewPanel(client, reg, verify.Config{
		FactBandMin: cfg.FactBandMin,
		FactBandMax: cfg.FactBandMax,
		Budgets:     budgets,
		Lint:        lint,
		Model:       cfg.VerifyModel,
	})

	researcher, err := buildResearch(app, client, reg)
	if err != nil {
		return err
	}
	svc := &applications.Service{
		Repo:     repo,
		Evidence: facts,
		Ledger:   ledger,
		LLM:      client,
		Prompts:  reg,
		Blocks: &blocks.Generator{
			LLM:              client,
			Prompts:          reg,
			Panel:            panel,
			MaxRegenerations: cfg.MaxRegenerations,
			Budgets:          budgets,
			Lint:             lint,
		},
		Research:       researcher,
		ResearchPolicy: policy,
		Export:         export.NewObjectStoreSink(app.Store),
		Events:         app.Events,
		Queue:          app.Queue,
		Locker:         locker,
		Config: applications.Config{
			MaxQuestions:         cfg.MaxGapQuestions,
			StopOnBudgetExceeded: cfg.StopOnBudgetExceeded,
			Budgets:              budgets,
			FactBandMin:          cfg.FactBandMin,
			FactBandMax:          cfg.FactBandMax,
			DefaultLanguage:      cfg.DefaultLanguage,
		},
	}
	app.Prompts = reg
	app.Ledger = ledger
	app.LLM = client
	app.Repo = repo
	app.Evidence = facts
	app.Applications = svc
	app.Handler = applications.NewHandler(svc, cfg.AsyncAdvance && app.Queue != nil)
	return nil
}
