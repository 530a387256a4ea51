package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"restaurant-agent/handler"
	"restaurant-agent/internal/config"
	"restaurant-agent/internal/events"
	"restaurant-agent/internal/integrations/openai"
	"restaurant-agent/internal/integrations/paramstore"
	"restaurant-agent/internal/intent"
	"restaurant-agent/internal/lock"
	applog "restaurant-agent/internal/log"
	"restaurant-agent/internal/menu"
	"restaurant-agent/internal/repository"
	"restaurant-agent/internal/statestore"
	"restaurant-agent/internal/strategy"
	"restaurant-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		base := applog.Base()
		base.Fatal().Err(err).Msg("invalid configuration")
	}
	applog.Configure(applog.Config{Level: cfg.LogLevel})
	logger := applog.WithComponent("main")

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load AWS config")
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create SSM client")
	}
	repo, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.TranscriptTable)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create transcript repository")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()

	store, err := statestore.NewRedisStore(rdb)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create state store")
	}
	publisher, err := events.NewPublisher(rdb)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create event publisher")
	}
	locker, err := newLocker(cfg, rdb)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create conversation lock")
	}

	db, err := menu.Open(ctx, cfg.MenuDBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open menu database")
	}
	defer func() { _ = db.Close() }()
	catalog, err := menu.NewCatalog(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create menu catalog")
	}

	opts := []openai.Option{openai.WithModel(cfg.OpenAIModel)}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	llm, err := openai.NewClient(ssmClient, cfg.ParamPrefix, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create OpenAI client")
	}

	// ---- Turn pipeline ----
	classifier, err := intent.NewClassifier(llm, applog.WithComponent("intent"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create classifier")
	}
	dispatcher, err := newDispatcher(cfg, llm, catalog)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create strategies")
	}

	turns, err := usecase.NewTurnService(usecase.Dependencies{
		State:      store,
		Locker:     locker,
		Classifier: classifier,
		Strategies: dispatcher,
		Registry:   repo,
		Transcript: repo,
		Events:     publisher,
		Logger:     applog.WithComponent("turn"),
	}, usecase.Options{
		Tenant:           cfg.Tenant,
		StateTTL:         cfg.StateTTL,
		CallTimeout:      cfg.CallTimeout,
		MaxMessageLength: cfg.MaxMessageLength,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create turn service")
	}

	// ---- Handler ----
	h, err := handler.NewHandler(turns, applog.WithComponent("handler"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create handler")
	}

	if cfg.Mode == config.ModeLambda {
		lambda.Start(h.Handle)
		return
	}
	if err := serveHTTP(cfg, h, logger); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}

func newLocker(cfg config.Config, rdb *redis.Client) (lock.Locker, error) {
	if cfg.LockBackend == config.LockMemory {
		return lock.NewKeyed(), nil
	}
	return lock.NewRedis(rdb, cfg.LockLease, lock.WithLogger(applog.WithComponent("lock")))
}

func newDispatcher(cfg config.Config, llm *openai.Client, catalog *menu.Catalog) (*strategy.Dispatcher, error) {
	info, err := strategy.NewInfo(llm, strategy.DefaultFacts)
	if err != nil {
		return nil, err
	}
	menuStrategy, err := strategy.NewMenu(llm, catalog)
	if err != nil {
		return nil, err
	}
	sales, err := openai.NewNegotiationAgent(llm)
	if err != nil {
		return nil, err
	}
	delivery, err := strategy.NewDelivery(sales)
	if err != nil {
		return nil, err
	}
	booker, err := openai.NewDialogueAgent(llm, cfg.DialogueMaxRounds)
	if err != nil {
		return nil, err
	}
	reservation, err := strategy.NewReservation(booker)
	if err != nil {
		return nil, err
	}
	return strategy.NewDispatcher(map[intent.HandlerID]strategy.Strategy{
		intent.HandlerInfo:        info,
		intent.HandlerMenu:        menuStrategy,
		intent.HandlerDelivery:    delivery,
		intent.HandlerReservation: reservation,
	})
}

func serveHTTP(cfg config.Config, h *handler.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(handler.RouterConfig{RateLimitPerMinute: cfg.RateLimitPerMinute}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info().Msg("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
