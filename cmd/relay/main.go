// Package main is the entry point for one persona relay process.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-relay/internal/config"
	"github.com/capitalize-ai/persona-relay/internal/dispatch"
	"github.com/capitalize-ai/persona-relay/internal/handler"
	"github.com/capitalize-ai/persona-relay/internal/llm"
	"github.com/capitalize-ai/persona-relay/internal/middleware"
	natsclient "github.com/capitalize-ai/persona-relay/internal/nats"
	"github.com/capitalize-ai/persona-relay/internal/persona"
	"github.com/capitalize-ai/persona-relay/internal/platform"
	"github.com/capitalize-ai/persona-relay/internal/prompt"
	"github.com/capitalize-ai/persona-relay/internal/responder"
	"github.com/capitalize-ai/persona-relay/internal/store"
	"github.com/capitalize-ai/persona-relay/internal/trigger"
	"github.com/capitalize-ai/persona-relay/pkg/logger"
	"github.com/capitalize-ai/persona-relay/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	personaName := persona.Name(cfg.Persona)
	if _, ok := persona.Get(personaName); !ok {
		log.Error("unknown persona", zap.String("persona", cfg.Persona))
		os.Exit(1)
	}
	log = log.With(zap.String("persona", cfg.Persona))
	log.Info("starting relay")

	if cfg.PromptDir != "" {
		persona.LoadPrompts(cfg.PromptDir)
	}

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "persona-relay", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Redis
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Error("invalid Redis URL", zap.Error(err))
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Error("failed to reach Redis", zap.Error(err))
		os.Exit(1)
	}
	cancel()

	// NATS
	nc, err := natsclient.Connect(natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer nc.Close()

	// Generation backend
	var llmClient llm.Client
	switch {
	case cfg.DefaultLLM == "anthropic" && cfg.AnthropicAPIKey != "":
		llmClient, err = llm.NewAnthropicClient(cfg.AnthropicAPIKey)
	case cfg.OpenAIAPIKey != "":
		llmClient, err = llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	default:
		log.Error("no generation API key configured")
		os.Exit(1)
	}
	if err != nil {
		log.Error("failed to create generation client", zap.Error(err))
		os.Exit(1)
	}

	// Stores
	history := store.NewHistoryStore(rdb)
	users := store.NewUserDirectory(rdb, cfg.AdminID)
	limiter := store.NewRateLimiter(rdb, users)
	counter := store.NewTriggerCounter(rdb)

	// Outbound pipeline
	sender := platform.NewClient(cfg.PlatformAPIURL + "/bot" + cfg.BotToken)
	gen := llm.NewGenerator(llmClient, log)
	asm := prompt.NewAssembler(rand.New(rand.NewSource(time.Now().UnixNano())))
	resp := responder.New(history, gen, asm, sender, responder.Config{
		Model:           cfg.Model,
		Temperature:     cfg.Temperature,
		PresencePenalty: cfg.PresencePenalty,
		HistoryLimit:    cfg.HistoryLimit,
		FragmentPause:   cfg.FragmentPause,
		FallbackText:    cfg.FallbackText,
	}, log)

	// Cross-process auto-reply channel
	publisher := dispatch.NewPublisher(nc, log)
	listener := dispatch.NewListener(personaName, resp, responder.DelayRange{
		Min: cfg.AutoReplyMin,
		Max: cfg.AutoReplyMax,
	}, log)
	sub, err := nc.Subscribe(dispatch.Subject, listener.Handle)
	if err != nil {
		log.Error("failed to subscribe to auto-reply channel", zap.Error(err))
		os.Exit(1)
	}
	defer sub.Drain()

	// Trigger engine
	engine := trigger.New(trigger.Config{
		Persona:         personaName,
		BotID:           cfg.BotID,
		AllowedChats:    cfg.AllowedChats,
		ReasoningModel:  cfg.ReasoningModel,
		ReplyDelay:      responder.DelayRange{Min: cfg.ReplyDelayMin, Max: cfg.ReplyDelayMax},
		AutoReplyChance: cfg.AutoReplyChance,
		MergeWindow:     cfg.CommentWindow,
	}, history, users, limiter, counter, resp, publisher, sender, log)

	// Handlers
	healthHandler := handler.NewHealthHandler(rdb, nc)
	webhookHandler := handler.NewWebhookHandler(cfg.WebhookSecret, engine, log)
	historyHandler := handler.NewHistoryHandler(history, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/webhook", webhookHandler.Receive)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/history/{chatID}", func(r chi.Router) {
			r.Get("/recent", historyHandler.Recent)
			r.Get("/thread/{messageID}", historyHandler.Thread)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("relay stopped")
}
