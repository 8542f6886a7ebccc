package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"askia-quiz-service/internal/app"
	"askia-quiz-service/internal/config"
	"askia-quiz-service/internal/domain"
	"askia-quiz-service/internal/infra/memory"
	"askia-quiz-service/internal/infra/postgres"
	redisstore "askia-quiz-service/internal/infra/redis"
	"askia-quiz-service/internal/infra/static"
	"askia-quiz-service/internal/logger"
	"askia-quiz-service/internal/metrics"
	transport "askia-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New("quiz-service", cfg.Log.Level)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,

			ContextTimeoutEnabled: true,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	deps, err := buildDeps(ctx, cfg, redisClient, pool, log)
	if err != nil {
		return err
	}
	service := app.NewQuizService(deps,
		app.WithLogger(log),
		app.WithMetrics(m),
		app.WithSettings(cfg.Settings()),
	)

	finalPort := cfg.Port(portFlag)
	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(service, reg, log),
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: websocket sessions outlive any fixed deadline
	}

	go func() {
		log.WithField("port", finalPort).Info("starting quiz service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildDeps picks Redis-backed stores when a client is configured and in-memory ones otherwise.
// Question content comes from Postgres, a content web server, a content directory or the
// built-in sample set, in that order, behind a TTL cache.
func buildDeps(ctx context.Context, cfg config.Config, client *redis.Client, pool *pgxpool.Pool, log logrus.FieldLogger) (app.Deps, error) {
	var source app.QuestionSource
	switch {
	case pool != nil:
		source = postgres.NewContentSource(pool)
		log.Info("serving questions from postgres")
	case cfg.Content.BaseURL != "":
		source = static.NewHTTPSource(cfg.Content.BaseURL, nil)
		log.WithField("base_url", cfg.Content.BaseURL).Info("serving questions over http")
	case cfg.Content.Dir != "" && dirExists(cfg.Content.Dir):
		source = static.NewFSSource(os.DirFS(cfg.Content.Dir))
		log.WithField("dir", cfg.Content.Dir).Info("serving questions from directory")
	default:
		source = memory.NewStaticSource(sampleQuestions())
		log.Warn("no content configured, serving the built-in sample questions")
	}

	cacheTTL := config.TTLDuration(cfg.Content.CacheTTL, 10*time.Minute)
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 30*time.Minute)

	if client == nil {
		ledger := domain.LeagueLedger{}
		if cfg.League.SeedSample {
			ledger = domain.SampleLeagueLedger()
		}
		return app.Deps{
			Sessions:  memory.NewSessionStore(),
			Users:     memory.NewUserStore(),
			Questions: memory.NewQuestionCache(source, cacheTTL),
			League:    memory.NewLeagueStore(ledger),
		}, nil
	}

	league := redisstore.NewLeagueStore(client)
	if cfg.League.SeedSample {
		if err := league.Seed(ctx, domain.SampleLeagueLedger()); err != nil {
			return app.Deps{}, err
		}
	}
	return app.Deps{
		Sessions:  redisstore.NewSessionStore(client, sessionTTL),
		Users:     redisstore.NewUserStore(client),
		Questions: redisstore.NewQuestionCache(client, source, cacheTTL),
		League:    league,
	}, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// sampleQuestions is a minimal grade 6 maths set used when no content is configured.
func sampleQuestions() map[string][]domain.Question {
	return map[string][]domain.Question{
		app.TopicPath("6", "maths", "algebra"): {
			domain.MultipleChoice{Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectIndex: 1},
			domain.MultipleChoice{Prompt: "Solve x + 3 = 7", Options: []string{"x = 3", "x = 4", "x = 10"}, CorrectIndex: 1},
			domain.MultipleChoice{Prompt: "What is 3 × 5?", Options: []string{"15", "8", "35"}, CorrectIndex: 0},
			domain.FillBlank{Prompt: "7 × 8 = ___", CorrectAnswer: "56"},
		},
		app.KindPath("6", "maths", domain.KindSentenceBuilder): {
			domain.SentenceBuilder{
				Prompt:          "Build the sentence",
				Words:           []string{"two", "plus", "two", "is", "four"},
				CorrectSequence: []string{"two", "plus", "two", "is", "four"},
			},
		},
	}
}
