package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/cachecontrol"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/datausa"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/graph"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/respcache"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/stats"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-statehub-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-statehub-go/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-statehub-go")

	cfg, err := config.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	userRepo := repo.NewUserRepo(db)
	if err := userRepo.EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure users table: %v", err)
	}

	var rdb *redis.Client
	if cfg.SessionStore == "redis" || cfg.ResponseCache == "redis" {
		rdb, err = config.NewRedisClient(ctx)
		if err != nil {
			sugar.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
	}

	var store session.Store
	if cfg.SessionStore == "redis" {
		store = session.NewRedisStore(rdb, "")
	} else {
		ms := session.NewMemoryStore()
		go ms.RunCleanup(ctx, time.Minute)
		store = ms
	}

	var cache respcache.Cache
	switch cfg.ResponseCache {
	case "redis":
		cache = respcache.NewRedisCache(rdb, "", sugar)
	case "memory":
		mc := respcache.NewMemoryCache()
		go mc.RunCleanup(ctx, time.Minute)
		cache = mc
	}

	m := metrics.New()
	ids := utilities.NewIDGeneratorFromEnv()

	users := user.NewUserService(userRepo, user.BcryptHasher{})
	sessions := session.NewManager(store, session.CookieCodec{
		Name:   cfg.SessionCookie,
		Secret: []byte(cfg.SessionSecret),
		TTL:    cfg.SessionTTL,
		Secure: !cfg.Dev,
	}, users, sugar)

	gw := datausa.NewClient(datausa.Config{BaseURL: cfg.DataUSABaseURL, Timeout: cfg.DataUSATimeout}, m, sugar)
	schema, err := graph.NewSchema(graph.NewResolver(stats.NewCatalog(gw), gw, sugar), cfg.Parallelism)
	if err != nil {
		sugar.Fatalf("graphql schema: %v", err)
	}
	analyzer, err := cachecontrol.NewAnalyzer(graph.SchemaSDL, cfg.CacheMaxAge)
	if err != nil {
		sugar.Fatalf("cache control: %v", err)
	}

	handler := router.RegisterRoutes(router.Options{
		Logger:        sugar,
		IDs:           ids,
		Metrics:       m,
		Sessions:      sessions,
		Users:         user.NewHandler(users, sessions, sugar),
		GraphQL:       graph.NewHandler(schema, analyzer, cache, m, sugar),
		CORSOrigins:   cfg.CORSOrigins,
		AuthRateLimit: cfg.AuthRateLimit,
		Playground:    cfg.Playground,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("service is running", "addr", cfg.HTTPAddr)

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
