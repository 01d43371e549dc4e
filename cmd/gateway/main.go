package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	api "github.com/mind-engage/mindengage-mastery/internal/api/http"
	"github.com/mind-engage/mindengage-mastery/internal/assessment"
	auth "github.com/mind-engage/mindengage-mastery/internal/auth/middleware"
	"github.com/mind-engage/mindengage-mastery/internal/config"
	"github.com/mind-engage/mindengage-mastery/internal/db"
	"github.com/mind-engage/mindengage-mastery/internal/grading"
	"github.com/mind-engage/mindengage-mastery/internal/logger"
)

func main() {
	cfg := config.FromEnv()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	rules, err := config.LoadRuleBook(cfg.RulesFile)
	if err != nil {
		log.Fatal("rule book", "file", cfg.RulesFile, "error", err)
	}

	// --- DB ---
	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		log.Fatal("db driver", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	dbh, err := db.Open(ctx, driver, cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatal("db open failed", "driver", driver, "error", err)
	}
	defer dbh.Close()

	sessionStore := assessment.NewSQLStore(dbh)
	gradingStore := grading.NewSQLStore(dbh)

	// --- Per-session lock ---
	var locker assessment.Locker = assessment.NewLocalLocker()
	if cfg.SessionLock == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		pctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pctx).Err()
		pcancel()
		if err != nil {
			log.Fatal("redis ping", "addr", cfg.RedisAddr, "error", err)
		}
		locker = assessment.NewRedisLocker(rdb, cfg.SessionLockTTL)
	}

	sessions := assessment.NewEngine(sessionStore, rules.For(config.DefaultInstitution),
		assessment.WithLocker(locker),
		assessment.WithLogger(log.With("component", "sessions")),
	)
	grader := grading.NewEngine(gradingStore, sessionStore,
		grading.WithConcurrency(cfg.GradingConcurrency),
		grading.WithLogger(log.With("component", "grading")),
	)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/", api.Routes(api.Deps{
		Sessions:        sessions,
		Grading:         grader,
		Rules:           rules,
		Auth:            auth.NewAuthService(cfg.AuthHMACSecret),
		Log:             log,
		EnableLocalAuth: cfg.EnableLocalAuth,
		Login: auth.LoginConfig{
			AdminUser:     cfg.AdminUser,
			AdminPassHash: cfg.AdminPassHash,
			AllowDevLogin: cfg.Mode == config.ModeOffline,
		},
		Ready: dbh.PingContext,
	}))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", driver, "session_lock", cfg.SessionLock)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("http server", "error", err)
	}
}
