package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chronopad/hacking-saga-app/internal/challenge"
	appcfg "github.com/chronopad/hacking-saga-app/internal/config"
	"github.com/chronopad/hacking-saga-app/internal/match"
	"github.com/chronopad/hacking-saga-app/internal/msgcat"
	"github.com/chronopad/hacking-saga-app/internal/obslog"
	"github.com/chronopad/hacking-saga-app/internal/realtime"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}

	ctx := context.Background()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis ping error: %v", err)
	}

	store, err := challenge.NewS3Store(ctx, challenge.S3Config{
		AccountID:    cfg.StoreAccountID,
		AccessKey:    cfg.StoreAccessKey,
		AccessSecret: cfg.StoreAccessSecret,
		Bucket:       cfg.StoreBucket,
		Endpoint:     cfg.StoreEndpoint,
		CDNBaseURL:   cfg.StoreCDNBaseURL,
	})
	if err != nil {
		log.Fatalf("artifact store init error: %v", err)
	}
	provider := challenge.NewProvider(cfg.ChallengeDir, store)

	messages, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	hub := realtime.NewHub(cfg.EgressBuffer)
	engine := match.NewEngine(match.NewRegistry(rdb), provider, hub, messages)
	engine.SetStatusNotices(cfg.QueueStatusEnabled)
	hub.SetLifecycle(engine)

	runCtx, stopEngine := context.WithCancel(ctx)
	go engine.Run(runCtx)

	mux := http.NewServeMux()
	hub.Routes(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		obslog.L().Info("server_listen", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obslog.L().Fatal("server_error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	obslog.L().Info("server_shutdown")
	shCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	_ = srv.Shutdown(shCtx)
	cancel()
	stopEngine()
	_ = rdb.Close()
}
