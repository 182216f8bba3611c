package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-lifecycle-engine/internal/analysis"
	"github.com/ignite/campaign-lifecycle-engine/internal/config"
	"github.com/ignite/campaign-lifecycle-engine/internal/external/chat"
	"github.com/ignite/campaign-lifecycle-engine/internal/external/llmagent"
	"github.com/ignite/campaign-lifecycle-engine/internal/external/mailplatform"
	"github.com/ignite/campaign-lifecycle-engine/internal/jobs"
	"github.com/ignite/campaign-lifecycle-engine/internal/jobs/postgres"
	"github.com/ignite/campaign-lifecycle-engine/internal/metricscollector"
	"github.com/ignite/campaign-lifecycle-engine/internal/notify"
	"github.com/ignite/campaign-lifecycle-engine/internal/orchestrator"
	"github.com/ignite/campaign-lifecycle-engine/internal/pkg/logger"
	storepg "github.com/ignite/campaign-lifecycle-engine/internal/store/postgres"
	"github.com/ignite/campaign-lifecycle-engine/internal/verify"
)

const (
	pollInterval      = 10 * time.Second
	reclaimInterval   = 2 * time.Minute
	heartbeatInterval = 10 * time.Second
	staleAfter        = 5 * time.Minute
	claimBatchSize    = 25
)

func main() {
	log.Println("Starting campaign lifecycle job runner...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}
	log.Println("connected to database")

	var redisClient *redis.Client
	if cfg.Queue.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Queue.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
	} else {
		log.Println("no REDIS_URL configured; falling back to Postgres advisory locks")
	}

	scheduleRepo := storepg.New(db)
	jobRepo := postgres.New(db)

	llmClient, err := llmagent.NewBedrockClient(context.Background(), cfg.LLM)
	if err != nil {
		log.Fatalf("failed to initialize LLM client: %v", err)
	}
	mailClient := mailplatform.NewHTTPClient(cfg.MailPlatform)
	chatPoster := chat.NewSlackPoster(cfg.Chat)

	pipeline := analysis.NewPipeline(llmClient)
	verifier := verify.NewVerifier(mailClient, pipeline)
	collector := metricscollector.NewCollector(mailClient, scheduleRepo, pipeline)
	notifier := notify.NewNotifier(scheduleRepo, chatPoster, verifier, collector, cfg.Chat.ChannelID)
	runner := orchestrator.New(scheduleRepo, notifier, mailClient)

	workerID := workerIdentity()
	scheduler := jobs.NewScheduler(jobRepo, runner, redisClient, db, workerID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.RegisterWorker(ctx); err != nil {
		log.Fatalf("failed to register worker: %v", err)
	}

	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()
	reclaimTicker := time.NewTicker(reclaimInterval)
	defer reclaimTicker.Stop()
	heartbeatTicker := time.NewTicker(heartbeatInterval)
	defer heartbeatTicker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-pollTicker.C:
				n, err := scheduler.PollOnce(ctx, claimBatchSize)
				if err != nil {
					logger.Error("job runner: poll failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Info("job runner: processed due jobs", "count", n)
				}
			case <-reclaimTicker.C:
				n, err := scheduler.ReclaimStale(ctx, staleAfter)
				if err != nil {
					logger.Error("job runner: reclaim stale jobs failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Warn("job runner: reclaimed stale jobs", "count", n)
				}
			case <-heartbeatTicker.C:
				if err := scheduler.Heartbeat(ctx); err != nil {
					logger.Error("job runner: heartbeat failed", "error", err)
				}
			}
		}
	}()

	log.Printf("job runner %s running (poll every %s, reclaim every %s)", workerID, pollInterval, reclaimInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down job runner...")
	cancel()
	<-done

	deregisterCtx, cancelDeregister := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDeregister()
	if err := scheduler.DeregisterWorker(deregisterCtx); err != nil {
		logger.Error("job runner: deregister failed", "error", err)
	}
	log.Println("job runner stopped")
}

func workerIdentity() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + time.Now().UTC().Format("150405")
}
