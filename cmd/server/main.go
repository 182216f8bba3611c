package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-lifecycle-engine/internal/analysis"
	"github.com/ignite/campaign-lifecycle-engine/internal/campaign"
	"github.com/ignite/campaign-lifecycle-engine/internal/config"
	"github.com/ignite/campaign-lifecycle-engine/internal/external/chat"
	"github.com/ignite/campaign-lifecycle-engine/internal/external/llmagent"
	"github.com/ignite/campaign-lifecycle-engine/internal/external/mailplatform"
	"github.com/ignite/campaign-lifecycle-engine/internal/httpapi"
	"github.com/ignite/campaign-lifecycle-engine/internal/jobs"
	"github.com/ignite/campaign-lifecycle-engine/internal/jobs/postgres"
	"github.com/ignite/campaign-lifecycle-engine/internal/metricscollector"
	"github.com/ignite/campaign-lifecycle-engine/internal/notify"
	"github.com/ignite/campaign-lifecycle-engine/internal/orchestrator"
	storepg "github.com/ignite/campaign-lifecycle-engine/internal/store/postgres"
	"github.com/ignite/campaign-lifecycle-engine/internal/verify"
)

// checkPortAvailable verifies that the target port is not already bound,
// so a stale process doesn't silently swallow the new server's traffic.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %w", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("campaign lifecycle engine: control surface starting...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("pre-flight check failed: %v", err)
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

	// The server only enqueues, reschedules, and cancels jobs; PollOnce and
	// ReclaimStale are driven by cmd/worker, never from here.
	scheduler := jobs.NewScheduler(jobRepo, runner, redisClient, db, "server")
	creator := campaign.NewCreator(scheduleRepo, scheduler, cfg.Stages.ToClockOffsets())

	server := httpapi.NewServer(scheduleRepo, creator, scheduler, runner)

	addr := fmt.Sprintf("%s:%d", host, port)
	go func() {
		log.Printf("listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
	log.Println("server stopped")
}
