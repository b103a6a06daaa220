package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/shelfline/governance/internal/audit"
	"github.com/shelfline/governance/internal/config"
	"github.com/shelfline/governance/internal/gates"
	"github.com/shelfline/governance/internal/governance"
	"github.com/shelfline/governance/internal/httpserver"
	"github.com/shelfline/governance/internal/models"
	"github.com/shelfline/governance/internal/notify"
	"github.com/shelfline/governance/internal/runner"
	"github.com/shelfline/governance/internal/similarity"
	"github.com/shelfline/governance/internal/store"
	"github.com/shelfline/governance/internal/validation"
)

// zeroScores is the fallback citation source: every Hero scores zero, so a
// missing audit feed still advances decay rather than silently healing it.
type zeroScores struct{}

func (zeroScores) WeeklyScores(ctx context.Context) (map[string]float64, models.QuorumStatus, error) {
	return nil, models.QuorumMet, nil
}

func main() {
	runSchedulers := flag.Bool("run-schedulers", false, "start the recalculation and decay loops")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		log.Fatalf("db ping: %v", err)
	}
	st := store.NewPGStore(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var scorer similarity.Client = similarity.NewStaticClient(250)
	if cfg.ScorerURL != "" {
		httpScorer, err := similarity.NewHTTPClient(similarity.HTTPClientConfig{
			BaseURL: cfg.ScorerURL,
			Timeout: 5 * time.Second,
			Retries: 2,
		})
		if err != nil {
			log.Fatalf("scorer client init: %v", err)
		}
		scorer = httpScorer
	}
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}
	scorer = similarity.NewCachedClient(scorer, similarity.NewCache(ctx, redisClient), 0)

	var archiver validation.Archiver
	if cfg.ArchiveBucket != "" {
		s3Archiver, err := audit.NewS3Archiver(ctx, cfg.ArchiveBucket, cfg.ArchivePrefix)
		if err != nil {
			log.Fatalf("archiver init: %v", err)
		}
		archiver = s3Archiver
	}

	var sink notify.Sink = notify.LogSink{}
	if cfg.KafkaBrokers != "" {
		kafkaSink, err := notify.NewKafkaSink(notify.KafkaSinkConfig{
			Brokers: strings.Split(cfg.KafkaBrokers, ","),
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			log.Fatalf("kafka sink init: %v", err)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	}

	chain := gates.Chain(cfg.BrandName, scorer, cfg.MinSimilarity, st)
	validator := validation.New(chain, st, archiver)
	svc := governance.New(st, validator, sink)

	server := httpserver.New(cfg, svc, st)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	if *runSchedulers {
		log.Printf("starting tier and decay schedulers")
		go runner.RunRecalc(ctx, svc, runner.Config{RecalcInterval: cfg.RecalcEvery})
		go runner.RunDecay(ctx, svc, zeroScores{}, runner.Config{DecayInterval: cfg.DecayEvery})
	}

	go func() {
		log.Printf("governance service listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	waitForShutdown(cancel, httpServer)
}

func waitForShutdown(cancel context.CancelFunc, srv *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
