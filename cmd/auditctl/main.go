package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
	"github.com/arklim/social-platform-authguard/internal/infra/config"
	"github.com/arklim/social-platform-authguard/internal/infra/database"
	kafkainfra "github.com/arklim/social-platform-authguard/internal/infra/kafka"
	"github.com/arklim/social-platform-authguard/internal/infra/logger"
	postgresrepo "github.com/arklim/social-platform-authguard/internal/repository/postgres"
	"github.com/arklim/social-platform-authguard/internal/usecase"
)

// auditctl streams a filtered audit export as CSV, for operators without
// access to the HTTP API. The export itself lands in the audit trail like
// any other.
func main() {
	var (
		dsn        = flag.String("dsn", "", "postgres DSN override; config settings apply when empty")
		actorID    = flag.String("actor", "", "filter by actor id")
		action     = flag.String("action", "", "filter by action")
		targetType = flag.String("target-type", "", "filter by target type")
		targetID   = flag.String("target-id", "", "filter by target id")
		from       = flag.String("from", "", "lower bound, RFC 3339")
		to         = flag.String("to", "", "upper bound, RFC 3339")
		out        = flag.String("out", "", "output file; stdout when empty")
		exportedBy = flag.String("as", "auditctl", "actor recorded for the export itself")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	filter, err := buildFilter(*actorID, *action, *targetType, *targetID, *from, *to)
	if err != nil {
		log.Fatalf("invalid filter: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zlog, err := logger.New(cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() {
		_ = zlog.Sync()
	}()

	pool, err := openPool(ctx, cfg, *dsn, zlog)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("failed to create output file: %v", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				log.Printf("failed to close output file: %v", err)
			}
		}()
		w = f
	}

	audit := usecase.NewAuditService(cfg, postgresrepo.NewAuditRepository(pool), kafkainfra.NewStubPublisher(zlog), zlog)

	rows, err := audit.ExportCSV(ctx, usecase.ExportInput{
		Filter:    filter,
		ActorID:   *exportedBy,
		RequestID: uuid.NewString(),
	}, w)
	if err != nil {
		log.Fatalf("export failed: %v", err)
	}

	fmt.Fprintf(os.Stderr, "exported %d audit records\n", rows)
}

func openPool(ctx context.Context, cfg *config.AppConfig, dsn string, zlog *zap.Logger) (*pgxpool.Pool, error) {
	if dsn != "" {
		store, err := postgresrepo.NewStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return store.Pool(), nil
	}
	return database.NewPostgresPool(ctx, cfg.Postgres, zlog)
}

func buildFilter(actorID, action, targetType, targetID, from, to string) (domain.AuditFilter, error) {
	filter := domain.AuditFilter{
		ActorID:    actorID,
		Action:     domain.AuditAction(action),
		TargetType: targetType,
		TargetID:   targetID,
	}

	if from != "" {
		ts, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filter, fmt.Errorf("parse from: %w", err)
		}
		filter.From = ts
	}

	if to != "" {
		ts, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filter, fmt.Errorf("parse to: %w", err)
		}
		filter.To = ts
	}

	return filter, nil
}
