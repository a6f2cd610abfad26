// Package bootstrap wires the configured backends into the service layer.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"threadline/internal/blob"
	"threadline/internal/config"
	"threadline/internal/docstore"
	"threadline/internal/docstore/redisdoc"
	"threadline/internal/docstore/sqldoc"
	"threadline/internal/observability"
	"threadline/internal/repository"
	"threadline/internal/service"
	"threadline/internal/session"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
)

// Services groups the account lifecycle services.
type Services struct {
	Profiles      *service.ProfileService
	Reviews       *service.ReviewService
	Relationships *service.RelationshipService
	Posts         *service.PostService
	Chats         *service.ChatService
	Reports       *service.ReportService
	Purge         *service.PurgeService
	Moderation    *service.ModerationService
}

// Runtime owns every connection opened by InitRuntime.
type Runtime struct {
	Store    docstore.Store
	Blobs    blob.Store
	Sessions *session.AdminSessions
	Services Services

	redis     *redis.Client
	ownsRedis bool
}

// InitRuntime opens the document store, the blob store and the session store
// selected by cfg and builds the services on top of them.
func InitRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("document store connection failed: %w", err)
	}

	blobs, err := openBlobs(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("blob store init failed: %w", err)
	}

	rt := &Runtime{Store: store, Blobs: blobs}
	if rs, ok := store.(*redisdoc.Store); ok {
		rt.redis = rs.Client()
	} else {
		rt.redis, err = dialRedis(ctx, cfg.RedisURL)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("session store connection failed: %w", err)
		}
		rt.ownsRedis = true
	}
	rt.Sessions = session.NewAdminSessions(rt.redis, cfg.RedisKeyPrefix, cfg.AdminSessionTTL)
	rt.Services = NewServices(store, blobs, rt.Sessions, cfg.PurgePageSize)

	observability.Logger.Info("runtime initialized",
		slog.String("store", cfg.StoreDriver),
		slog.String("blob", cfg.BlobDriver),
	)
	return rt, nil
}

// NewServices builds the service graph over already opened backends.
func NewServices(store docstore.Store, blobs blob.Store, sessions service.SessionLookup, purgePageSize int) Services {
	profiles := repository.NewProfileRepository(store)
	posts := repository.NewPostRepository(store)
	chats := repository.NewChatRepository(store)
	reports := repository.NewReportRepository(store)

	purge := service.NewPurgeService(profiles, posts, chats, blobs, purgePageSize)
	reportSvc := service.NewReportService(reports, profiles, posts)
	return Services{
		Profiles:      service.NewProfileService(profiles, blobs),
		Reviews:       service.NewReviewService(profiles),
		Relationships: service.NewRelationshipService(profiles),
		Posts:         service.NewPostService(posts, profiles, blobs),
		Chats:         service.NewChatService(chats, profiles),
		Reports:       reportSvc,
		Purge:         purge,
		Moderation:    service.NewModerationService(sessions, profiles, purge, reportSvc),
	}
}

// Close releases the runtime's connections.
func (r *Runtime) Close() error {
	var errs []error
	if r.ownsRedis && r.redis != nil {
		errs = append(errs, r.redis.Close())
	}
	if r.Store != nil {
		errs = append(errs, r.Store.Close())
	}
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreRedis:
		return redisdoc.Open(ctx, cfg.RedisURL, redisdoc.Options{
			Prefix:      cfg.RedisKeyPrefix,
			MaxAttempts: cfg.TxMaxAttempts,
			Indexes:     repository.Indexes,
		})
	case config.StorePostgres, config.StoreSQLite:
		dialector := sqlite.Open(cfg.SQLitePath)
		if cfg.StoreDriver == config.StorePostgres {
			dialector = postgres.Open(cfg.PostgresDSN())
		}
		store, err := sqldoc.Open(dialector, sqldoc.Options{
			MaxAttempts: cfg.TxMaxAttempts,
			Indexes:     repository.Indexes,
		})
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate document tables: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func openBlobs(cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobDriver {
	case config.BlobLocal:
		return blob.NewFileStore(cfg.BlobLocalDir, cfg.BlobPublicBaseURL)
	case config.BlobS3:
		return blob.NewS3Store(blob.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.BlobPublicBaseURL,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.BlobDriver)
	}
}

func dialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL %q: %w", addr, err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
