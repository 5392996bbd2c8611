package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/mkrupp/feed/internal/infra/config"
	"github.com/mkrupp/feed/internal/infra/database"
	"github.com/mkrupp/feed/internal/infra/logging"
	"github.com/mkrupp/feed/internal/infra/transport/http"
	"github.com/mkrupp/feed/internal/repo/blob"
	"github.com/mkrupp/feed/internal/svc/assetsvc"
	"github.com/mkrupp/feed/internal/svc/authsvc"
	"github.com/mkrupp/feed/internal/svc/broadcast"
	"github.com/mkrupp/feed/internal/svc/feedsvc"
)

const (
	appName = "feed"
	svcName = "feedsvc"
)

type Config struct {
	config.EnvConfig

	// StoreDriver selects the user and post storage: memory, sqlite or postgres
	StoreDriver string `env:"STORE_DRIVER" default:"sqlite"`
	// BlobDriver selects the asset storage: filesystem or s3
	BlobDriver string `env:"BLOB_DRIVER" default:"filesystem"`

	Log       logging.LoggerConfig                `envPrefix:"LOG_"`
	HTTP      http.HTTPTransportConfig            `envPrefix:"HTTP_"`
	Auth      authsvc.CredentialConfig            `envPrefix:"AUTH_"`
	Feed      feedsvc.FeedConfig                  `envPrefix:"FEED_"`
	FeedHTTP  feedsvc.HTTPTransportConfig         `envPrefix:"FEED_HTTP_"`
	Asset     assetsvc.AssetConfig                `envPrefix:"ASSET_"`
	Broadcast broadcast.HubConfig                 `envPrefix:"BROADCAST_"`
	WS        broadcast.WebSocketConfig           `envPrefix:"WS_"`
	SQLite    database.SQLiteConfig               `envPrefix:"SQLITE_"`
	Postgres  database.PostgresConfig             `envPrefix:"POSTGRES_"`
	Blob      blob.FileSystemBlobRepositoryConfig `envPrefix:"BLOB_"`
	S3        blob.S3BlobRepositoryConfig         `envPrefix:"S3_"`
}

func main() {
	var (
		cfg Config
		ctx = context.Background()

		configPrefix = strings.ToUpper(strings.Join([]string{appName, svcName}, "_"))
		loggerName   = strings.ToLower(strings.Join([]string{appName, svcName}, "."))
	)

	// A missing .env file is fine, the environment may be set otherwise.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		panic(err)
	}

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		panic(err)
	}

	logging.Configure(ctx, cfg.Log, loggerName)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, cfg Config) (err error) {
	log := logging.GetLogger("cmd.feedsvc")

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "error", "err", err)
		}

		log.InfoContext(ctx, "shutdown")
	}()

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer stores.Close()

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open blobs: %w", err)
	}

	creds, err := authsvc.NewCredentialService(ctx, cfg.Auth)
	if err != nil {
		return fmt.Errorf("new credential service: %w", err)
	}

	guard := authsvc.NewGuard(creds, stores.posts)
	assets := assetsvc.NewStore(blobs, cfg.Asset)
	sweeper := assetsvc.NewSweeper(blobs, stores.posts, cfg.Asset)

	hub := broadcast.NewHub(cfg.Broadcast)
	defer hub.Close()

	engine := feedsvc.NewEngine(stores.posts, stores.users, assets, guard, hub, cfg.Feed)

	router := http.NewRouter(cfg.HTTP,
		healthTransport{},
		authsvc.NewHTTPTransport(authsvc.NewAuthService(stores.users, creds)),
		feedsvc.NewHTTPTransport(engine, guard, assets, cfg.FeedHTTP),
		assetsvc.NewHTTPTransport(assets),
		broadcast.NewWebSocketTransport(hub, cfg.WS),
	)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := http.ListenAndServe(ctx, router, cfg.HTTP); err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		if err := sweeper.Run(ctx); err != nil {
			return fmt.Errorf("run sweeper: %w", err)
		}

		return nil
	})

	return group.Wait() //nolint:wrapcheck
}
