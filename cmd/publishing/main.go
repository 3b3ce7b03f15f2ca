package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/contentgraph/publishing/internal/config"
	"github.com/contentgraph/publishing/internal/downstream"
	"github.com/contentgraph/publishing/internal/expansion"
	"github.com/contentgraph/publishing/internal/infra/database"
	"github.com/contentgraph/publishing/internal/infra/repository"
	"github.com/contentgraph/publishing/internal/infra/telemetry"
	"github.com/contentgraph/publishing/internal/present/rest"
	"github.com/contentgraph/publishing/internal/service"
	"github.com/contentgraph/publishing/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if conf.Server.EnableTrace {
		shutdown, err := telemetry.SetupTraceProvider(context.Background(), conf.Server.TraceEndpoint, "publishing")
		if err != nil {
			slog.Error("failed to setup trace provider", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Error("failed to shutdown trace provider", "error", err)
			}
		}()
	}

	db, err := database.NewPostgres(conf.Server.PostgresDsn)
	if err != nil {
		slog.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	if err := database.MigratePostgres(db); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	rdb := database.NewRedis(conf.Server.RedisAddr, conf.Server.RedisPassword, conf.Server.RedisDB)
	mc := database.NewMemcached(conf.Server.MemcachedAddr)

	store := repository.NewContentStore(db)
	reader := repository.NewGraphReader(db)
	lock := repository.NewRedisLock(rdb)
	queue := repository.NewRedisQueue(rdb)
	expandedCache := repository.NewExpandedLinksCache(mc, logger)

	sync := downstream.NewSync(queue, logger)
	signal := service.NewSignalService(rdb)
	resolver := expansion.NewResolver(reader, reader)

	putContent := usecase.NewPutContentUsecase(store, sync, expandedCache, logger)
	publish := usecase.NewPublishUsecase(store, sync, signal, expandedCache, logger)
	patchLinks := usecase.NewPatchLinkSetUsecase(store, sync, expandedCache, logger)
	lookup := usecase.NewLookupUsecase(store)
	represent := usecase.NewRepresentUsecase(store, sync, lock, logger)

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware("publishing"))
	}

	handler := rest.NewHandler(putContent, publish, patchLinks, lookup, represent, resolver, signal, expandedCache)
	handler.RegisterRoutes(e)

	e.Logger.Fatal(e.Start(conf.Server.Addr))
}
