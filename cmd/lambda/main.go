package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"github.com/JonMunkholm/chunkjob/internal/app"
	"github.com/JonMunkholm/chunkjob/internal/config"
	"github.com/JonMunkholm/chunkjob/internal/core"
	"github.com/JonMunkholm/chunkjob/internal/logging"
)

var (
	adapter       *httpadapter.HandlerAdapter
	dispatcher    *core.Dispatcher
	sweepInterval time.Duration
	log           *slog.Logger
)

// init runs once per Lambda container (cold start). Job records must live
// in a shared store (redis, postgres) since containers come and go.
func init() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	adapter = httpadapter.New(a.Server.Handler())
	dispatcher = a.Dispatcher
	sweepInterval = cfg.Store.SweepInterval
	log = logger
}

// Handler is the Lambda entrypoint for API Gateway REST API (proxy integration).
// There is no background sweeper between invocations, so expired jobs are
// evicted by the first request after each sweep interval. Redis expires
// records on its own; Postgres and SQLite depend on this pass.
func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if _, err := dispatcher.SweepIfDue(ctx, sweepInterval); err != nil {
		log.Warn("opportunistic sweep failed", "error", err)
	}
	return adapter.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
