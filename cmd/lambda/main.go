package main

import (
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	lambdaadapter "github.com/couchcryptid/gfs-grid-etl/internal/adapter/lambda"
	"github.com/couchcryptid/gfs-grid-etl/internal/app"
	"github.com/couchcryptid/gfs-grid-etl/internal/config"
	"github.com/couchcryptid/gfs-grid-etl/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)

	// Metrics are registered but not scraped; Lambda has no /metrics endpoint.
	converter, err := app.NewConverter(cfg, logger, observability.NewMetrics())
	if err != nil {
		logger.Error("failed to build converter", "error", err)
		os.Exit(1)
	}

	lambda.Start(lambdaadapter.NewHandler(converter, logger).Handle)
}
