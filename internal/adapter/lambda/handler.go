// Package lambda adapts the converter to the AWS Lambda runtime.
package lambda

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/couchcryptid/gfs-grid-etl/internal/domain"
)

// Invoker handles one object-created notification.
type Invoker interface {
	HandleNotification(ctx context.Context, payload []byte) (domain.Ack, error)
}

// Handler receives SNS-wrapped or bare S3 events. The raw payload is passed
// through so both envelope shapes share one parser.
type Handler struct {
	invoker Invoker
	logger  *slog.Logger
}

// NewHandler creates a Lambda handler backed by invoker.
func NewHandler(invoker Invoker, logger *slog.Logger) *Handler {
	return &Handler{invoker: invoker, logger: logger}
}

// Handle is registered with lambda.Start.
func (h *Handler) Handle(ctx context.Context, event json.RawMessage) (domain.Ack, error) {
	logger := h.logger
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With("request_id", lc.AwsRequestID)
	}
	logger.Debug("invocation received", "bytes", len(event))

	ack, err := h.invoker.HandleNotification(ctx, event)
	if err != nil {
		logger.Error("invocation failed", "error", err)
		return domain.Ack{}, err
	}
	return ack, nil
}
