package channel

import (
	"context"

	"go.uber.org/zap"

	"notifyrouter/pkg/logger"
)

// LogTransport only logs the message. Used for local runs without a mail relay.
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, msg Message) error {
	logger.WithTrace(ctx, t.logger).Info("mail (log transport)",
		zap.String("from", msg.From),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_len", len(msg.Body)),
		zap.Bool("html", msg.HTML),
	)
	return nil
}
