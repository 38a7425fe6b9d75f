package sender

import (
	"context"

	"go.uber.org/zap"
)

// SimulatedSender is the explicit degraded-mode transport selected by
// configuration when the real transport is not set up (no SMTP host, no push
// credentials). It logs the would-be delivery and always succeeds, keeping
// the rest of the pipeline exercisable in development environments.
type SimulatedSender struct {
	channel string
	logger  *zap.Logger
}

func NewSimulatedSender(channel string, logger *zap.Logger) *SimulatedSender {
	return &SimulatedSender{channel: channel, logger: logger}
}

func (s *SimulatedSender) Send(_ context.Context, msg *Message) error {
	s.logger.Info("simulated send",
		zap.String("channel", s.channel),
		zap.String("recipient", truncate(msg.Recipient, 20)),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
	)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Sender = (*SimulatedSender)(nil)
