package mailer

import (
	"context"
	"log/slog"

	"github.com/GertsDev/burgerverse-backend/internal/ports"
)

// LogMailer records that a message would have been sent. The body is not
// logged because it carries the reset code.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg ports.MailMessage) error {
	m.logger.InfoContext(ctx, "mail delivery skipped; smtp not configured",
		"module", "mailer",
		"layer", "adapter",
		"operation", "send_mail",
		"outcome", "skipped",
		"subject", msg.Subject,
	)
	return nil
}
