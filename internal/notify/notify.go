// Package notify is the boundary to outbound user notifications. Delivery
// transports (email, SMS) live behind the Sender interface; the core only
// ever hands codes over and moves on.
package notify

import (
	"context"

	"go.uber.org/zap"

	"tenauth.dev/internal/obs"
)

// Sender delivers a password reset code to a user.
type Sender interface {
	SendResetCode(ctx context.Context, email, code string) error
}

// LogSender writes deliveries to the structured log. It stands in for a real
// transport in development and keeps an audit trail of issued codes.
type LogSender struct{}

func (LogSender) SendResetCode(ctx context.Context, email, code string) error {
	obs.Logger().Info("password reset code issued",
		zap.String("email", email),
		zap.Int("code_length", len(code)))
	return nil
}
