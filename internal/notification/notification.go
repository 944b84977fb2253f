package notification

import (
	"context"
	"log/slog"
)

const (
	// KindTransactionCreated is emitted after a new ledger row commits.
	KindTransactionCreated = "transaction.created"
	// KindTransactionAmended is emitted after an existing row is rewritten.
	KindTransactionAmended = "transaction.amended"
	// KindWalletDeleted is emitted after a wallet and its rows are removed.
	KindWalletDeleted = "wallet.deleted"
)

// Message describes a ledger event. Key is the wallet id so consumers see
// events for one wallet in commit order.
type Message struct {
	Kind    string
	Key     string
	Payload any
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "key", message.Key, "payload", message.Payload)
	return nil
}
