package notification

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// KindDeposit indicates units moved into custody.
	KindDeposit = "deposit"
	// KindWithdrawal indicates units returned from custody to the owner.
	KindWithdrawal = "withdrawal"
	// KindTransfer indicates a ledger-only transfer between entries.
	KindTransfer = "transfer"
	// KindPermission indicates a group and permission were issued over an entry.
	KindPermission = "permission"
	// KindDelegated indicates an entry moved to the execution layer.
	KindDelegated = "delegated"
	// KindUndelegated indicates an entry was committed back to the base layer.
	KindUndelegated = "undelegated"
)

// Message describes a notification payload.
type Message struct {
	ID          string
	Kind        string
	Destination string
	Address     string
	Amount      uint64
}

// NewMessage stamps a message with a fresh identifier.
func NewMessage(kind, destination, address string, amount uint64) Message {
	return Message{ID: uuid.NewString(), Kind: kind, Destination: destination, Address: address, Amount: amount}
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"id", message.ID,
		"kind", message.Kind,
		"destination", message.Destination,
		"address", message.Address,
		"amount", message.Amount,
	)
	return nil
}

// Recorder keeps every message it is sent. Useful in tests.
type Recorder struct {
	mu       sync.Mutex
	Messages []Message
}

func (r *Recorder) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, message)
	return nil
}

// Last returns the most recent message, or the zero message.
func (r *Recorder) Last() Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Messages) == 0 {
		return Message{}
	}
	return r.Messages[len(r.Messages)-1]
}
