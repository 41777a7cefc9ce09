package inbox

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-sync/internal/domain"
	"github.com/dvloznov/expense-sync/internal/logger"
	"github.com/dvloznov/expense-sync/internal/sms"
)

// Extractor turns a message body into a transaction.
type Extractor interface {
	Extract(text string) sms.Result
}

// TransactionAdder stores a new transaction locally.
type TransactionAdder interface {
	Add(ctx context.Context, tx domain.Transaction) error
}

// Appender propagates a new transaction to the remote own document.
type Appender interface {
	Append(ctx context.Context, tx domain.Transaction) error
}

// Processor feeds messages to the extractor and stores matches locally
// before any network activity.
type Processor struct {
	extractor Extractor
	local     TransactionAdder
	remote    Appender
}

// NewProcessor creates a Processor. remote may be nil to keep matches local.
func NewProcessor(extractor Extractor, local TransactionAdder, remote Appender) *Processor {
	return &Processor{extractor: extractor, local: local, remote: remote}
}

// Handle implements Handler.
func (p *Processor) Handle(ctx context.Context, msg *Message) error {
	log := logger.FromContext(ctx).With().Str("message_id", msg.ID).Logger()

	res := p.extractor.Extract(msg.Body)
	if !res.Matched {
		msg.Status = MessageStatusUnmatched
		log.Debug().Msg("No extraction rule matched")
		return nil
	}

	if err := p.local.Add(ctx, res.Transaction); err != nil {
		return fmt.Errorf("Handle: store transaction: %w", err)
	}
	msg.Status = MessageStatusMatched
	msg.TransactionID = res.Transaction.ID
	msg.Rule = res.Rule

	log.Info().
		Str("transaction_id", res.Transaction.ID).
		Str("rule", res.Rule).
		Str("amount", res.Transaction.Amount.StringFixed(2)).
		Msg("Stored transaction from SMS")

	if p.remote != nil {
		if err := p.remote.Append(ctx, res.Transaction); err != nil {
			log.Warn().Err(err).Str("transaction_id", res.Transaction.ID).Msg("Failed to append transaction remotely, next sync will carry it")
		}
	}
	return nil
}
