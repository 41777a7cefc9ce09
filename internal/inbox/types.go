// Package inbox delivers raw SMS bodies to the extractor, each exactly once.
package inbox

import (
	"context"
	"errors"
	"time"
)

// Source tells where a message came from.
type Source string

const (
	// SourceDirectory is a message file dropped into the watched inbox directory.
	SourceDirectory Source = "directory"
	// SourceBackup is a message read from an SMS backup export.
	SourceBackup Source = "backup"
	// SourceManual is a message typed on the command line.
	SourceManual Source = "manual"
)

// MessageStatus represents the processing state of a message.
type MessageStatus string

const (
	// MessageStatusPending indicates the message is waiting to be processed.
	MessageStatusPending MessageStatus = "pending"
	// MessageStatusProcessing indicates the message is being processed.
	MessageStatusProcessing MessageStatus = "processing"
	// MessageStatusMatched indicates a transaction was extracted and stored.
	MessageStatusMatched MessageStatus = "matched"
	// MessageStatusUnmatched indicates no extraction rule matched.
	MessageStatusUnmatched MessageStatus = "unmatched"
	// MessageStatusFailed indicates processing failed. Messages are not retried.
	MessageStatusFailed MessageStatus = "failed"
)

// ErrDuplicate is returned when publishing a message id that was already delivered.
var ErrDuplicate = errors.New("message already delivered")

// Message is one raw SMS body and its delivery record.
type Message struct {
	// ID identifies the message. Sources derive it from content so that
	// redelivery of the same message is detected.
	ID string `json:"id"`

	Source Source `json:"source"`

	// Sender is the originating address when known.
	Sender string `json:"sender,omitempty"`

	Body string `json:"body"`

	// ReceivedAt is when the message reached the inbox.
	ReceivedAt time.Time `json:"received_at"`

	Status MessageStatus `json:"status"`

	// ProcessedAt is when processing finished.
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	// TransactionID is the id of the transaction created from the message.
	TransactionID string `json:"transaction_id,omitempty"`

	// Rule is the name of the extraction rule that matched.
	Rule string `json:"rule,omitempty"`

	Error string `json:"error,omitempty"`
}

// Publisher enqueues messages for processing.
type Publisher interface {
	// Publish enqueues msg, or returns ErrDuplicate if its id was seen before.
	Publish(ctx context.Context, msg *Message) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer hands queued messages to a Handler.
type Consumer interface {
	// Start begins consuming messages. The handler is called once per message.
	Start(ctx context.Context, handler Handler) error

	// Stop stops consuming and waits for the in-flight message to complete.
	Stop(ctx context.Context) error
}

// Handler processes one message and records the outcome on it.
type Handler func(ctx context.Context, msg *Message) error

// Store records delivered messages.
type Store interface {
	// Claim records id as delivered. It reports false when id was already claimed.
	Claim(ctx context.Context, id string) (bool, error)

	// SaveMessage saves or updates a message's state.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by id.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// Release forgets the claim on id and its saved message, so a message
	// that was never enqueued can be delivered again.
	Release(ctx context.Context, id string) error

	// Pending returns saved messages still waiting for the handler, oldest first.
	Pending(ctx context.Context) ([]*Message, error)
}

// ErrMessageNotFound is returned by GetMessage for an unknown id.
var ErrMessageNotFound = errors.New("message not found")
