package domain

import (
	"context"
	"time"
)

// TokenSource obtains a fresh platform credential from the identity endpoint.
// Implemented by platform.AuthClient.
type TokenSource interface {
	FetchCredential(ctx context.Context) (Credential, error)
}

// CredentialSource hands out the current valid credential.
// Implemented by credential.Provider.
type CredentialSource interface {
	Get(ctx context.Context) (Credential, error)
}

// StatementExecutor runs SQL against the remote analytical store using the
// given credential. Implemented by platform.WarehouseClient.
type StatementExecutor interface {
	ExecuteStatement(ctx context.Context, cred Credential, sqlQuery string) (*ResultPayload, error)
}

// ConversationalClient talks to the remote conversational analytics service.
// Implemented by platform.GenieClient.
type ConversationalClient interface {
	// StartConversation submits a question and returns the remote
	// conversation and message identifiers.
	StartConversation(ctx context.Context, cred Credential, spaceID, question string) (conversationID, messageID string, err error)
	// GetMessage fetches the current state of a submitted question.
	GetMessage(ctx context.Context, cred Credential, spaceID, conversationID, messageID string) (*ConversationalMessage, error)
}

// ConversationalMessage is the raw platform state of an asynchronous answer,
// before normalization into an Answer.
type ConversationalMessage struct {
	Status      string // platform status, e.g. SUBMITTED, EXECUTING_QUERY, COMPLETED, FAILED
	Attachments []MessageAttachment
	Error       string
}

// MessageAttachment carries one piece of a conversational answer: narrative
// text, a generated query, or an inline tabular result.
type MessageAttachment struct {
	Text    string
	SQLText string
	Table   *ResultPayload
}

// HistoryRecorder persists one entry per data-access request for operator
// review. Implemented by history.Store. Writes are best-effort.
type HistoryRecorder interface {
	Record(ctx context.Context, entry HistoryEntry) error
}

// HistoryEntry is one recorded data-access request.
type HistoryEntry struct {
	ID          int64
	RequestedAt time.Time
	Table       LogicalTable
	Fingerprint string
	Source      Source
	DurationMS  int64
	RowCount    int
	ErrorText   string
}
