package domain

import "time"

// ConversationStatus represents the lifecycle state of a conversational query.
type ConversationStatus string

// Conversational query lifecycle statuses.
const (
	ConversationSubmitted ConversationStatus = "submitted"
	ConversationRunning   ConversationStatus = "running"
	ConversationSucceeded ConversationStatus = "succeeded"
	ConversationFailed    ConversationStatus = "failed"
	ConversationTimedOut  ConversationStatus = "timed_out"
)

// Terminal reports whether the status is a terminal state.
func (s ConversationStatus) Terminal() bool {
	switch s {
	case ConversationSucceeded, ConversationFailed, ConversationTimedOut:
		return true
	}
	return false
}

// Conversation tracks one natural-language question from submission to a
// terminal state. Held in memory only, discarded once the UI has consumed
// the result.
type Conversation struct {
	ID           string
	Question     string
	Scope        string // optional property id the question is scoped to
	SpaceID      string
	RemoteConvID string
	MessageID    string
	Status       ConversationStatus
	Answer       *Answer
	ErrorMessage string
	SubmittedAt  time.Time
	CompletedAt  *time.Time
}

// AnswerSegmentType discriminates the parts of a normalized answer.
type AnswerSegmentType string

// Answer segment types.
const (
	SegmentText  AnswerSegmentType = "text"
	SegmentTable AnswerSegmentType = "table"
)

// AnswerSegment is one part of a conversational answer: narrative text or a
// tabular result. An answer may contain both.
type AnswerSegment struct {
	Type    AnswerSegmentType
	Text    string
	Table   *ResultPayload
	SQLText string // the query the service generated, when it shared one
}

// Answer is the normalized result of a conversational query, so the UI never
// needs platform-specific parsing.
type Answer struct {
	Segments []AnswerSegment
}

// HasTable reports whether any segment carries tabular data.
func (a *Answer) HasTable() bool {
	for _, seg := range a.Segments {
		if seg.Type == SegmentTable {
			return true
		}
	}
	return false
}
