// Package genie orchestrates asynchronous natural-language questions: submit
// once, then let the caller poll on its own schedule until a terminal state.
// The orchestrator enforces a hard deadline measured from submission so a
// stuck remote answer becomes timed_out instead of polling forever.
package genie

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voc-dashboard/internal/domain"
	"voc-dashboard/internal/observability"
)

// CredentialRefresher forces a synchronous credential renewal after the
// platform rejects a token mid-conversation. Implemented by
// credential.Provider.
type CredentialRefresher interface {
	ForceRefresh(ctx context.Context) (domain.Credential, error)
}

// Config carries the polling knobs.
type Config struct {
	SpaceID      string
	PollTimeout  time.Duration // max total wait measured from submission
	PollInterval time.Duration // suggested client poll cadence
}

// terminalRetention is how long a finished conversation stays pollable
// before it is pruned. Long enough for a dashboard to render the answer,
// short enough that abandoned handles do not accumulate.
const terminalRetention = 10 * time.Minute

// Orchestrator tracks conversational queries through their lifecycle. Each
// conversation is independent; concurrent questions share only the
// credential source underneath.
type Orchestrator struct {
	client    domain.ConversationalClient
	creds     domain.CredentialSource
	refresher CredentialRefresher // nil when reactive refresh is unavailable
	cfg       Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	now       func() time.Time

	mu            sync.Mutex
	conversations map[string]*domain.Conversation
}

// New creates an Orchestrator. Returns a ConfigError when the space id is
// missing: the conversational feature must refuse to initialize rather than
// fail on first question.
func New(client domain.ConversationalClient, creds domain.CredentialSource, refresher CredentialRefresher, cfg Config, logger *slog.Logger, metrics *observability.Metrics) (*Orchestrator, error) {
	if cfg.SpaceID == "" {
		return nil, domain.ErrConfig("conversational space id is not configured")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 90 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Orchestrator{
		client:        client,
		creds:         creds,
		refresher:     refresher,
		cfg:           cfg,
		logger:        logger.With("component", "genie"),
		metrics:       metrics,
		now:           time.Now,
		conversations: make(map[string]*domain.Conversation),
	}, nil
}

// PollInterval is the cadence the caller should poll at.
func (o *Orchestrator) PollInterval() time.Duration { return o.cfg.PollInterval }

// Submit sends a question to the conversational service and returns a local
// handle for polling. A platform rejection surfaces immediately as
// SubmissionError and leaves no tracked conversation behind.
func (o *Orchestrator) Submit(ctx context.Context, question, scope string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", domain.ErrValidation("question is required")
	}
	if scope != "" {
		question = question + " (scoped to property " + scope + ")"
	}

	cred, err := o.creds.Get(ctx)
	if err != nil {
		return "", err
	}

	remoteConvID, messageID, err := o.client.StartConversation(ctx, cred, o.cfg.SpaceID, question)
	if err != nil {
		return "", err
	}

	conv := &domain.Conversation{
		ID:           uuid.NewString(),
		Question:     question,
		Scope:        scope,
		SpaceID:      o.cfg.SpaceID,
		RemoteConvID: remoteConvID,
		MessageID:    messageID,
		Status:       domain.ConversationSubmitted,
		SubmittedAt:  o.now(),
	}

	o.mu.Lock()
	o.conversations[conv.ID] = conv
	o.pruneLocked()
	o.mu.Unlock()

	o.logger.Info("conversation submitted",
		"conversation_id", conv.ID,
		"remote_conversation_id", remoteConvID)
	return conv.ID, nil
}

// Poll advances one conversation and returns a snapshot of it. Once
// terminal, further polls return the stored snapshot without remote calls.
// The deadline is checked before polling, so a conversation past its budget
// transitions to timed_out even if the remote answer would have arrived
// later.
func (o *Orchestrator) Poll(ctx context.Context, handle string) (*domain.Conversation, error) {
	o.mu.Lock()
	conv, ok := o.conversations[handle]
	if !ok {
		o.mu.Unlock()
		return nil, domain.ErrNotFound("unknown conversation %q", handle)
	}
	if conv.Status.Terminal() {
		snapshot := *conv
		o.mu.Unlock()
		return &snapshot, nil
	}
	if o.now().Sub(conv.SubmittedAt) > o.cfg.PollTimeout {
		o.transitionLocked(conv, domain.ConversationTimedOut, nil,
			"answer did not arrive within the time budget")
		snapshot := *conv
		o.mu.Unlock()
		o.logger.Warn("conversation timed out",
			"conversation_id", conv.ID,
			"elapsed", o.now().Sub(conv.SubmittedAt))
		return &snapshot, domain.ErrTimeout("conversational query timed out")
	}
	remoteConvID, messageID := conv.RemoteConvID, conv.MessageID
	o.mu.Unlock()

	cred, err := o.creds.Get(ctx)
	if err != nil {
		return nil, err
	}

	msg, err := o.client.GetMessage(ctx, cred, o.cfg.SpaceID, remoteConvID, messageID)
	if err != nil {
		var authErr *domain.AuthError
		if errors.As(err, &authErr) && o.refresher != nil {
			// A rejected token will not heal on its own; force a refresh
			// and retry this round trip once with the new credential.
			fresh, refreshErr := o.refresher.ForceRefresh(ctx)
			if refreshErr != nil {
				o.logger.Warn("forced credential refresh failed", "error", refreshErr)
			} else {
				o.logger.Info("credential rejected during poll, refreshed and retrying",
					"conversation_id", handle)
				msg, err = o.client.GetMessage(ctx, fresh, o.cfg.SpaceID, remoteConvID, messageID)
			}
		}
	}
	if err != nil {
		// A flaky poll round trip is not terminal; the caller retries on
		// its next tick and the deadline still bounds the total wait.
		o.logger.Warn("poll round trip failed", "conversation_id", handle, "error", err)
		o.mu.Lock()
		snapshot := *conv
		o.mu.Unlock()
		return &snapshot, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if conv.Status.Terminal() {
		snapshot := *conv
		return &snapshot, nil
	}

	switch msg.Status {
	case "COMPLETED":
		o.transitionLocked(conv, domain.ConversationSucceeded, normalize(msg), "")
	case "FAILED", "CANCELLED", "QUERY_RESULT_EXPIRED":
		reason := msg.Error
		if reason == "" {
			reason = "the conversational service reported failure"
		}
		o.transitionLocked(conv, domain.ConversationFailed, nil, reason)
	default:
		conv.Status = domain.ConversationRunning
	}
	snapshot := *conv
	return &snapshot, nil
}

// Cancel stops local tracking of a conversation. The remote computation is
// left to finish on its own; there is no platform-side abort.
func (o *Orchestrator) Cancel(handle string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.conversations[handle]; !ok {
		return domain.ErrNotFound("unknown conversation %q", handle)
	}
	delete(o.conversations, handle)
	return nil
}

// Active returns the number of tracked conversations.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.conversations)
}

// pruneLocked drops terminal conversations past their retention window.
// Caller holds mu.
func (o *Orchestrator) pruneLocked() {
	cutoff := o.now().Add(-terminalRetention)
	for id, conv := range o.conversations {
		if conv.Status.Terminal() && conv.CompletedAt != nil && conv.CompletedAt.Before(cutoff) {
			delete(o.conversations, id)
		}
	}
}

// transitionLocked moves a conversation to a terminal state. Caller holds mu.
func (o *Orchestrator) transitionLocked(conv *domain.Conversation, status domain.ConversationStatus, answer *domain.Answer, errMsg string) {
	conv.Status = status
	conv.Answer = answer
	conv.ErrorMessage = errMsg
	completed := o.now()
	conv.CompletedAt = &completed
	o.metrics.ConversationsTotal.WithLabelValues(string(status)).Inc()
}

// normalize flattens the platform's attachment list into the discriminated
// answer the UI renders. Text and tables keep their relative order.
func normalize(msg *domain.ConversationalMessage) *domain.Answer {
	answer := &domain.Answer{}
	for _, att := range msg.Attachments {
		if att.Text != "" && att.Table == nil {
			answer.Segments = append(answer.Segments, domain.AnswerSegment{
				Type:    domain.SegmentText,
				Text:    att.Text,
				SQLText: att.SQLText,
			})
			continue
		}
		if att.Table != nil {
			answer.Segments = append(answer.Segments, domain.AnswerSegment{
				Type:    domain.SegmentTable,
				Text:    att.Text,
				Table:   att.Table,
				SQLText: att.SQLText,
			})
		}
	}
	if len(answer.Segments) == 0 {
		answer.Segments = append(answer.Segments, domain.AnswerSegment{
			Type: domain.SegmentText,
			Text: "The service returned an empty answer.",
		})
	}
	return answer
}
