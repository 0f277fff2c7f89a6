package genie

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voc-dashboard/internal/domain"
	"voc-dashboard/internal/observability"
)

type fakeCreds struct{}

func (fakeCreds) Get(_ context.Context) (domain.Credential, error) {
	return domain.Credential{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)}, nil
}

type fakeConvClient struct {
	startErr error
	message  *domain.ConversationalMessage
	getErr   error
	polls    atomic.Int64
}

func (f *fakeConvClient) StartConversation(_ context.Context, _ domain.Credential, _, _ string) (string, string, error) {
	if f.startErr != nil {
		return "", "", f.startErr
	}
	return "conv-1", "msg-1", nil
}

func (f *fakeConvClient) GetMessage(_ context.Context, _ domain.Credential, _, _, _ string) (*domain.ConversationalMessage, error) {
	f.polls.Add(1)
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.message, nil
}

func newTestOrchestrator(t *testing.T, client *fakeConvClient) (*Orchestrator, *time.Time) {
	t.Helper()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o, err := New(client, fakeCreds{}, nil, Config{
		SpaceID:      "space-1",
		PollTimeout:  90 * time.Second,
		PollInterval: 2 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewForTest())
	require.NoError(t, err)
	o.now = func() time.Time { return current }
	return o, &current
}

func TestNewRequiresSpaceID(t *testing.T) {
	_, err := New(&fakeConvClient{}, fakeCreds{}, nil, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewForTest())
	require.Error(t, err)
	var cfgErr *domain.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSubmitTracksConversation(t *testing.T) {
	client := &fakeConvClient{message: &domain.ConversationalMessage{Status: "EXECUTING_QUERY"}}
	o, _ := newTestOrchestrator(t, client)

	handle, err := o.Submit(context.Background(), "Which property gets the most complaints?", "")
	require.NoError(t, err)
	assert.NotEmpty(t, handle)
	assert.Equal(t, 1, o.Active())
}

func TestSubmitRejectionLeavesNothingBehind(t *testing.T) {
	client := &fakeConvClient{startErr: domain.ErrSubmission("question rejected")}
	o, _ := newTestOrchestrator(t, client)

	_, err := o.Submit(context.Background(), "???", "")
	require.Error(t, err)
	var subErr *domain.SubmissionError
	assert.ErrorAs(t, err, &subErr)
	assert.Zero(t, o.Active())
}

func TestSubmitEmptyQuestionFailsFast(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeConvClient{})

	_, err := o.Submit(context.Background(), "   ", "")
	require.Error(t, err)
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestPollRunningThenSucceeded(t *testing.T) {
	client := &fakeConvClient{message: &domain.ConversationalMessage{Status: "EXECUTING_QUERY"}}
	o, _ := newTestOrchestrator(t, client)

	handle, err := o.Submit(context.Background(), "How are ratings trending?", "")
	require.NoError(t, err)

	conv, err := o.Poll(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationRunning, conv.Status)
	assert.Nil(t, conv.Answer)

	client.message = &domain.ConversationalMessage{
		Status: "COMPLETED",
		Attachments: []domain.MessageAttachment{
			{Text: "Ratings are improving."},
			{Table: &domain.ResultPayload{Columns: []string{"month", "rating"}, Rows: [][]interface{}{{"Jan", 4.2}}}},
		},
	}

	conv, err = o.Poll(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationSucceeded, conv.Status)
	require.NotNil(t, conv.Answer)
	require.Len(t, conv.Answer.Segments, 2)
	assert.Equal(t, domain.SegmentText, conv.Answer.Segments[0].Type)
	assert.Equal(t, domain.SegmentTable, conv.Answer.Segments[1].Type)
	assert.True(t, conv.Answer.HasTable())
	assert.NotNil(t, conv.CompletedAt)
}

func TestPollFailedMessage(t *testing.T) {
	client := &fakeConvClient{message: &domain.ConversationalMessage{Status: "FAILED", Error: "no data matches"}}
	o, _ := newTestOrchestrator(t, client)

	handle, err := o.Submit(context.Background(), "Something impossible", "")
	require.NoError(t, err)

	conv, err := o.Poll(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationFailed, conv.Status)
	assert.Equal(t, "no data matches", conv.ErrorMessage)
}

func TestPollTimesOutPastBudget(t *testing.T) {
	client := &fakeConvClient{message: &domain.ConversationalMessage{Status: "EXECUTING_QUERY"}}
	o, clock := newTestOrchestrator(t, client)

	handle, err := o.Submit(context.Background(), "Slow question", "")
	require.NoError(t, err)

	*clock = clock.Add(91 * time.Second)

	conv, err := o.Poll(context.Background(), handle)
	require.Error(t, err)
	var timeoutErr *domain.TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, domain.ConversationTimedOut, conv.Status)

	// The deadline is enforced before any remote call.
	assert.Zero(t, client.polls.Load())

	// Terminal state is sticky: a late remote answer is not consulted.
	conv, err = o.Poll(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationTimedOut, conv.Status)
	assert.Zero(t, client.polls.Load())
}

func TestFlakyPollRoundTripIsNotTerminal(t *testing.T) {
	client := &fakeConvClient{getErr: domain.ErrTransport("connection reset")}
	o, _ := newTestOrchestrator(t, client)

	handle, err := o.Submit(context.Background(), "Question", "")
	require.NoError(t, err)

	conv, err := o.Poll(context.Background(), handle)
	require.NoError(t, err)
	assert.False(t, conv.Status.Terminal())
}

func TestCancelStopsTracking(t *testing.T) {
	client := &fakeConvClient{message: &domain.ConversationalMessage{Status: "EXECUTING_QUERY"}}
	o, _ := newTestOrchestrator(t, client)

	handle, err := o.Submit(context.Background(), "Question", "")
	require.NoError(t, err)

	require.NoError(t, o.Cancel(handle))
	assert.Zero(t, o.Active())

	_, err = o.Poll(context.Background(), handle)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	assert.Error(t, o.Cancel("missing"))
}

func TestConversationsAreIndependent(t *testing.T) {
	client := &fakeConvClient{message: &domain.ConversationalMessage{Status: "EXECUTING_QUERY"}}
	o, _ := newTestOrchestrator(t, client)

	first, err := o.Submit(context.Background(), "First", "")
	require.NoError(t, err)
	second, err := o.Submit(context.Background(), "Second", "")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	client.message = &domain.ConversationalMessage{Status: "COMPLETED", Attachments: []domain.MessageAttachment{{Text: "done"}}}
	conv, err := o.Poll(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationSucceeded, conv.Status)
	assert.Equal(t, 2, o.Active())
}

func TestNormalizeEmptyAnswerGetsPlaceholderText(t *testing.T) {
	answer := normalize(&domain.ConversationalMessage{Status: "COMPLETED"})
	require.Len(t, answer.Segments, 1)
	assert.Equal(t, domain.SegmentText, answer.Segments[0].Type)
	assert.NotEmpty(t, answer.Segments[0].Text)
}

func TestFinishedConversationsArePrunedAfterRetention(t *testing.T) {
	client := &fakeConvClient{message: &domain.ConversationalMessage{
		Status:      "COMPLETED",
		Attachments: []domain.MessageAttachment{{Text: "done"}},
	}}
	o, clock := newTestOrchestrator(t, client)

	old, err := o.Submit(context.Background(), "Old question", "")
	require.NoError(t, err)
	conv, err := o.Poll(context.Background(), old)
	require.NoError(t, err)
	require.Equal(t, domain.ConversationSucceeded, conv.Status)

	// Within retention the snapshot is still pollable.
	*clock = clock.Add(5 * time.Minute)
	_, err = o.Submit(context.Background(), "Another question", "")
	require.NoError(t, err)
	_, err = o.Poll(context.Background(), old)
	require.NoError(t, err)

	// Past retention the next submission sweeps it away.
	*clock = clock.Add(6 * time.Minute)
	_, err = o.Submit(context.Background(), "Yet another", "")
	require.NoError(t, err)

	_, err = o.Poll(context.Background(), old)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

type fakeRefresher struct {
	calls   atomic.Int64
	onForce func()
}

func (f *fakeRefresher) ForceRefresh(_ context.Context) (domain.Credential, error) {
	f.calls.Add(1)
	if f.onForce != nil {
		f.onForce()
	}
	return domain.Credential{AccessToken: "tok-fresh", Expiry: time.Now().Add(time.Hour)}, nil
}

func TestPollRefreshesRejectedCredentialAndRetries(t *testing.T) {
	client := &fakeConvClient{
		getErr: domain.ErrAuth("token rejected"),
		message: &domain.ConversationalMessage{
			Status:      "COMPLETED",
			Attachments: []domain.MessageAttachment{{Text: "done"}},
		},
	}
	refresher := &fakeRefresher{onForce: func() { client.getErr = nil }}
	o, _ := newTestOrchestrator(t, client)
	o.refresher = refresher

	handle, err := o.Submit(context.Background(), "Any open issues?", "")
	require.NoError(t, err)

	conv, err := o.Poll(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationSucceeded, conv.Status)
	assert.Equal(t, int64(1), refresher.calls.Load(), "one forced refresh")
	assert.Equal(t, int64(2), client.polls.Load(), "rejected round trip plus the retry")
}

func TestPollTransportErrorSkipsRefresh(t *testing.T) {
	client := &fakeConvClient{getErr: domain.ErrTransport("connection reset")}
	refresher := &fakeRefresher{}
	o, _ := newTestOrchestrator(t, client)
	o.refresher = refresher

	handle, err := o.Submit(context.Background(), "Any open issues?", "")
	require.NoError(t, err)

	conv, err := o.Poll(context.Background(), handle)
	require.NoError(t, err)
	assert.False(t, conv.Status.Terminal())
	assert.Zero(t, refresher.calls.Load())
	assert.Equal(t, int64(1), client.polls.Load())
}
