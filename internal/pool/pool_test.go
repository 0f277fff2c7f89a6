package pool

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voc-dashboard/internal/domain"
	"voc-dashboard/internal/observability"
)

type staticCredSource struct {
	mu   sync.Mutex
	cred domain.Credential
	err  error
}

func (s *staticCredSource) Get(_ context.Context) (domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred, s.err
}

func (s *staticCredSource) set(cred domain.Credential) {
	s.mu.Lock()
	s.cred = cred
	s.mu.Unlock()
}

func newTestPool(t *testing.T, size int, acquireTimeout time.Duration) (*Pool, *staticCredSource, *time.Time) {
	t.Helper()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	creds := &staticCredSource{cred: domain.Credential{
		AccessToken: "tok-1",
		Expiry:      current.Add(time.Hour),
	}}
	p := New(creds, Config{Size: size, AcquireTimeout: acquireTimeout, Margin: time.Minute},
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewForTest())
	p.now = func() time.Time { return current }
	return p, creds, &current
}

func TestWithSessionRunsWithCurrentCredential(t *testing.T) {
	p, _, _ := newTestPool(t, 2, time.Second)

	var got domain.Credential
	err := p.WithSession(context.Background(), func(s *Session) error {
		got = s.Credential()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got.AccessToken)
	assert.Equal(t, 1, p.IdleCount())
}

func TestSessionIsReused(t *testing.T) {
	p, _, _ := newTestPool(t, 2, time.Second)

	var first, second string
	require.NoError(t, p.WithSession(context.Background(), func(s *Session) error {
		first = s.ID()
		return nil
	}))
	require.NoError(t, p.WithSession(context.Background(), func(s *Session) error {
		second = s.ID()
		return nil
	}))
	assert.Equal(t, first, second)
}

func TestExhaustedPoolFailsWithinBoundedWait(t *testing.T) {
	p, _, _ := newTestPool(t, 1, 50*time.Millisecond)

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = p.WithSession(context.Background(), func(*Session) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	err := p.WithSession(context.Background(), func(*Session) error { return nil })
	require.Error(t, err)
	var exhausted *domain.PoolExhaustedError
	assert.ErrorAs(t, err, &exhausted)
}

func TestCallerCancellationIsNotExhaustion(t *testing.T) {
	p, _, _ := newTestPool(t, 1, time.Minute)

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = p.WithSession(context.Background(), func(*Session) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.WithSession(ctx, func(*Session) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransportErrorDiscardsSession(t *testing.T) {
	p, _, _ := newTestPool(t, 2, time.Second)

	err := p.WithSession(context.Background(), func(*Session) error {
		return domain.ErrTransport("connection reset")
	})
	require.Error(t, err)
	assert.Equal(t, 0, p.IdleCount(), "failed session must not return to the idle list")
}

func TestDomainErrorFromWorkKeepsSession(t *testing.T) {
	p, _, _ := newTestPool(t, 2, time.Second)

	err := p.WithSession(context.Background(), func(*Session) error {
		return domain.ErrValidation("bad statement")
	})
	require.Error(t, err)
	assert.Equal(t, 1, p.IdleCount(), "a non-I/O failure leaves the session reusable")
}

func TestCredentialRotationRetiresIdleSessions(t *testing.T) {
	p, creds, clock := newTestPool(t, 2, time.Second)

	var first string
	require.NoError(t, p.WithSession(context.Background(), func(s *Session) error {
		first = s.ID()
		return nil
	}))

	creds.set(domain.Credential{AccessToken: "tok-2", Expiry: clock.Add(2 * time.Hour)})

	var second string
	var secondToken string
	require.NoError(t, p.WithSession(context.Background(), func(s *Session) error {
		second = s.ID()
		secondToken = s.Credential().AccessToken
		return nil
	}))
	assert.NotEqual(t, first, second, "session bound to a rotated credential must be retired")
	assert.Equal(t, "tok-2", secondToken)
}
