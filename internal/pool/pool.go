// Package pool bounds concurrent access to the remote analytical store. The
// warehouse is rate-limited server-side, so the pool keeps a small fixed
// number of authenticated sessions and blocks callers (up to a bounded wait)
// when all of them are checked out.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"voc-dashboard/internal/domain"
	"voc-dashboard/internal/observability"
)

// Session is one authenticated warehouse session, bound to the credential
// that was current when it was created. A checked-out session is used by
// exactly one caller at a time.
type Session struct {
	id        string
	cred      domain.Credential
	createdAt time.Time
}

// ID returns the session's identifier, for logging.
func (s *Session) ID() string { return s.id }

// Credential returns the credential the session is bound to.
func (s *Session) Credential() domain.Credential { return s.cred }

// Config holds pool tuning parameters.
type Config struct {
	// Size is the maximum number of concurrently checked-out sessions.
	Size int
	// AcquireTimeout bounds how long a caller waits for a session before
	// failing with PoolExhaustedError.
	AcquireTimeout time.Duration
	// Margin retires a session this long before its credential expires, so
	// a query never starts on a token about to run out.
	Margin time.Duration
}

// Pool hands out sessions under a concurrency bound. Sessions are created
// lazily, bound to the current credential, and retired when that credential
// is refreshed or expires, or when use of the session returns a transport
// or auth error.
type Pool struct {
	creds   domain.CredentialSource
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics

	sem *semaphore.Weighted
	now func() time.Time

	mu   sync.Mutex
	idle []*Session
}

// New creates a Pool drawing credentials from creds.
func New(creds domain.CredentialSource, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Pool {
	if cfg.Size < 1 {
		cfg.Size = 1
	}
	return &Pool{
		creds:   creds,
		cfg:     cfg,
		logger:  logger.With("component", "connection-pool"),
		metrics: metrics,
		sem:     semaphore.NewWeighted(int64(cfg.Size)),
		now:     time.Now,
	}
}

// WithSession runs fn with an exclusively held session and guarantees the
// slot is released afterwards, whether fn succeeds or not. The session is
// returned to the idle list unless fn reported a transport or auth error, in
// which case it is discarded. A connection is never reused after an I/O
// failure.
func (p *Pool) WithSession(ctx context.Context, fn func(*Session) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		// Distinguish caller cancellation from pool contention.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.metrics.PoolExhausted.Inc()
		return domain.ErrPoolExhausted("no session available within %s", p.cfg.AcquireTimeout)
	}
	defer p.sem.Release(1)

	s, err := p.checkout(ctx)
	if err != nil {
		return err
	}

	err = fn(s)
	if discardable(err) {
		p.logger.Warn("discarding session after error", "session", s.id, "error", err)
		return err
	}
	p.checkin(s)
	return err
}

// checkout returns an idle session bound to a still-valid credential, or
// creates a fresh one. Stale sessions found on the idle list are dropped.
func (p *Pool) checkout(ctx context.Context) (*Session, error) {
	current, err := p.creds.Get(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	for len(p.idle) > 0 {
		s := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if p.usable(s, current) {
			p.mu.Unlock()
			return s, nil
		}
		p.logger.Debug("retiring stale session", "session", s.id)
	}
	p.mu.Unlock()

	s := &Session{id: uuid.NewString(), cred: current, createdAt: p.now()}
	p.logger.Debug("created session", "session", s.id)
	return s, nil
}

func (p *Pool) checkin(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle = append(p.idle, s)
}

// usable reports whether an idle session may be handed out: its credential
// must be the current one and must stay valid past the safety margin.
func (p *Pool) usable(s *Session, current domain.Credential) bool {
	if s.cred.AccessToken != current.AccessToken {
		return false
	}
	return s.cred.ValidFor(p.now(), p.cfg.Margin)
}

// IdleCount returns the number of idle sessions held by the pool.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// discardable reports whether the error that fn returned means the session
// must not be reused.
func discardable(err error) bool {
	if err == nil {
		return false
	}
	var transport *domain.TransportError
	var auth *domain.AuthError
	return errors.As(err, &transport) || errors.As(err, &auth)
}
