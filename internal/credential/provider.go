// Package credential owns the platform access token: one credential per
// process, refreshed proactively on a schedule and on demand when a caller
// finds it expired.
package credential

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"voc-dashboard/internal/domain"
	"voc-dashboard/internal/observability"
)

const refreshTimeout = 15 * time.Second

// Provider holds the current platform credential and keeps it fresh. The
// credential is replaced by atomic swap under the write lock, so concurrent
// readers observe either the old credential or the new one, never a torn
// state. Refresh is single-writer: the scheduled job and on-demand callers
// collapse into one in-flight refresh via singleflight.
type Provider struct {
	source  domain.TokenSource
	logger  *slog.Logger
	metrics *observability.Metrics

	interval time.Duration // proactive refresh cadence (59m against 1h tokens)
	now      func() time.Time

	mu   sync.RWMutex
	cred domain.Credential

	group singleflight.Group
	cron  *cron.Cron
}

var _ domain.CredentialSource = (*Provider)(nil)

// NewProvider creates a Provider that fetches tokens from source and
// refreshes them every interval.
func NewProvider(source domain.TokenSource, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Provider {
	return &Provider{
		source:   source,
		logger:   logger.With("component", "credential-provider"),
		metrics:  metrics,
		interval: interval,
		now:      time.Now,
	}
}

// Start schedules the proactive refresh job. A refresh failure is logged and
// retried on the next cycle; Get still forces a synchronous refresh when the
// stored credential has expired in the meantime.
func (p *Provider) Start() error {
	if p.cron != nil {
		return nil
	}
	c := cron.New()
	spec := fmt.Sprintf("@every %s", p.interval)
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if _, err := p.refresh(ctx); err != nil {
			p.logger.Warn("scheduled credential refresh failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule credential refresh: %w", err)
	}
	c.Start()
	p.cron = c
	p.logger.Info("credential refresh scheduled", "interval", p.interval)
	return nil
}

// Stop halts the scheduled refresh.
func (p *Provider) Stop() {
	if p.cron != nil {
		p.cron.Stop()
		p.cron = nil
	}
}

// Get returns a credential that is valid right now. If the stored one has
// expired (process just started, or the timer was delayed), it forces a
// synchronous refresh. Concurrent callers share a single refresh.
func (p *Provider) Get(ctx context.Context) (domain.Credential, error) {
	p.mu.RLock()
	cred := p.cred
	p.mu.RUnlock()

	if cred.Valid(p.now()) {
		return cred, nil
	}
	return p.refresh(ctx)
}

// ForceRefresh discards the stored credential and fetches a new one. Used by
// the data-access retry path after the platform rejects a token.
func (p *Provider) ForceRefresh(ctx context.Context) (domain.Credential, error) {
	p.mu.Lock()
	p.cred = domain.Credential{}
	p.mu.Unlock()
	return p.refresh(ctx)
}

// refresh fetches a new credential and swaps it in. Deduplicated: callers
// that arrive while a refresh is in flight wait for its result instead of
// issuing their own token request.
func (p *Provider) refresh(ctx context.Context) (domain.Credential, error) {
	v, err, _ := p.group.Do("refresh", func() (interface{}, error) {
		cred, err := p.source.FetchCredential(ctx)
		if err != nil {
			p.metrics.CredentialRefreshes.WithLabelValues("failure").Inc()
			return domain.Credential{}, err
		}

		p.mu.Lock()
		p.cred = cred
		p.mu.Unlock()

		p.metrics.CredentialRefreshes.WithLabelValues("success").Inc()
		p.logger.Info("credential refreshed", "expiry", cred.Expiry)
		return cred, nil
	})
	if err != nil {
		return domain.Credential{}, err
	}
	return v.(domain.Credential), nil
}

// Snapshot returns the stored credential without validity checks or
// refresh. Used by the pool to decide whether a session's bound credential
// is stale.
func (p *Provider) Snapshot() domain.Credential {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cred
}
