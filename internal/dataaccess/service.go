// Package dataaccess is the façade every read path goes through: cache
// lookup, pooled remote execution with bounded retries, and synthetic
// fallback when the platform is unreachable. Callers always get a payload;
// provenance is carried on the payload and surfaced through logs, counters,
// and the history store.
package dataaccess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"voc-dashboard/internal/cache"
	"voc-dashboard/internal/domain"
	"voc-dashboard/internal/fallback"
	"voc-dashboard/internal/observability"
	"voc-dashboard/internal/pool"
)

const retryBackoff = 200 * time.Millisecond

// CredentialRefresher forces a synchronous credential renewal outside the
// scheduled cycle. Implemented by credential.Provider.
type CredentialRefresher interface {
	ForceRefresh(ctx context.Context) (domain.Credential, error)
}

// Service resolves logical-table requests against the remote analytical
// store, degrading to cached and then synthetic data without surfacing
// transient errors to the caller.
type Service struct {
	pool      *pool.Pool
	executor  domain.StatementExecutor
	refresher CredentialRefresher
	cache     *cache.QueryCache
	fallback  *fallback.Dataset
	history   domain.HistoryRecorder
	metrics   *observability.Metrics
	logger    *slog.Logger

	catalog      string
	schema       string
	queryTimeout time.Duration
}

// Config carries the physical addressing and timing knobs for the service.
type Config struct {
	Catalog      string
	Schema       string
	QueryTimeout time.Duration
}

// New creates the data-access façade. history may be nil, in which case
// request recording is skipped.
func New(
	p *pool.Pool,
	executor domain.StatementExecutor,
	refresher CredentialRefresher,
	qc *cache.QueryCache,
	fb *fallback.Dataset,
	history domain.HistoryRecorder,
	cfg Config,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Service {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	return &Service{
		pool:         p,
		executor:     executor,
		refresher:    refresher,
		cache:        qc,
		fallback:     fb,
		history:      history,
		metrics:      metrics,
		logger:       logger.With("component", "dataaccess"),
		catalog:      cfg.Catalog,
		schema:       cfg.Schema,
		queryTimeout: cfg.QueryTimeout,
	}
}

// Query resolves one logical-table request. The returned payload is never
// nil on a nil error; its Source field records whether it came from the
// live store, the cache, or the synthetic fallback set. Transient remote
// failures are resolved internally and never propagate. Validation errors
// (unknown table, malformed filter) do propagate. They are caller bugs,
// not platform weather.
func (s *Service) Query(ctx context.Context, table domain.LogicalTable, filters map[string]string, shape domain.Shape) (*domain.ResultPayload, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}

	start := time.Now()
	fp := domain.Fingerprint(table, filters)

	if cached, ok := s.cache.Get(fp); ok {
		s.observe(ctx, table, fp, domain.SourceCache, start, cached.RowCount(), "")
		return cached.WithSource(domain.SourceCache), nil
	}

	payload, execErr := s.tryRemote(ctx, table, filters)
	if execErr == nil {
		s.cache.Put(fp, payload)
		s.observe(ctx, table, fp, domain.SourceLive, start, payload.RowCount(), "")
		return payload.WithSource(domain.SourceLive), nil
	}

	// A caller bug is not degraded mode; it must not trip the fallback
	// counter operators alert on.
	var validationErr *domain.ValidationError
	if errors.As(execErr, &validationErr) {
		return nil, execErr
	}

	// Remote path exhausted. Serve synthetic data and keep it out of the
	// cache so the next request probes the platform again.
	s.logger.Warn("serving fallback data",
		"table", table,
		"fingerprint", fp,
		"error", execErr)
	s.metrics.FallbackTotal.WithLabelValues(string(table)).Inc()

	fbPayload, fbErr := s.fallback.Get(table, filters)
	if fbErr != nil {
		// Only possible for a table the fallback set does not cover,
		// which validateTable should have rejected already.
		return nil, fbErr
	}
	s.observe(ctx, table, fp, domain.SourceFallback, start, fbPayload.RowCount(), execErr.Error())
	return fbPayload, nil
}

// tryRemote runs the statement through the pool when the platform is wired
// at all; an unconfigured platform degrades straight to fallback.
func (s *Service) tryRemote(ctx context.Context, table domain.LogicalTable, filters map[string]string) (*domain.ResultPayload, error) {
	if s.pool == nil || s.executor == nil {
		return nil, domain.ErrConfig("remote platform is not configured")
	}
	return s.queryRemote(ctx, table, filters)
}

// queryRemote runs the statement through the pool with the retry policy:
// one extra attempt for transport or pool contention, one forced-refresh
// attempt for a rejected credential.
func (s *Service) queryRemote(ctx context.Context, table domain.LogicalTable, filters map[string]string) (*domain.ResultPayload, error) {
	sqlText, err := s.buildStatement(table, filters)
	if err != nil {
		return nil, err
	}

	var (
		result         *domain.ResultPayload
		transportTried bool
		authTried      bool
	)

	attempt := func(ctx context.Context) error {
		payload, execErr := s.executeOnce(ctx, sqlText)
		if execErr == nil {
			result = payload
			return nil
		}

		var authErr *domain.AuthError
		if errors.As(execErr, &authErr) && !authTried && s.refresher != nil {
			authTried = true
			if _, refreshErr := s.refresher.ForceRefresh(ctx); refreshErr != nil {
				s.logger.Warn("forced credential refresh failed", "error", refreshErr)
				return execErr
			}
			s.logger.Info("credential rejected, refreshed and retrying")
			return retry.RetryableError(execErr)
		}

		var transportErr *domain.TransportError
		var exhaustedErr *domain.PoolExhaustedError
		if (errors.As(execErr, &transportErr) || errors.As(execErr, &exhaustedErr)) && !transportTried {
			transportTried = true
			return retry.RetryableError(execErr)
		}

		return execErr
	}

	err = retry.Do(ctx, retry.WithMaxRetries(2, retry.NewConstant(retryBackoff)), attempt)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// executeOnce borrows a session and runs the statement under the per-query
// timeout.
func (s *Service) executeOnce(ctx context.Context, sqlText string) (*domain.ResultPayload, error) {
	var result *domain.ResultPayload
	err := s.pool.WithSession(ctx, func(sess *pool.Session) error {
		execCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()

		payload, execErr := s.executor.ExecuteStatement(execCtx, sess.Credential(), sqlText)
		if execErr != nil {
			return execErr
		}
		result = payload
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// physicalNames maps logical tables to their gold-layer relations.
var physicalNames = map[domain.LogicalTable]string{
	domain.TableIssues:        "open_issues",
	domain.TableReviewAspects: "review_aspects",
	domain.TableLocations:     "property_locations",
}

// buildStatement renders the SELECT for a logical table. Filter keys are
// emitted in sorted order so the statement text is deterministic for a
// given request.
func (s *Service) buildStatement(table domain.LogicalTable, filters map[string]string) (string, error) {
	physical, ok := physicalNames[table]
	if !ok {
		return "", domain.ErrValidation("unknown logical table %q", table)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT * FROM %s.%s.%s", s.catalog, s.schema, physical)

	if len(filters) > 0 {
		keys := make([]string, 0, len(filters))
		for k := range filters {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" WHERE ")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" AND ")
			}
			fmt.Fprintf(&b, "%s = '%s'", k, strings.ReplaceAll(filters[k], "'", "''"))
		}
	}

	return b.String(), nil
}

// identifier-ish filter keys only; values are escaped at render time.
func validateFilters(filters map[string]string) error {
	for k := range filters {
		if k == "" {
			return domain.ErrValidation("empty filter column name")
		}
		for _, r := range k {
			ok := r == '_' ||
				(r >= 'a' && r <= 'z') ||
				(r >= 'A' && r <= 'Z') ||
				(r >= '0' && r <= '9')
			if !ok {
				return domain.ErrValidation("invalid filter column name %q", k)
			}
		}
	}
	return nil
}

// observe emits the per-request signals: counter, duration histogram, and
// a best-effort history row.
func (s *Service) observe(ctx context.Context, table domain.LogicalTable, fp string, source domain.Source, start time.Time, rowCount int, errText string) {
	elapsed := time.Since(start)
	s.metrics.QueriesTotal.WithLabelValues(string(table), string(source)).Inc()
	s.metrics.QueryDuration.Observe(elapsed.Seconds())

	if s.history == nil {
		return
	}
	entry := domain.HistoryEntry{
		RequestedAt: start.UTC(),
		Table:       table,
		Fingerprint: fp,
		Source:      source,
		DurationMS:  elapsed.Milliseconds(),
		RowCount:    rowCount,
		ErrorText:   errText,
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.history.Record(recordCtx, entry); err != nil {
		s.logger.Warn("history record failed", "error", err)
	}
}
