package dataaccess

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voc-dashboard/internal/cache"
	"voc-dashboard/internal/domain"
	"voc-dashboard/internal/fallback"
	"voc-dashboard/internal/observability"
	"voc-dashboard/internal/pool"
)

type staticCreds struct{}

func (staticCreds) Get(_ context.Context) (domain.Credential, error) {
	return domain.Credential{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)}, nil
}

// fakeExecutor scripts per-call outcomes and counts invocations.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   atomic.Int64
	outcome func(call int64) (*domain.ResultPayload, error)
	lastSQL string
}

func (f *fakeExecutor) ExecuteStatement(_ context.Context, _ domain.Credential, sqlQuery string) (*domain.ResultPayload, error) {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.lastSQL = sqlQuery
	f.mu.Unlock()
	return f.outcome(n)
}

func (f *fakeExecutor) sql() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSQL
}

type fakeRefresher struct {
	calls atomic.Int64
}

func (f *fakeRefresher) ForceRefresh(_ context.Context) (domain.Credential, error) {
	f.calls.Add(1)
	return domain.Credential{AccessToken: "tok-fresh", Expiry: time.Now().Add(time.Hour)}, nil
}

type memRecorder struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
}

func (r *memRecorder) Record(_ context.Context, entry domain.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memRecorder) sources() []domain.Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Source, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Source
	}
	return out
}

func livePayload() *domain.ResultPayload {
	return &domain.ResultPayload{
		Columns: []string{"property_id", "aspect"},
		Rows:    [][]interface{}{{"p1", "WiFi Connectivity"}},
	}
}

func newTestService(t *testing.T, exec *fakeExecutor) (*Service, *fakeRefresher, *memRecorder) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewForTest()

	sessions := pool.New(staticCreds{}, pool.Config{
		Size:           2,
		AcquireTimeout: time.Second,
		Margin:         time.Minute,
	}, logger, metrics)

	fb, err := fallback.Load()
	require.NoError(t, err)

	refresher := &fakeRefresher{}
	recorder := &memRecorder{}
	svc := New(sessions, exec, refresher,
		cache.New(5*time.Minute, 0, metrics), fb, recorder,
		Config{Catalog: "lakehouse_inn", Schema: "voc_gold", QueryTimeout: time.Second},
		logger, metrics)
	return svc, refresher, recorder
}

func TestQueryReturnsLiveData(t *testing.T) {
	exec := &fakeExecutor{outcome: func(int64) (*domain.ResultPayload, error) {
		return livePayload(), nil
	}}
	svc, _, recorder := newTestService(t, exec)

	payload, err := svc.Query(context.Background(), domain.TableIssues, map[string]string{"property_id": "p1"}, domain.ShapeRecords)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceLive, payload.Source)
	assert.Equal(t, 1, payload.RowCount())
	assert.Equal(t, []domain.Source{domain.SourceLive}, recorder.sources())
	assert.Contains(t, exec.sql(), "lakehouse_inn.voc_gold.open_issues")
	assert.Contains(t, exec.sql(), "property_id = 'p1'")
}

func TestFreshCacheEntrySkipsRemote(t *testing.T) {
	exec := &fakeExecutor{outcome: func(int64) (*domain.ResultPayload, error) {
		return livePayload(), nil
	}}
	svc, _, _ := newTestService(t, exec)

	_, err := svc.Query(context.Background(), domain.TableIssues, map[string]string{"property_id": "p1"}, domain.ShapeRecords)
	require.NoError(t, err)

	payload, err := svc.Query(context.Background(), domain.TableIssues, map[string]string{"property_id": "p1"}, domain.ShapeRecords)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceCache, payload.Source)
	assert.Equal(t, int64(1), exec.calls.Load(), "cached request must not reach the remote store")
}

func TestCacheKeyIgnoresFilterOrderAndShape(t *testing.T) {
	exec := &fakeExecutor{outcome: func(int64) (*domain.ResultPayload, error) {
		return livePayload(), nil
	}}
	svc, _, _ := newTestService(t, exec)

	_, err := svc.Query(context.Background(), domain.TableIssues,
		map[string]string{"a": "1", "b": "2"}, domain.ShapeRecords)
	require.NoError(t, err)

	// Same request, different filter literal order and different shape.
	payload, err := svc.Query(context.Background(), domain.TableIssues,
		map[string]string{"b": "2", "a": "1"}, domain.ShapeTable)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceCache, payload.Source)
	assert.Equal(t, int64(1), exec.calls.Load())
}

func TestTransportErrorRetriesOnceThenFallsBack(t *testing.T) {
	exec := &fakeExecutor{outcome: func(int64) (*domain.ResultPayload, error) {
		return nil, domain.ErrTransport("connection refused")
	}}
	svc, _, recorder := newTestService(t, exec)

	payload, err := svc.Query(context.Background(), domain.TableIssues, nil, domain.ShapeRecords)
	require.NoError(t, err, "transient failure must not propagate")
	assert.Equal(t, domain.SourceFallback, payload.Source)
	assert.NotEmpty(t, payload.Rows)
	assert.Equal(t, int64(2), exec.calls.Load(), "exactly one transport retry")
	assert.Equal(t, []domain.Source{domain.SourceFallback}, recorder.sources())
}

func TestTransportRetrySucceeds(t *testing.T) {
	exec := &fakeExecutor{outcome: func(call int64) (*domain.ResultPayload, error) {
		if call == 1 {
			return nil, domain.ErrTransport("connection reset")
		}
		return livePayload(), nil
	}}
	svc, _, _ := newTestService(t, exec)

	payload, err := svc.Query(context.Background(), domain.TableIssues, nil, domain.ShapeRecords)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceLive, payload.Source)
	assert.Equal(t, int64(2), exec.calls.Load())
}

func TestAuthErrorForcesRefreshThenRetries(t *testing.T) {
	exec := &fakeExecutor{outcome: func(call int64) (*domain.ResultPayload, error) {
		if call == 1 {
			return nil, domain.ErrAuth("token rejected")
		}
		return livePayload(), nil
	}}
	svc, refresher, _ := newTestService(t, exec)

	payload, err := svc.Query(context.Background(), domain.TableIssues, nil, domain.ShapeRecords)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceLive, payload.Source)
	assert.Equal(t, int64(1), refresher.calls.Load())
	assert.Equal(t, int64(2), exec.calls.Load())
}

func TestFallbackIsNeverCached(t *testing.T) {
	exec := &fakeExecutor{outcome: func(int64) (*domain.ResultPayload, error) {
		return nil, domain.ErrTransport("unreachable")
	}}
	svc, _, _ := newTestService(t, exec)

	first, err := svc.Query(context.Background(), domain.TableIssues, nil, domain.ShapeRecords)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, first.Source)

	callsAfterFirst := exec.calls.Load()
	second, err := svc.Query(context.Background(), domain.TableIssues, nil, domain.ShapeRecords)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, second.Source)
	assert.Greater(t, exec.calls.Load(), callsAfterFirst,
		"a failed request must probe the remote store again, not hit a poisoned cache")
}

func TestUnknownTableIsACallerError(t *testing.T) {
	exec := &fakeExecutor{outcome: func(int64) (*domain.ResultPayload, error) {
		return livePayload(), nil
	}}
	svc, _, _ := newTestService(t, exec)

	_, err := svc.Query(context.Background(), domain.LogicalTable("bookings"), nil, domain.ShapeRecords)
	require.Error(t, err)
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)
	assert.Zero(t, exec.calls.Load())

	// A caller bug must not register as degraded mode.
	assert.Zero(t, testutil.CollectAndCount(svc.metrics.FallbackTotal))
}

func TestMalformedFilterColumnRejected(t *testing.T) {
	exec := &fakeExecutor{outcome: func(int64) (*domain.ResultPayload, error) {
		return livePayload(), nil
	}}
	svc, _, _ := newTestService(t, exec)

	_, err := svc.Query(context.Background(), domain.TableIssues,
		map[string]string{"property_id; DROP TABLE x": "p1"}, domain.ShapeRecords)
	require.Error(t, err)
	assert.Zero(t, exec.calls.Load())
}

func TestFilterValuesAreEscaped(t *testing.T) {
	exec := &fakeExecutor{outcome: func(int64) (*domain.ResultPayload, error) {
		return livePayload(), nil
	}}
	svc, _, _ := newTestService(t, exec)

	_, err := svc.Query(context.Background(), domain.TableIssues,
		map[string]string{"property_id": "o'hare"}, domain.ShapeRecords)
	require.NoError(t, err)
	assert.Contains(t, exec.sql(), "property_id = 'o''hare'")
}

func TestUnconfiguredPlatformServesFallback(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewForTest()
	fb, err := fallback.Load()
	require.NoError(t, err)

	svc := New(nil, nil, nil, cache.New(5*time.Minute, 0, metrics), fb, nil,
		Config{Catalog: "lakehouse_inn", Schema: "voc_gold"}, logger, metrics)

	payload, err := svc.Query(context.Background(), domain.TableLocations, nil, domain.ShapeRecords)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, payload.Source)
	assert.NotEmpty(t, payload.Rows)
}
