package receivables

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlens/backend/internal/domain/dataset"
	"github.com/ledgerlens/backend/internal/infrastructure/cache"
	"github.com/ledgerlens/backend/internal/infrastructure/tally"
)

type fetcherFunc func(ctx context.Context, company tally.Company, formula string) (dataset.Dataset, error)

func (f fetcherFunc) Fetch(ctx context.Context, company tally.Company, formula string) (dataset.Dataset, error) {
	return f(ctx, company, formula)
}

func upstreamDataset(ledger string) dataset.Dataset {
	return dataset.Dataset{
		Columns: rawColumns(),
		Rows: []dataset.Row{
			{ledger, "Raj", "B1", "1-Apr-24", "1-May-24", "0", "-5000"},
		},
	}
}

func countingFetcher(calls *int32, d dataset.Dataset) fetcherFunc {
	return func(ctx context.Context, _ tally.Company, _ string) (dataset.Dataset, error) {
		atomic.AddInt32(calls, 1)
		return d, nil
	}
}

func newTestService(f Fetcher) *Service {
	c := cache.NewTieredCache(cache.NewMemoryStore(), nil)
	return NewService(f, c, testBuckets(), WithServiceClock(func() time.Time { return testToday }))
}

var testCompany = tally.Company{LocationID: "loc-1", GUID: "guid-1"}

func TestService_FetchNormalizesAndCaches(t *testing.T) {
	var calls int32
	svc := newTestService(countingFetcher(&calls, upstreamDataset("Acme")))

	res, err := svc.Fetch(context.Background(), testCompany, "", false)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	require.True(t, res.Schema.Has(dataset.RoleDirection), "normalization should add the direction column")
	bal := res.Schema.Index(dataset.RoleClosingBalance)
	assert.Equal(t, "5000", res.Data.Rows[0].Cell(bal))

	again, err := svc.Fetch(context.Background(), testCompany, "", false)
	require.NoError(t, err)
	assert.True(t, again.FromCache)
	assert.Equal(t, res.Data, again.Data)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestService_DistinctFormulasCachedSeparately(t *testing.T) {
	var calls int32
	svc := newTestService(countingFetcher(&calls, upstreamDataset("Acme")))

	_, err := svc.Fetch(context.Background(), testCompany, "", false)
	require.NoError(t, err)
	_, err = svc.Fetch(context.Background(), testCompany, "$Amount > 1000", false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	_, err = svc.Fetch(context.Background(), testCompany, "$Amount > 1000", false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestService_ForceRefreshBypassesReadButWrites(t *testing.T) {
	var calls int32
	current := upstreamDataset("Acme")
	svc := newTestService(fetcherFunc(func(ctx context.Context, _ tally.Company, _ string) (dataset.Dataset, error) {
		atomic.AddInt32(&calls, 1)
		return current, nil
	}))

	_, err := svc.Fetch(context.Background(), testCompany, "", false)
	require.NoError(t, err)

	current = upstreamDataset("Globex")
	res, err := svc.Fetch(context.Background(), testCompany, "", true)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, "Globex", res.Data.Rows[0].Cell(0))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	// The refreshed dataset replaced the cached one.
	cached, err := svc.Fetch(context.Background(), testCompany, "", false)
	require.NoError(t, err)
	assert.True(t, cached.FromCache)
	assert.Equal(t, "Globex", cached.Data.Rows[0].Cell(0))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestService_MissingIdentityNeverCached(t *testing.T) {
	var calls int32
	svc := newTestService(countingFetcher(&calls, upstreamDataset("Acme")))
	anonymous := tally.Company{LocationID: "loc-1"}

	_, err := svc.Fetch(context.Background(), anonymous, "", false)
	require.NoError(t, err)
	_, err = svc.Fetch(context.Background(), anonymous, "", false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestService_ErrorRecordedAndClearedOnSuccess(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	svc := newTestService(fetcherFunc(func(ctx context.Context, _ tally.Company, _ string) (dataset.Dataset, error) {
		if fail.Load() {
			return dataset.Dataset{}, tally.ErrUnavailable
		}
		return upstreamDataset("Acme"), nil
	}))

	_, err := svc.Fetch(context.Background(), testCompany, "", false)
	require.ErrorIs(t, err, tally.ErrUnavailable)
	assert.ErrorIs(t, svc.LastError(), tally.ErrUnavailable)

	fail.Store(false)
	_, err = svc.Fetch(context.Background(), testCompany, "", false)
	require.NoError(t, err)
	assert.NoError(t, svc.LastError())
}

func TestService_FailedRefreshKeepsCachedDataset(t *testing.T) {
	var fail atomic.Bool
	var calls int32
	svc := newTestService(fetcherFunc(func(ctx context.Context, _ tally.Company, _ string) (dataset.Dataset, error) {
		atomic.AddInt32(&calls, 1)
		if fail.Load() {
			return dataset.Dataset{}, tally.ErrTimeout
		}
		return upstreamDataset("Acme"), nil
	}))

	_, err := svc.Fetch(context.Background(), testCompany, "", false)
	require.NoError(t, err)

	fail.Store(true)
	_, err = svc.Fetch(context.Background(), testCompany, "", true)
	require.ErrorIs(t, err, tally.ErrTimeout)
	assert.ErrorIs(t, svc.LastError(), tally.ErrTimeout)

	// The earlier result still serves from cache.
	res, err := svc.Fetch(context.Background(), testCompany, "", false)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestService_SupersededFetchIsSuppressed(t *testing.T) {
	var calls int32
	firstStarted := make(chan struct{})
	svc := newTestService(fetcherFunc(func(ctx context.Context, _ tally.Company, _ string) (dataset.Dataset, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(firstStarted)
			<-ctx.Done()
			return dataset.Dataset{}, ctx.Err()
		}
		return upstreamDataset("Acme"), nil
	}))

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.Fetch(context.Background(), testCompany, "", true)
		firstDone <- err
	}()

	<-firstStarted
	res, err := svc.Fetch(context.Background(), testCompany, "", true)
	require.NoError(t, err)
	assert.Equal(t, "Acme", res.Data.Rows[0].Cell(0))

	select {
	case err := <-firstDone:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded fetch never returned")
	}

	// Suppression is total: the cancelled fetch leaves no trace in the
	// last-error slot.
	assert.NoError(t, svc.LastError())
}

func TestService_CallerCancellationSuppressed(t *testing.T) {
	started := make(chan struct{})
	svc := newTestService(fetcherFunc(func(ctx context.Context, _ tally.Company, _ string) (dataset.Dataset, error) {
		close(started)
		<-ctx.Done()
		return dataset.Dataset{}, ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Fetch(ctx, testCompany, "", false)
		done <- err
	}()

	<-started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled fetch never returned")
	}
	assert.NoError(t, svc.LastError())
}

func TestService_AggregatorAndViewSet(t *testing.T) {
	var calls int32
	svc := newTestService(countingFetcher(&calls, upstreamDataset("Acme")))

	agg, err := svc.Aggregator(context.Background(), testCompany, "")
	require.NoError(t, err)
	s := agg.Summary(Criteria{Salespersons: IncludeAll()})
	assertDecimal(t, "-5000", s.Balance)

	vs, err := svc.ViewSet(context.Background(), testCompany, "")
	require.NoError(t, err)
	assert.Len(t, vs.Flat().Rows(), 1)

	// The second load came from cache.
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
