package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MDMWatch/internal/classifier"
	"MDMWatch/internal/domain"
	"MDMWatch/internal/gate"
	"MDMWatch/internal/infrastructure/scheduler"
	"MDMWatch/internal/infrastructure/storage"
	"MDMWatch/internal/paging"
)

type stubFetcher struct {
	results map[string]domain.FetchResult
	errs    map[string]error
	calls   []string
}

func (f *stubFetcher) Fetch(_ context.Context, uri string) (domain.FetchResult, error) {
	f.calls = append(f.calls, uri)
	return f.results[uri], f.errs[uri]
}

type captureNotifier struct {
	err    error
	alerts []domain.Alert
}

func (n *captureNotifier) Notify(_ context.Context, alert domain.Alert) error {
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, alert)
	return nil
}

var runTime = time.Date(2026, time.October, 10, 12, 0, 0, 0, time.UTC)

func complete(ids ...string) domain.FetchResult {
	res := domain.FetchResult{Complete: true, Pages: 1, Requests: 1}
	for _, id := range ids {
		res.Entities = append(res.Entities, domain.Entity{ID: id})
	}
	return res
}

func newMonitor(fetcher *stubFetcher, notifier *captureNotifier, checks ...Check) (*Monitor, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	clock := func() time.Time { return runTime }
	g := gate.New(gate.Deps{Store: store, Notifier: notifier, Clock: clock})
	return NewMonitor(MonitorDeps{Fetcher: fetcher, Gate: g, Checks: checks, Clock: clock}), store
}

func TestRunOnceSendsThenSuppresses(t *testing.T) {
	fetcher := &stubFetcher{results: map[string]domain.FetchResult{"/devices": complete("a", "b")}}
	notifier := &captureNotifier{}
	m, store := newMonitor(fetcher, notifier, Check{Name: "devices", Title: "Devices", URI: "/devices"})
	ctx := context.Background()

	summary, err := m.RunOnce(ctx, RunOptions{})
	require.NoError(t, err)
	require.Len(t, summary.Checks, 1)
	assert.NotEmpty(t, summary.RunID)
	assert.True(t, summary.Checks[0].Sent)
	assert.True(t, summary.Checks[0].Complete)
	assert.Equal(t, domain.ReasonNewEntities, summary.Checks[0].Reason)

	summary, err = m.RunOnce(ctx, RunOptions{})
	require.NoError(t, err)
	assert.False(t, summary.Checks[0].Sent)
	assert.Equal(t, domain.ReasonNone, summary.Checks[0].Reason)
	assert.Len(t, notifier.alerts, 1)

	state, err := store.Read(ctx, "devices")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, state.NotifiedIDs)
}

func TestRunOnceForceResendsKnownEntities(t *testing.T) {
	fetcher := &stubFetcher{results: map[string]domain.FetchResult{"/d": complete("a")}}
	notifier := &captureNotifier{}
	m, _ := newMonitor(fetcher, notifier, Check{Name: "d", URI: "/d"})

	_, err := m.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)
	summary, err := m.RunOnce(context.Background(), RunOptions{Force: true})
	require.NoError(t, err)
	assert.True(t, summary.Checks[0].Sent)
	assert.Equal(t, domain.ReasonForced, summary.Checks[0].Reason)
	assert.Len(t, notifier.alerts, 2)
}

func TestRunOnceClassifiesAndComputesExpiringSoon(t *testing.T) {
	res := domain.FetchResult{Complete: true, Entities: []domain.Entity{
		{ID: "secret-1", Attributes: map[string]any{"endDateTime": "2026-10-12T12:00:00Z"}},
		{ID: "secret-2", Attributes: map[string]any{"endDateTime": "2027-06-01T00:00:00Z"}},
	}}
	fetcher := &stubFetcher{results: map[string]domain.FetchResult{"/apps": res}}
	notifier := &captureNotifier{}

	c, err := classifier.Default().Build(classifier.RuleExpiring, classifier.Params{
		TimeField:          "endDateTime",
		Threshold:          30 * 24 * time.Hour,
		ExpiringSoonWindow: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	m, _ := newMonitor(fetcher, notifier, Check{Name: "secrets", URI: "/apps", Classifier: c})

	summary, err := m.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Checks[0].Fetched)
	assert.Equal(t, 1, summary.Checks[0].Interesting)
	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, []domain.Reason{domain.ReasonNewEntities, domain.ReasonExpiringSoon}, notifier.alerts[0].Decision.Reasons)

	// The secret stays known but keeps re-alerting while it is about to expire.
	_, err = m.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Len(t, notifier.alerts, 2)
	assert.Equal(t, domain.ReasonExpiringSoon, notifier.alerts[1].Decision.Reason)
}

func TestRunOncePartialFetchAlertsAndKeepsState(t *testing.T) {
	partial := domain.FetchResult{Entities: []domain.Entity{{ID: "a"}}, Pages: 1, Requests: 2}
	fetcher := &stubFetcher{
		results: map[string]domain.FetchResult{"/d": complete("a", "b")},
	}
	notifier := &captureNotifier{}
	m, store := newMonitor(fetcher, notifier, Check{Name: "d", URI: "/d"})
	ctx := context.Background()

	_, err := m.RunOnce(ctx, RunOptions{})
	require.NoError(t, err)

	fetcher.results["/d"] = domain.FetchResult{}
	fetcher.errs = map[string]error{"/d": &paging.FetchError{Kind: paging.KindStatus, StatusCode: 500, Partial: partial}}

	summary, err := m.RunOnce(ctx, RunOptions{})
	require.NoError(t, err)
	assert.False(t, summary.Checks[0].Complete)
	assert.Equal(t, 1, summary.Checks[0].Fetched)

	state, err := store.Read(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, state.NotifiedIDs, "partial data must not prune")
}

func TestRunOnceContinuesAfterDispatchFailure(t *testing.T) {
	fetcher := &stubFetcher{results: map[string]domain.FetchResult{
		"/one": complete("a"),
		"/two": complete("b"),
	}}
	notifier := &captureNotifier{err: errors.New("mail relay down")}
	m, _ := newMonitor(fetcher, notifier,
		Check{Name: "one", URI: "/one"},
		Check{Name: "two", URI: "/two"})

	summary, err := m.RunOnce(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, gate.ErrDispatch)
	assert.Equal(t, []string{"/one", "/two"}, fetcher.calls)
	require.Len(t, summary.Checks, 2)
	assert.Error(t, summary.Checks[0].Err)
	assert.Error(t, summary.Checks[1].Err)
}

func TestRunOnceOnlySelectsChecks(t *testing.T) {
	fetcher := &stubFetcher{results: map[string]domain.FetchResult{}}
	m, _ := newMonitor(fetcher, &captureNotifier{},
		Check{Name: "one", URI: "/one"},
		Check{Name: "two", URI: "/two"})

	_, err := m.RunOnce(context.Background(), RunOptions{Only: []string{"two"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"/two"}, fetcher.calls)

	_, err = m.RunOnce(context.Background(), RunOptions{Only: []string{"three"}})
	assert.ErrorContains(t, err, `unknown check "three"`)
}

func TestRunOnceStopsOnCancel(t *testing.T) {
	fetcher := &stubFetcher{results: map[string]domain.FetchResult{}}
	m, _ := newMonitor(fetcher, &captureNotifier{}, Check{Name: "one", URI: "/one"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.RunOnce(ctx, RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fetcher.calls)
}

func TestRunOnceEndToEndOverPagedCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "":
			fmt.Fprintf(w, `{"value":[{"id":"d-1","deviceName":"A","lastSyncDateTime":"2026-08-01T00:00:00Z"}],"@odata.nextLink":"http://%s/devices?page=2"}`, r.Host)
		default:
			fmt.Fprint(w, `{"value":[{"id":"d-2","deviceName":"B","lastSyncDateTime":"2026-10-10T11:00:00Z"}]}`)
		}
	}))
	defer srv.Close()

	fetcher := paging.NewFetcher(paging.Options{
		Client:  srv.Client(),
		BaseURL: srv.URL,
		Format:  paging.PageFormat{LabelField: "deviceName"},
	})
	stale, err := classifier.Default().Build(classifier.RuleStale, classifier.Params{
		TimeField: "lastSyncDateTime",
		Threshold: 30 * 24 * time.Hour,
	})
	require.NoError(t, err)

	notifier := &captureNotifier{}
	store := storage.NewMemoryStore()
	clock := func() time.Time { return runTime }
	m := NewMonitor(MonitorDeps{
		Fetcher: fetcher,
		Gate:    gate.New(gate.Deps{Store: store, Notifier: notifier, Clock: clock}),
		Checks:  []Check{{Name: "stale", Title: "Stale devices", URI: "/devices", Classifier: stale}},
		Clock:   clock,
	})

	summary, err := m.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Checks[0].Fetched)
	assert.True(t, summary.Checks[0].Complete)
	require.Len(t, notifier.alerts, 1)
	reported := notifier.alerts[0].Decision.EntitiesToReport
	require.Len(t, reported, 1)
	assert.Equal(t, "A", reported[0].Label)
}

func TestSchedulerRunsMonitor(t *testing.T) {
	fetcher := &stubFetcher{results: map[string]domain.FetchResult{"/d": complete("a")}}
	notifier := &captureNotifier{}
	m, store := newMonitor(fetcher, notifier, Check{Name: "d", URI: "/d"})

	driver := scheduler.NewTickerScheduler(time.Hour)
	s := NewScheduler(driver, m, RunOptions{})
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		_, err := store.Read(context.Background(), "d")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
	assert.Len(t, notifier.alerts, 1)
}
