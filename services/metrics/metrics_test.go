package metrics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/events"
	cachesvc "github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/services/cache"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/services/metrics"
)

func TestMetrics_Middleware(t *testing.T) {
	m := metrics.New()
	app := echo.New()
	app.Use(m.Middleware())
	app.GET("/v1/courses/:id", func(ctx echo.Context) error {
		if ctx.Param("id") == "lol" {
			return echo.NewHTTPError(http.StatusNotFound, "course not found")
		}
		return ctx.NoContent(http.StatusOK)
	})

	for _, path := range []string{"/v1/courses/1", "/v1/courses/2", "/v1/courses/lol"} {
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	expected := `
# HELP colegionueva_http_requests_total HTTP requests by route, method and status code.
# TYPE colegionueva_http_requests_total counter
colegionueva_http_requests_total{code="200",method="GET",route="/v1/courses/:id"} 2
colegionueva_http_requests_total{code="404",method="GET",route="/v1/courses/:id"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "colegionueva_http_requests_total"))
}

func TestMetrics_broker(t *testing.T) {
	m := metrics.New()
	b := events.NewBroker(1)
	b.AddHook(func(ev events.Event) { m.ObserveEvent(string(ev.Kind)) })
	m.WatchBroker(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = b.Subscribe(ctx) // never read

	b.Publish(events.Event{Kind: events.AttemptFinished})
	b.Publish(events.Event{Kind: events.AttemptFinished})
	b.Publish(events.Event{Kind: events.CatalogChanged})

	expected := `
# HELP colegionueva_events_dropped_total Grade events dropped for slow subscribers.
# TYPE colegionueva_events_dropped_total counter
colegionueva_events_dropped_total 2
# HELP colegionueva_events_published_total Grade events published by kind.
# TYPE colegionueva_events_published_total counter
colegionueva_events_published_total{kind="attempt.finished"} 2
colegionueva_events_published_total{kind="catalog.changed"} 1
# HELP colegionueva_events_subscribers Live grade event subscribers.
# TYPE colegionueva_events_subscribers gauge
colegionueva_events_subscribers 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"colegionueva_events_dropped_total", "colegionueva_events_published_total", "colegionueva_events_subscribers"))
}

func TestInstrumentedCache(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	c := m.InstrumentCache(cachesvc.NewMemoryCache())

	var v string
	_, err := c.Get(ctx, "k", &v)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "k", "v", 0))
	_, err = c.Get(ctx, "k", &v)
	require.NoError(t, err)
	var n int
	_, err = c.Get(ctx, "k", &n)
	require.Error(t, err)

	expected := `
# HELP colegionueva_cache_lookups_total Report cache lookups by result (hit, miss, error).
# TYPE colegionueva_cache_lookups_total counter
colegionueva_cache_lookups_total{result="error"} 1
colegionueva_cache_lookups_total{result="hit"} 1
colegionueva_cache_lookups_total{result="miss"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "colegionueva_cache_lookups_total"))
}

func TestMetrics_Handler(t *testing.T) {
	m := metrics.New()
	m.ObserveEvent(string(events.AttemptFinished))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `colegionueva_events_published_total{kind="attempt.finished"} 1`)
}
