package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cleanops/internal/apperr"
	"cleanops/internal/config"
	"cleanops/internal/domain"
)

func TestAggregateComplete(t *testing.T) {
	cases := []struct {
		name     string
		statuses []string
		want     bool
	}{
		{"empty", nil, false},
		{"all resolved", []string{"resolved", "resolved"}, true},
		{"one open", []string{"resolved", "open"}, false},
		{"deleted ignored", []string{"resolved", "deleted"}, true},
		{"only deleted", []string{"deleted"}, true},
		{"dispatched", []string{"dispatched"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, aggregateComplete(tc.statuses))
		})
	}
}

func TestDeriveRouteStatus(t *testing.T) {
	done := []string{domain.ReportResolved}
	open := []string{domain.ReportOpen}
	cases := []struct {
		current, worker string
		statuses        []string
		want            string
	}{
		{domain.RoutePlanned, "", done, domain.RouteCompleted},
		{domain.RouteInProgress, "w", done, domain.RouteCompleted},
		{domain.RouteCompleted, "", open, domain.RoutePlanned},
		{domain.RouteCompleted, "w", open, domain.RouteAssigned},
		{domain.RouteInProgress, "w", open, domain.RouteInProgress},
		{domain.RoutePlanned, "", nil, domain.RoutePlanned},
		{domain.RouteCompleted, "", nil, domain.RoutePlanned},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s/%q/%v", tc.current, tc.worker, tc.statuses), func(t *testing.T) {
			require.Equal(t, tc.want, deriveRouteStatus(tc.current, tc.worker, tc.statuses))
		})
	}
}

func quietEngine() Engine {
	cfg := config.Default()
	cfg.Engine.RetryBackoff = time.Millisecond
	return Engine{Config: cfg, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestWithRetryExhaustsStaleWritesAsConflict(t *testing.T) {
	e := quietEngine()
	calls := 0
	err := e.withRetry(context.Background(), "test", func(context.Context) error {
		calls++
		return errStale
	})
	require.Equal(t, e.Config.Engine.RetryAttempts, calls)
	require.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestWithRetryRecoversAfterStaleWrite(t *testing.T) {
	e := quietEngine()
	calls := 0
	err := e.withRetry(context.Background(), "test", func(context.Context) error {
		calls++
		if calls == 1 {
			return errStale
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestWithRetryDoesNotRetryDomainErrors(t *testing.T) {
	e := quietEngine()
	calls := 0
	err := e.withRetry(context.Background(), "test", func(context.Context) error {
		calls++
		return apperr.NotFound("report", "r1")
	})
	require.Equal(t, 1, calls)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestClassify(t *testing.T) {
	require.NoError(t, classify(nil))
	require.Equal(t, apperr.KindStorageUnavailable, apperr.KindOf(classify(context.DeadlineExceeded)))
	require.Equal(t, apperr.KindConflict, apperr.KindOf(classify(fmt.Errorf("wrap: %w", errStale))))
	plain := errors.New("boom")
	require.Equal(t, plain, classify(plain))
}

func TestPageClamp(t *testing.T) {
	e := quietEngine()
	p, err := e.page(0, 0)
	require.NoError(t, err)
	require.Equal(t, e.Config.Listing.DefaultLimit, p.Limit)

	p, err = e.page(10_000, 5)
	require.NoError(t, err)
	require.Equal(t, e.Config.Listing.MaxLimit, p.Limit)
	require.Equal(t, 5, p.Offset)

	_, err = e.page(10, -1)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, dedupe([]string{"a", " b ", "a", "", "c", "b"}))
	require.Empty(t, dedupe(nil))
}
