package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"cleanops/internal/apperr"
	"cleanops/internal/config"
	"cleanops/internal/domain"
	"cleanops/internal/events"
	"cleanops/internal/repo"
)

const (
	maxAddressLen         = 512
	defaultStorageTimeout = 5 * time.Second
)

// Engine is the lifecycle core. It holds no entity state between calls; the
// database is the only source of truth.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Logger *slog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Logger: slog.Default(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(domain.TimeLayout)
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType string, kind domain.EntityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, evtType, kind, entityID, actorID, payload)
}

// errStale marks a compare-and-swap that matched no row because a concurrent
// writer got there first. It is retried and surfaces as Conflict.
var errStale = errors.New("stale write")

func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// inReadTx runs fn in a read-only transaction so multi-query reads see one
// snapshot. Read-only transactions begin deferred and never take the write lock.
func (e Engine) inReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(tx)
}

// withRetry runs fn under the storage deadline, retrying stale writes and busy
// database errors with exponential backoff before classifying the failure.
func (e Engine) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	timeout := e.Config.Engine.StorageTimeout
	if timeout <= 0 {
		timeout = defaultStorageTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	attempts := e.Config.Engine.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := e.Config.Engine.RetryBackoff
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt >= attempts {
			break
		}
		wait := backoff << (attempt - 1)
		e.log().Debug("retrying storage operation", "op", op, "attempt", attempt, "wait", wait, "error", err)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return apperr.Unavailable(ctx.Err())
		}
	}
	classified := classify(err)
	if apperr.KindOf(classified) == "" && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		classified = apperr.Unavailable(err)
	}
	if k := apperr.KindOf(classified); k == apperr.KindConflict || k == apperr.KindStorageUnavailable || k == "" {
		e.log().Warn("storage operation failed", "op", op, "error", err)
	}
	return classified
}

func retryable(err error) bool {
	return errors.Is(err, errStale) || isBusy(err)
}

// classify maps raw storage failures onto the error taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errStale):
		return apperr.Conflict("concurrent update, retry the request", nil)
	case apperr.KindOf(err) != "":
		return err
	case errors.Is(err, context.DeadlineExceeded), isBusy(err):
		return apperr.Unavailable(err)
	case isUnique(err):
		return apperr.Conflict("unique constraint violated", nil)
	}
	return err
}

func sqliteCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

func isBusy(err error) bool {
	code, ok := sqliteCode(err)
	if !ok {
		return false
	}
	primary := code & 0xff
	return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
}

func isUnique(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
}

// page clamps a requested window to the configured listing limits.
func (e Engine) page(limit, offset int) (repo.Page, error) {
	if offset < 0 {
		return repo.Page{}, apperr.Validation("offset", "must be >= 0")
	}
	if limit <= 0 {
		limit = e.Config.Listing.DefaultLimit
	}
	if limit > e.Config.Listing.MaxLimit {
		limit = e.Config.Listing.MaxLimit
	}
	return repo.Page{Limit: limit, Offset: offset}, nil
}

// validateLocation checks coordinate ranges and the trimmed address.
func validateLocation(loc domain.Location) (domain.Location, error) {
	loc.Address = strings.TrimSpace(loc.Address)
	if math.IsNaN(loc.Lat) || loc.Lat < -90 || loc.Lat > 90 {
		return loc, apperr.Validation("lat", "must be between -90 and 90")
	}
	if math.IsNaN(loc.Lon) || loc.Lon < -180 || loc.Lon > 180 {
		return loc, apperr.Validation("lon", "must be between -180 and 180")
	}
	if loc.Address == "" {
		return loc, apperr.Validation("address", "is required")
	}
	if utf8.RuneCountInString(loc.Address) > maxAddressLen {
		return loc, apperr.Validation("address", "must be at most 512 characters")
	}
	return loc, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
