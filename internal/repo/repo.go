package repo

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Repo is the data-access handle. Methods taking a *sql.Tx run inside it when
// non-nil and against the pool otherwise.
type Repo struct {
	DB *sql.DB
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

// Fields maps column names to values for ConditionalUpdate.
// A nil predicate value matches SQL NULL.
type Fields map[string]any

// columns that ConditionalUpdate may read or write, per table.
var conditionalColumns = map[string]map[string]bool{
	"reports":      {"status": true, "severity": true, "attention": true, "updated_at": true},
	"routes":       {"status": true, "worker_id": true, "version": true, "updated_at": true},
	"bin_requests": {"status": true, "updated_at": true},
	"workers":      {"active": true},
}

// ConditionalUpdate applies patch to the row id in table only when every
// predicate column still holds the expected value. It reports whether the row
// was updated; false means the row is gone or was changed concurrently.
func (r Repo) ConditionalUpdate(ctx context.Context, tx *sql.Tx, table, id string, predicate, patch Fields) (bool, error) {
	allowed, ok := conditionalColumns[table]
	if !ok {
		return false, fmt.Errorf("conditional update: unknown table %s", table)
	}
	if len(patch) == 0 {
		return false, fmt.Errorf("conditional update: empty patch")
	}
	var sets []string
	var args []any
	for _, col := range sortedKeys(patch) {
		if !allowed[col] {
			return false, fmt.Errorf("conditional update: column %s.%s not updatable", table, col)
		}
		sets = append(sets, col+"=?")
		args = append(args, patch[col])
	}
	where := []string{"id=?"}
	args = append(args, id)
	for _, col := range sortedKeys(predicate) {
		if !allowed[col] {
			return false, fmt.Errorf("conditional update: column %s.%s not comparable", table, col)
		}
		if predicate[col] == nil {
			where = append(where, col+" IS NULL")
			continue
		}
		where = append(where, col+"=?")
		args = append(args, predicate[col])
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), strings.Join(where, " AND "))
	res, err := r.q(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func sortedKeys(m Fields) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Page is a clamped limit/offset window.
type Page struct {
	Limit  int
	Offset int
}
