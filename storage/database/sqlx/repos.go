// Package sqlxrepos implements the core Repository interfaces on Postgres.
//
// Each repository holds the connection pool as its default executor; service
// code running inside a transaction passes the transaction in instead so the
// authorization check and the mutation share one snapshot.
package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/thehouse/platform/core"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func getExec(db *sqlx.DB, svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return db
}

// selectAll runs query on exec and scans every row with scan, so list reads
// inside a transaction observe the same snapshot as the writes around them.
func selectAll[T any](ctx context.Context, exec core.DBExecutor, scan func(rowScanner) (T, error), query string, args ...interface{}) ([]T, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// uniqueViolation matches a pq unique-constraint error against known
// constraint names so a raw storage error never crosses the core boundary.
func uniqueViolation(err error, byConstraint map[string]error) (error, bool) {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	if !ok || pqErr.Code != "23505" {
		return nil, false
	}
	if domainErr, ok := byConstraint[pqErr.Constraint]; ok {
		return domainErr, true
	}
	return nil, false
}

func int64Array(ids []int64) interface{} { return pq.Array(ids) }

func joinAnd(clauses []string) string   { return strings.Join(clauses, " AND ") }
func joinComma(clauses []string) string { return strings.Join(clauses, ", ") }

// orderBy renders an ORDER BY clause from the given orderings, ignoring any
// field that is not a bare column name. The API layer already restricts
// fields to a per-resource allowlist; nothing else may be interpolated here.
func orderBy(ordering []core.DBOrdering, fallback string) string {
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if !columnName(ord.Field) {
			continue
		}
		clauses = append(clauses, ord.String())
	}
	if len(clauses) == 0 {
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}

func columnName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}
