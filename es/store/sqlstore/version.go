package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/store"
)

// resolvedVersion is the authoritative base to extend a stream from.
type resolvedVersion struct {
	base int64
	any  bool
}

// position returns the position of the element at batch index i.
// Batches written with expected version Any carry no positions.
func (v resolvedVersion) position(i int) sql.NullInt64 {
	if v.any {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v.base + int64(i) + 1, Valid: true}
}

// checkTarget rejects stream/version combinations before any database work.
func checkTarget(stream string, expected es.ExpectedVersion) error {
	if stream == "" {
		return store.ErrIncorrectStreamData
	}
	if !expected.IsValid() {
		return store.ErrInvalidExpectedVersion
	}
	// The global stream has no version of its own.
	if es.IsGlobalStream(stream) && !expected.IsAny() {
		return store.ErrInvalidExpectedVersion
	}
	return nil
}

// resolveVersion computes the last position to extend stream from.
// Concrete versions are checked against the stream with plain reads inside tx;
// none of them takes a lock. Writers that pass the check concurrently are
// separated by the (stream, position) unique index.
func (r *Repository) resolveVersion(ctx context.Context, tx es.DBTX, expected es.ExpectedVersion, stream string) (resolvedVersion, error) {
	switch {
	case expected.IsAny():
		return resolvedVersion{any: true}, nil
	case expected.IsNone():
		exists, err := r.streamExists(ctx, tx, stream)
		if err != nil {
			return resolvedVersion{}, err
		}
		if exists {
			return resolvedVersion{}, store.ErrWrongExpectedEventVersion
		}
		return resolvedVersion{base: -1}, nil
	case expected.IsExact():
		current, err := r.lastPosition(ctx, tx, stream)
		if err != nil {
			return resolvedVersion{}, err
		}
		if current != expected.Value() {
			return resolvedVersion{}, store.ErrWrongExpectedEventVersion
		}
		return resolvedVersion{base: current}, nil
	case expected.IsAuto():
		current, err := r.lastPosition(ctx, tx, stream)
		if err != nil {
			return resolvedVersion{}, err
		}
		return resolvedVersion{base: current}, nil
	default:
		return resolvedVersion{}, store.ErrInvalidExpectedVersion
	}
}

// lastPosition returns the highest position in stream, or -1 if it has none.
func (r *Repository) lastPosition(ctx context.Context, tx es.DBTX, stream string) (int64, error) {
	query := r.dialect.Rebind(fmt.Sprintf(`
		SELECT MAX(position)
		FROM %s
		WHERE stream = ?
	`, r.config.Tables.Streams))

	var current sql.NullInt64
	if err := tx.QueryRowContext(ctx, query, stream).Scan(&current); err != nil {
		return 0, fmt.Errorf("failed to check current version: %w", err)
	}
	if !current.Valid {
		return -1, nil
	}
	return current.Int64, nil
}

// streamExists reports whether stream has any membership, positioned or not.
func (r *Repository) streamExists(ctx context.Context, tx es.DBTX, stream string) (bool, error) {
	query := r.dialect.Rebind(fmt.Sprintf(`
		SELECT COUNT(*)
		FROM %s
		WHERE stream = ?
	`, r.config.Tables.Streams))

	var n int64
	if err := tx.QueryRowContext(ctx, query, stream).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check stream existence: %w", err)
	}
	return n > 0, nil
}
