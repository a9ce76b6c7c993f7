package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/reflow/internal/engine"
	"github.com/roach88/reflow/internal/event"
)

// ReadAll returns every entry in logical-clock order (seq ASC).
// Returns an empty slice, not nil, when the journal is empty.
func (j *Journal) ReadAll(ctx context.Context) ([]engine.Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, correlation, cause, event_id, event_args, version, fingerprint, changed_keys
		FROM entries
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ReadSince returns entries with seq greater than after, in seq order.
// ReadSince(ctx, 0) is equivalent to ReadAll.
func (j *Journal) ReadSince(ctx context.Context, after int64) ([]engine.Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, correlation, cause, event_id, event_args, version, fingerprint, changed_keys
		FROM entries
		WHERE seq > ?
		ORDER BY seq ASC
	`, after)
	if err != nil {
		return nil, fmt.Errorf("query entries since %d: %w", after, err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ReadByEvent returns every entry recorded for an event id, in seq
// order. Used by trace inspection to follow one event through a run.
func (j *Journal) ReadByEvent(ctx context.Context, eventID string) ([]engine.Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, correlation, cause, event_id, event_args, version, fingerprint, changed_keys
		FROM entries
		WHERE event_id = ?
		ORDER BY seq ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query entries for event %q: %w", eventID, err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ReadEntry retrieves a single entry by seq.
// Returns sql.ErrNoRows if not found.
func (j *Journal) ReadEntry(ctx context.Context, seq int64) (engine.Entry, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT seq, correlation, cause, event_id, event_args, version, fingerprint, changed_keys
		FROM entries
		WHERE seq = ?
	`, seq)

	return scanEntryRow(row)
}

// LastSeq returns the highest seq in the journal, 0 when empty. Replay
// resumes the logical clock from it.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := j.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM entries
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}

// Count returns the number of journal entries.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entries
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// collectEntries drains rows into a slice, empty instead of nil.
func collectEntries(rows *sql.Rows) ([]engine.Entry, error) {
	var entries []engine.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	if entries == nil {
		entries = []engine.Entry{}
	}

	return entries, nil
}

// scanEntry scans a row into an Entry.
func scanEntry(rows *sql.Rows) (engine.Entry, error) {
	var e engine.Entry
	var eventID, argsJSON, keysJSON string

	if err := rows.Scan(
		&e.Seq, &e.Correlation, &e.Cause, &eventID, &argsJSON,
		&e.Version, &e.Fingerprint, &keysJSON,
	); err != nil {
		return engine.Entry{}, fmt.Errorf("scan entry: %w", err)
	}

	return finishEntry(e, eventID, argsJSON, keysJSON)
}

// scanEntryRow scans a single row into an Entry.
func scanEntryRow(row *sql.Row) (engine.Entry, error) {
	var e engine.Entry
	var eventID, argsJSON, keysJSON string

	if err := row.Scan(
		&e.Seq, &e.Correlation, &e.Cause, &eventID, &argsJSON,
		&e.Version, &e.Fingerprint, &keysJSON,
	); err != nil {
		return engine.Entry{}, err
	}

	return finishEntry(e, eventID, argsJSON, keysJSON)
}

func finishEntry(e engine.Entry, eventID, argsJSON, keysJSON string) (engine.Entry, error) {
	args, err := unmarshalArgs(argsJSON)
	if err != nil {
		return engine.Entry{}, err
	}
	e.Event = event.Vector{ID: eventID, Args: args}

	keys, err := unmarshalKeys(keysJSON)
	if err != nil {
		return engine.Entry{}, err
	}
	e.ChangedKeys = keys

	return e, nil
}
