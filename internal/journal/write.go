package journal

import (
	"context"
	"fmt"

	"github.com/roach88/reflow/internal/engine"
)

// Append inserts one entry into the journal. ON CONFLICT(seq) DO
// NOTHING makes appends idempotent: recording the same logical-clock
// position twice leaves the first copy. Other constraint violations
// (e.g. NOT NULL) still return errors.
func (j *Journal) Append(ctx context.Context, e engine.Entry) error {
	argsJSON, err := marshalArgs(e.Event.Args)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}

	keysJSON, err := marshalKeys(e.ChangedKeys)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO entries
		(seq, correlation, cause, event_id, event_args, version, fingerprint, changed_keys)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		e.Seq,
		e.Correlation,
		e.Cause,
		e.Event.ID,
		argsJSON,
		e.Version,
		e.Fingerprint,
		keysJSON,
	)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}

	return nil
}

// Record implements engine.Recorder, so a Journal can be passed
// straight to engine.WithRecorder. The engine treats a failing
// recorder as a logged warning, never a processing failure.
func (j *Journal) Record(e engine.Entry) error {
	return j.Append(context.Background(), e)
}
