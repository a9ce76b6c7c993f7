package journal

import (
	"context"
	"fmt"

	"github.com/roach88/reflow/internal/engine"
	"github.com/roach88/reflow/internal/event"
)

// Divergence is one mismatch between a journal entry and what replay
// produced at that point. Once a run diverges, later entries usually
// diverge too; the report keeps them all so the first seq pinpoints
// where histories split.
type Divergence struct {
	Seq   int64
	Event event.Vector
	Field string
	Want  string
	Got   string
}

// String renders the divergence for reports and logs.
func (d Divergence) String() string {
	return fmt.Sprintf("seq %d %s: %s: want %s, got %s",
		d.Seq, d.Event.String(), d.Field, d.Want, d.Got)
}

// Result summarizes a replay run.
type Result struct {
	Replayed    int
	Divergences []Divergence
}

// Clean reports whether replay reproduced the journal exactly.
func (r Result) Clean() bool {
	return len(r.Divergences) == 0
}

// Summary renders a one-line outcome for CLI output.
func (r Result) Summary() string {
	if r.Clean() {
		return fmt.Sprintf("replayed %d events, no divergence", r.Replayed)
	}
	return fmt.Sprintf("replayed %d events, %d divergences (first at seq %d)",
		r.Replayed, len(r.Divergences), r.Divergences[0].Seq)
}

// Replay re-dispatches every journal entry against eng in seq order,
// comparing the logical clock, snapshot version, and state fingerprint
// after each event against what the journal recorded.
//
// The engine must be freshly built with the same handler catalog and
// initial state as the recording run, its clock at the position before
// the journal's first entry. Events run through DispatchSync; effects
// that dispatch follow-up events park them on the queue unprocessed,
// because those follow-ups were journaled as entries of their own and
// replay drives every entry explicitly.
func Replay(ctx context.Context, j *Journal, eng *engine.Engine) (Result, error) {
	entries, err := j.ReadAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("replay: %w", err)
	}

	var res Result
	for _, want := range entries {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("replay: %w", err)
		}

		if err := eng.DispatchSync(want.Event); err != nil {
			res.Replayed++
			res.Divergences = append(res.Divergences, Divergence{
				Seq:   want.Seq,
				Event: want.Event,
				Field: "dispatch",
				Want:  "success",
				Got:   err.Error(),
			})
			continue
		}
		res.Replayed++

		if got := eng.Seq(); got != want.Seq {
			res.Divergences = append(res.Divergences, diffInt64(want, "seq", want.Seq, got))
		}

		snap := eng.Snapshot()
		if got := snap.Version(); got != want.Version {
			res.Divergences = append(res.Divergences, diffInt64(want, "version", want.Version, got))
		}

		fp, err := snap.Fingerprint()
		if err != nil {
			return res, fmt.Errorf("replay: fingerprint at seq %d: %w", want.Seq, err)
		}
		if fp != want.Fingerprint {
			res.Divergences = append(res.Divergences, Divergence{
				Seq:   want.Seq,
				Event: want.Event,
				Field: "fingerprint",
				Want:  shortHash(want.Fingerprint),
				Got:   shortHash(fp),
			})
		}
	}

	return res, nil
}

func diffInt64(want engine.Entry, field string, w, g int64) Divergence {
	return Divergence{
		Seq:   want.Seq,
		Event: want.Event,
		Field: field,
		Want:  fmt.Sprintf("%d", w),
		Got:   fmt.Sprintf("%d", g),
	}
}

// shortHash truncates a fingerprint for readable reports. Full hashes
// stay in the journal.
func shortHash(h string) string {
	if h == "" {
		return "(none)"
	}
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
