package journal

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/roach88/reflow/internal/engine"
	"github.com/roach88/reflow/internal/event"
	"github.com/roach88/reflow/internal/state"
)

func TestReadAll_Empty(t *testing.T) {
	j := openTestJournal(t)

	entries, err := j.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	if entries == nil {
		t.Error("entries is nil, want empty slice")
	}
	if len(entries) != 0 {
		t.Errorf("len(entries) = %d, want 0", len(entries))
	}
}

func TestReadAll_OrdersBySeq(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	// Append out of order; reads must come back in clock order.
	for _, seq := range []int64{3, 1, 2} {
		entry := engine.Entry{
			Seq:         seq,
			Correlation: "corr",
			Event:       event.NewVector("counter/inc"),
			Version:     seq,
			Fingerprint: "fp",
		}
		if err := j.Append(ctx, entry); err != nil {
			t.Fatalf("Append(seq=%d) failed: %v", seq, err)
		}
	}

	entries, err := j.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	for i, want := range []int64{1, 2, 3} {
		if entries[i].Seq != want {
			t.Errorf("entries[%d].Seq = %d, want %d", i, entries[i].Seq, want)
		}
	}
}

func TestReadAll_RoundTripsArgs(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	// 2^60 exceeds float64's exact integer range; it must survive.
	big := state.Int(1 << 60)
	entry := engine.Entry{
		Seq:         1,
		Correlation: "corr",
		Event: event.NewVector("todo/add",
			state.String("milk"),
			big,
			state.Object{"tags": state.Array{state.String("a"), state.Bool(true), state.Null{}}},
		),
		Version:     1,
		Fingerprint: "fp",
		ChangedKeys: []string{"todos", "stats"},
	}
	if err := j.Append(ctx, entry); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	entries, err := j.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}

	got := entries[0]
	if !got.Event.Equal(entry.Event) {
		t.Errorf("event = %s, want %s", got.Event.String(), entry.Event.String())
	}
	if n, ok := got.Event.Args[1].(state.Int); !ok || n != big {
		t.Errorf("args[1] = %#v, want Int(%d)", got.Event.Args[1], int64(big))
	}
	if len(got.ChangedKeys) != 2 || got.ChangedKeys[0] != "todos" || got.ChangedKeys[1] != "stats" {
		t.Errorf("ChangedKeys = %v, want [todos stats]", got.ChangedKeys)
	}
}

func TestReadSince_FiltersBySeq(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for seq := int64(1); seq <= 5; seq++ {
		entry := engine.Entry{
			Seq:         seq,
			Correlation: "corr",
			Event:       event.NewVector("counter/inc"),
			Version:     seq,
			Fingerprint: "fp",
		}
		if err := j.Append(ctx, entry); err != nil {
			t.Fatalf("Append(seq=%d) failed: %v", seq, err)
		}
	}

	entries, err := j.ReadSince(ctx, 3)
	if err != nil {
		t.Fatalf("ReadSince() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Seq != 4 || entries[1].Seq != 5 {
		t.Errorf("seqs = [%d %d], want [4 5]", entries[0].Seq, entries[1].Seq)
	}
}

func TestReadByEvent_FiltersById(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	ids := []string{"counter/inc", "counter/set", "counter/inc"}
	for i, id := range ids {
		entry := engine.Entry{
			Seq:         int64(i + 1),
			Correlation: "corr",
			Event:       event.NewVector(id),
			Version:     int64(i + 1),
			Fingerprint: "fp",
		}
		if err := j.Append(ctx, entry); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	entries, err := j.ReadByEvent(ctx, "counter/inc")
	if err != nil {
		t.Fatalf("ReadByEvent() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Seq != 1 || entries[1].Seq != 3 {
		t.Errorf("seqs = [%d %d], want [1 3]", entries[0].Seq, entries[1].Seq)
	}

	none, err := j.ReadByEvent(ctx, "counter/missing")
	if err != nil {
		t.Fatalf("ReadByEvent(missing) failed: %v", err)
	}
	if none == nil {
		t.Error("entries is nil, want empty slice")
	}
	if len(none) != 0 {
		t.Errorf("len(entries) = %d, want 0", len(none))
	}
}

func TestReadEntry_NotFound(t *testing.T) {
	j := openTestJournal(t)

	_, err := j.ReadEntry(context.Background(), 99)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ReadEntry(99) error = %v, want sql.ErrNoRows", err)
	}
}

func TestLastSeq(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	seq, err := j.LastSeq(ctx)
	if err != nil {
		t.Fatalf("LastSeq() failed: %v", err)
	}
	if seq != 0 {
		t.Errorf("LastSeq() on empty journal = %d, want 0", seq)
	}

	entry := engine.Entry{
		Seq:         12,
		Correlation: "corr",
		Event:       event.NewVector("counter/inc"),
		Version:     12,
		Fingerprint: "fp",
	}
	if err := j.Append(ctx, entry); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	seq, err = j.LastSeq(ctx)
	if err != nil {
		t.Fatalf("LastSeq() failed: %v", err)
	}
	if seq != 12 {
		t.Errorf("LastSeq() = %d, want 12", seq)
	}
}
