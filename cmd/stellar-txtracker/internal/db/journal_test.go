package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/daemon/interfaces"
)

func newTestJournal(t *testing.T, maxEntries uint32) *Journal {
	journal, err := NewJournal(nil, interfaces.MakeNoOpDaemon(), maxEntries)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, journal.Close())
	})
	return journal
}

func code(c int32) *int32 {
	return &c
}

func TestJournalAppendAndRead(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t, 0)
	journal.now = func() time.Time { return time.UnixMilli(1700000000123) }

	appended := []Entry{
		{LifecycleID: "a", Event: EventPosting},
		{LifecycleID: "a", Event: EventBroadcasting, Handle: "H1"},
		{LifecycleID: "a", Event: EventSuccess, Handle: "H1", Code: code(0)},
	}
	for i, entry := range appended {
		id, err := journal.Append(ctx, entry)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)
	}

	entries, err := journal.Events(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, Entry{ID: 1, LifecycleID: "a", Event: EventPosting, CreatedAt: 1700000000123}, entries[0])
	assert.Equal(t, "H1", entries[1].Handle)
	assert.Nil(t, entries[1].Code)
	require.NotNil(t, entries[2].Code)
	assert.Equal(t, int32(0), *entries[2].Code)
}

func TestJournalCursorAndLimit(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t, 0)
	for i := 0; i < 5; i++ {
		_, err := journal.Append(ctx, Entry{LifecycleID: "a", Event: EventPosting})
		require.NoError(t, err)
	}

	entries, err := journal.Events(ctx, EventFilter{Cursor: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(3), entries[0].ID)
	assert.Equal(t, int64(4), entries[1].ID)

	entries, err = journal.Events(ctx, EventFilter{Cursor: 5})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJournalFilterByLifecycle(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t, 0)
	for _, id := range []string{"a", "b", "a", "b"} {
		_, err := journal.Append(ctx, Entry{LifecycleID: id, Event: EventPosting})
		require.NoError(t, err)
	}

	entries, err := journal.Events(ctx, EventFilter{LifecycleID: "b"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].ID)
	assert.Equal(t, int64(4), entries[1].ID)
}

func TestJournalTrimsOldEntries(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t, 3)
	for i := 0; i < 10; i++ {
		_, err := journal.Append(ctx, Entry{LifecycleID: "a", Event: EventError, Message: "Timeout"})
		require.NoError(t, err)
	}

	entries, err := journal.Events(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(8), entries[0].ID)
	assert.Equal(t, int64(10), entries[2].ID)
}

func TestJournalsAreIndependent(t *testing.T) {
	ctx := context.Background()
	first := newTestJournal(t, 0)
	second := newTestJournal(t, 0)

	_, err := first.Append(ctx, Entry{LifecycleID: "a", Event: EventPosting})
	require.NoError(t, err)

	entries, err := second.Events(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJournalClosed(t *testing.T) {
	journal, err := NewJournal(nil, nil, 0)
	require.NoError(t, err)
	require.NoError(t, journal.Close())
	require.NoError(t, journal.Close())

	_, err = journal.Append(context.Background(), Entry{LifecycleID: "a", Event: EventPosting})
	require.ErrorIs(t, err, ErrClosed)
	_, err = journal.Events(context.Background(), EventFilter{})
	require.ErrorIs(t, err, ErrClosed)
}
