package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"filemonitor/internal/event"

	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	journal, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, journal.Close())
	})
	return journal
}

func TestJournalRecordAndRecent(t *testing.T) {
	journal := openTestJournal(t)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, journal.Record(ctx, event.FileEvent{Monitor: "/srv/a", Path: "/srv/a/x", Kind: "created", OccurredAt: at}))
	require.NoError(t, journal.Record(ctx, event.FileEvent{Monitor: "/srv/b", Path: "/srv/b/y", Kind: "changed", OccurredAt: at}))
	require.NoError(t, journal.Record(ctx, event.FileEvent{Monitor: "/srv/a", Path: "/srv/a/x", Kind: "deleted", OccurredAt: at.Add(time.Second)}))

	count, err := journal.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	recent, err := journal.Recent(ctx, "/srv/a", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "deleted", recent[0].Kind)
	require.Equal(t, "created", recent[1].Kind)
	require.True(t, recent[1].OccurredAt.Equal(at))

	limited, err := journal.Recent(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "/srv/a/x", limited[0].Path)
}

func TestJournalPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	journal, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, journal.Record(context.Background(), event.NewFileEvent("/srv", "/srv/f", "changed")))
	require.NoError(t, journal.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	count, err := reopened.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestJournalRequiresPath(t *testing.T) {
	_, err := Open("")
	require.ErrorIs(t, err, ErrPathRequired)
}

func TestJournalConsumeRecordsUntilClosed(t *testing.T) {
	journal := openTestJournal(t)
	events := make(chan event.FileEvent, 2)
	events <- event.NewFileEvent("/srv", "/srv/a", "created")
	events <- event.NewFileEvent("/srv", "/srv/a", "changed")
	close(events)

	journal.Consume(context.Background(), events, nil)

	count, err := journal.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
