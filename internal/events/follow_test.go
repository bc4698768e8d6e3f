package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formfill/internal/db"
	"formfill/internal/domain"
	"formfill/internal/events"
	"formfill/internal/migrate"
	"formfill/internal/repo"
)

type sliceSource struct {
	events  []domain.Event
	cursors []int64
}

func (s *sliceSource) EventsAfter(ctx context.Context, limit int, cursor int64, filter repo.EventFilter) ([]domain.Event, error) {
	s.cursors = append(s.cursors, cursor)
	var out []domain.Event
	for _, e := range s.events {
		if e.ID > cursor && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestFollowerPagesAfterCursor(t *testing.T) {
	src := &sliceSource{}
	for id := int64(1); id <= 5; id++ {
		src.events = append(src.events, domain.Event{ID: id, Type: domain.EventDocumentGenerated})
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []int64
	err := events.Follower{Source: src, Batch: 2, Interval: time.Millisecond}.Run(ctx, 2, func(e domain.Event) error {
		got = append(got, e.ID)
		if e.ID == 5 {
			cancel()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4, 5}, got)
	assert.Equal(t, []int64{2, 4}, src.cursors[:2])
}

func TestFollowerStopsOnCallbackError(t *testing.T) {
	src := &sliceSource{events: []domain.Event{{ID: 7, Type: "x"}}}
	boom := errors.New("boom")
	err := events.Follower{Source: src}.Run(context.Background(), 1, func(domain.Event) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestFollowerStreamsNewRows(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	w := events.Writer{DB: conn}
	r := repo.Repo{DB: conn}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, w.Record(ctx, domain.Event{Type: domain.EventDocumentGenerated, SubjectID: "old", ActorID: "a"}))

	seen := make(chan domain.Event, 4)
	done := make(chan error, 1)
	f := events.Follower{Source: r, Filter: repo.EventFilter{SubjectID: "c-9"}, Interval: 10 * time.Millisecond}
	go func() {
		done <- f.Run(ctx, 1, func(e domain.Event) error {
			seen <- e
			return nil
		})
	}()

	require.NoError(t, w.Record(ctx, domain.Event{Type: domain.EventDocumentGenerated, SubjectID: "other", ActorID: "a"}))
	require.NoError(t, w.Record(ctx, domain.Event{Type: domain.EventDocumentGenerated, SubjectID: "c-9", ActorID: "a"}))

	select {
	case e := <-seen:
		assert.Equal(t, "c-9", e.SubjectID)
		assert.Equal(t, int64(3), e.ID)
	case <-ctx.Done():
		t.Fatal("no event streamed")
	}
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, seen)
}
