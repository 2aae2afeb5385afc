package document

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torrentstream/catalog/internal/domain"
)

func TestViewSurvivesIndexing(t *testing.T) {
	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	view := domain.TorrentView{
		Torrent: domain.Torrent{
			ID:           42,
			InfoHash:     "0123456789abcdef0123456789abcdef01234567",
			DisplayName:  "Some release",
			SizeBytes:    1 << 30,
			CreatedAt:    time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			UploaderID:   7,
			Category:     domain.Category{MainID: 1, SubID: 2},
			Flags:        domain.Flags{Trusted: true, Anonymous: true, CommentLocked: true},
			CommentCount: 3,
		},
		Stats: domain.Statistics{TorrentID: 42, Seeders: 5, Leechers: 2, Downloads: 100, LastUpdatedAt: &updated},
	}

	doc := FromView(view)
	assert.True(t, doc.Trusted)
	assert.False(t, doc.Hidden)
	assert.Equal(t, view, doc.View())
}

func TestFlagFieldsMatchDocumentTags(t *testing.T) {
	names := make([]string, 0)
	for _, f := range domain.AllFlags() {
		names = append(names, FlagField(f))
	}
	assert.Equal(t, []string{"anonymous", "hidden", "trusted", "remake", "complete", "deleted", "banned", "comment_locked"}, names)
}

type pagedSource struct {
	views []domain.TorrentView
	err   error
	calls int
}

func (s *pagedSource) TorrentsAfter(_ context.Context, after domain.TorrentID, limit int) ([]domain.TorrentView, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.TorrentView, 0, limit)
	for _, v := range s.views {
		if v.ID > after && len(out) < limit {
			out = append(out, v)
		}
	}
	return out, nil
}

type recordingSink struct {
	batches [][]int64
}

func (s *recordingSink) Index(_ context.Context, docs []Torrent) error {
	ids := make([]int64, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	s.batches = append(s.batches, ids)
	return nil
}

func TestSyncBatches(t *testing.T) {
	src := &pagedSource{}
	for id := 1; id <= 5; id++ {
		src.views = append(src.views, domain.TorrentView{Torrent: domain.Torrent{ID: domain.TorrentID(id)}})
	}
	sink := &recordingSink{}

	n, err := Sync(t.Context(), src, sink, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, [][]int64{{1, 2}, {3, 4}, {5}}, sink.batches)
	assert.Equal(t, 3, src.calls)
}

func TestSyncStopsOnSourceError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Sync(t.Context(), &pagedSource{err: boom}, &recordingSink{}, 10)
	assert.ErrorIs(t, err, boom)
}

type memPurgeLog struct {
	ids   []domain.TorrentID
	reads int
}

func (l *memPurgeLog) PurgedTorrents(_ context.Context, limit int) ([]domain.TorrentID, error) {
	l.reads++
	n := min(limit, len(l.ids))
	return append([]domain.TorrentID(nil), l.ids[:n]...), nil
}

func (l *memPurgeLog) ForgetPurged(_ context.Context, ids []domain.TorrentID) error {
	drop := make(map[domain.TorrentID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := l.ids[:0]
	for _, id := range l.ids {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	l.ids = kept
	return nil
}

type recordingRemover struct {
	deleted []domain.TorrentID
	failOn  domain.TorrentID
}

func (r *recordingRemover) Delete(_ context.Context, id domain.TorrentID) error {
	if id == r.failOn {
		return errors.New("index gone")
	}
	r.deleted = append(r.deleted, id)
	return nil
}

func TestPruneDrainsPurgeLog(t *testing.T) {
	log := &memPurgeLog{ids: []domain.TorrentID{2, 5, 9}}
	dst := &recordingRemover{}

	n, err := Prune(t.Context(), log, dst, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []domain.TorrentID{2, 5, 9}, dst.deleted)
	assert.Empty(t, log.ids)
	assert.Equal(t, 2, log.reads)
}

func TestPruneKeepsLogOnDeleteFailure(t *testing.T) {
	log := &memPurgeLog{ids: []domain.TorrentID{2, 5}}
	dst := &recordingRemover{failOn: 5}

	n, err := Prune(t.Context(), log, dst, 10)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []domain.TorrentID{2, 5}, log.ids, "a failed batch is retried on the next run")
}
