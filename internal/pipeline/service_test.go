package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newswire/harvester/internal/feed"
)

type fakeCollector struct {
	items  []feed.Item
	failed []string
	err    error
}

func (f *fakeCollector) Collect(context.Context, []feed.Source) ([]feed.Item, []string, error) {
	return f.items, f.failed, f.err
}

type fakeClassifier struct {
	verdicts   []feed.Verdict
	loadErr    error
	loads      int
	remembered []string
}

func (f *fakeClassifier) LoadWindow(context.Context) error {
	f.loads++
	return f.loadErr
}

func (f *fakeClassifier) ClassifyBatch(_ context.Context, items []feed.Item) ([]feed.Verdict, [][]float32, error) {
	vecs := make([][]float32, len(items))
	for i := range vecs {
		vecs[i] = []float32{float32(i)}
	}
	return f.verdicts, vecs, nil
}

func (f *fakeClassifier) Remember(item feed.Item, _ []float32) {
	f.remembered = append(f.remembered, item.ID)
}

type recordingStore struct {
	inserted  []string
	marked    map[string]string
	insertErr map[string]error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{marked: make(map[string]string), insertErr: make(map[string]error)}
}

func (s *recordingStore) GetByURL(context.Context, string) (*feed.StoredItem, error) {
	return nil, nil
}
func (s *recordingStore) GetByNormalizedHash(context.Context, string) (string, error) {
	return "", nil
}
func (s *recordingStore) ListRecent(context.Context, int, int) ([]feed.StoredItem, error) {
	return nil, nil
}

func (s *recordingStore) Insert(_ context.Context, item feed.Item, _ []float32) error {
	if err := s.insertErr[item.ID]; err != nil {
		return err
	}
	s.inserted = append(s.inserted, item.ID)
	return nil
}

func (s *recordingStore) MarkDuplicate(_ context.Context, id, originalID string) error {
	s.marked[id] = originalID
	return nil
}

func testItems(n int) []feed.Item {
	items := make([]feed.Item, n)
	for i := range items {
		items[i] = feed.NewItem(
			"https://example.com/"+string(rune('a'+i)),
			"Item "+string(rune('a'+i)),
			"body", "src", time.Now().UTC(),
		)
	}
	return items
}

func TestService_MixedBatch(t *testing.T) {
	t.Parallel()

	items := testItems(3)
	classifier := &fakeClassifier{verdicts: []feed.Verdict{
		feed.NovelVerdict(),
		{IsDuplicate: true, MatchedID: "orig-1", Score: 1.0, Reason: feed.MatchExactURL},
		feed.NovelVerdict(),
	}}
	store := newRecordingStore()
	svc := New(&fakeCollector{items: items}, classifier, store, zap.NewNop())

	novel, stats, err := svc.CollectAndClassify(context.Background(),
		[]feed.Source{{Name: "src", Endpoint: "https://example.com/feed"}})
	require.NoError(t, err)
	require.Equal(t, 3, stats.Total)
	require.Equal(t, 2, stats.New)
	require.Equal(t, 1, stats.Duplicates)
	require.Equal(t, []feed.Item{items[0], items[2]}, novel,
		"the accepted items come back to the caller")

	require.Equal(t, []string{items[0].ID, items[2].ID}, store.inserted)
	require.Equal(t, "orig-1", store.marked[items[1].ID])
	require.Equal(t, []string{items[0].ID, items[2].ID}, classifier.remembered,
		"only committed items enter the comparison window")
	require.Equal(t, 1, classifier.loads)
}

func TestService_EmptyBatch(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{}
	svc := New(&fakeCollector{failed: []string{"down"}}, classifier, newRecordingStore(), zap.NewNop())

	novel, stats, err := svc.CollectAndClassify(context.Background(), nil)
	require.NoError(t, err, "a cycle with zero items still returns statistics")
	require.Empty(t, novel)
	require.Zero(t, stats.Total)
	require.Equal(t, []string{"down"}, stats.FailedSources)
	require.Zero(t, classifier.loads, "no items means the window is never touched")
}

func TestService_InsertFailureSkipsRemember(t *testing.T) {
	t.Parallel()

	items := testItems(2)
	classifier := &fakeClassifier{verdicts: []feed.Verdict{
		feed.NovelVerdict(),
		feed.NovelVerdict(),
	}}
	store := newRecordingStore()
	store.insertErr[items[0].ID] = errors.New("unique violation")

	svc := New(&fakeCollector{items: items}, classifier, store, zap.NewNop())
	novel, stats, err := svc.CollectAndClassify(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.New, "failed insert is not counted as new")
	require.Equal(t, []feed.Item{items[1]}, novel)
	require.Equal(t, []string{items[1].ID}, classifier.remembered)
}

func TestService_LoadWindowFailureAborts(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{loadErr: errors.New("store down")}
	svc := New(&fakeCollector{items: testItems(1)}, classifier, newRecordingStore(), zap.NewNop())

	_, _, err := svc.CollectAndClassify(context.Background(), nil)
	require.Error(t, err, "classifying without history would accept every duplicate")
}
