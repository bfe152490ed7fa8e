package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmc-probe/internal/model"
)

func sampleRecord() *Record {
	return &Record{
		Epoch: 12,
		Classifier: map[string]model.Tensor{
			"weight": {Rows: 2, Cols: 2, Data: []float64{1, 2, 3, 4}},
			"bias":   {Rows: 1, Cols: 2, Data: []float64{0.5, -0.5}},
		},
		Optimizer:    map[string]model.Tensor{"velocity.0": {Rows: 2, Cols: 2, Data: []float64{0, 0, 0, 1}}},
		BestAccuracy: 61.25,
		BestEpoch:    9,
		Options:      map[string]string{"model": "alexnet"},
		RunID:        "run-1",
		SavedAt:      time.Unix(1700000000, 0).UTC(),
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "save"))
	require.NoError(t, err)

	require.NoError(t, store.Save(BestKey("alexnet", 6), sampleRecord()))
	rec, err := store.Load(BestKey("alexnet", 6))
	require.NoError(t, err)
	want := sampleRecord()
	assert.True(t, want.SavedAt.Equal(rec.SavedAt))
	rec.SavedAt = want.SavedAt
	assert.Equal(t, want, rec)

	_, err = os.Stat(filepath.Join(store.Dir, "alexnet_layer6.ckpt"))
	require.NoError(t, err)
}

func TestFileStoreAbsoluteKey(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	abs := filepath.Join(t.TempDir(), "elsewhere.ckpt")
	require.NoError(t, store.Save(abs, sampleRecord()))
	_, err = store.Load(abs)
	require.NoError(t, err)
}

func TestFileStoreMissingAndCorrupt(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("nope.ckpt")
	require.ErrorIs(t, err, ErrCheckpointUnavailable)

	require.NoError(t, os.WriteFile(filepath.Join(store.Dir, "bad.ckpt"), []byte("garbage"), 0o644))
	_, err = store.Load("bad.ckpt")
	require.ErrorIs(t, err, ErrCheckpointUnavailable)
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(EpochKey(5))
	require.ErrorIs(t, err, ErrCheckpointUnavailable)

	require.NoError(t, store.Save(EpochKey(5), sampleRecord()))
	updated := sampleRecord()
	updated.Epoch = 13
	require.NoError(t, store.Save(EpochKey(5), updated))

	rec, err := store.Load(EpochKey(5))
	require.NoError(t, err)
	assert.Equal(t, 13, rec.Epoch)

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"ckpt_epoch_5.ckpt"}, keys)
}

func TestFileStoreKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save(EpochKey(10), sampleRecord()))
	require.NoError(t, store.Save(BestKey("alexnet", 6), sampleRecord()))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(store.Dir, "old.ckpt"), 0o755))

	var lister Lister = store
	keys, err := lister.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"alexnet_layer6.ckpt", "ckpt_epoch_10.ckpt"}, keys)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "resnet50v2_layer5.ckpt", BestKey("resnet50v2", 5))
	assert.Equal(t, "ckpt_epoch_10.ckpt", EpochKey(10))
}
