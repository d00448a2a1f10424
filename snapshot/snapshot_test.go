package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d65v/vecbase/resource"
	"github.com/d65v/vecbase/store"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		Dimension: 3,
		Metric:    "cosine",
		Records: []store.Record{
			{ID: "a", Vector: []float32{1, 0, 0}, Metadata: `{"tag":"x"}`},
			{ID: "b", Vector: []float32{0, 1, 0}},
			{ID: "c", Vector: []float32{0, 0, 1}, Metadata: "plain"},
		},
		Graph: []byte{0xde, 0xad, 0xbe, 0xef},
	}
}

func TestParseCodec(t *testing.T) {
	tests := []struct {
		in      string
		want    Codec
		wantErr bool
	}{
		{in: "", want: CodecNone},
		{in: "none", want: CodecNone},
		{in: "lz4", want: CodecLZ4},
		{in: "ZSTD", want: CodecZSTD},
		{in: " zstd ", want: CodecZSTD},
		{in: "gzip", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := ParseCodec(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c)
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZSTD} {
		t.Run(codec.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "snap.vbs")
			want := testSnapshot()

			require.NoError(t, Save(context.Background(), path, want, codec, nil))

			got, err := Load(context.Background(), path, nil)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.vbs")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a snapshot"), 0644))

	_, err := Load(context.Background(), path, nil)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.vbs"), nil)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSaveAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.vbs")

	require.NoError(t, Save(context.Background(), path, testSnapshot(), CodecZSTD, nil))

	// A second save replaces the file and leaves no temp debris behind.
	require.NoError(t, Save(context.Background(), path, testSnapshot(), CodecZSTD, nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "snap.vbs", entries[0].Name())
}

func TestSaveThrottled(t *testing.T) {
	// A generous budget must not block a small snapshot.
	ctrl := resource.NewController(resource.Config{SnapshotIOBytesPerSec: 1 << 26})
	path := filepath.Join(t.TempDir(), "snap.vbs")

	require.NoError(t, Save(context.Background(), path, testSnapshot(), CodecLZ4, ctrl))

	got, err := Load(context.Background(), path, ctrl)
	require.NoError(t, err)
	assert.Len(t, got.Records, 3)
}

func TestSaveCanceled(t *testing.T) {
	ctrl := resource.NewController(resource.Config{SnapshotIOBytesPerSec: 16})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Save(ctx, filepath.Join(t.TempDir(), "snap.vbs"), testSnapshot(), CodecNone, ctrl)
	assert.Error(t, err)
}
