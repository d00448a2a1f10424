package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHook struct {
	NopHook
	name      string
	initErr   error
	insertErr error
	calls     *[]string
}

func (h *recordingHook) Name() string { return h.name }

func (h *recordingHook) OnInit(context.Context) error {
	*h.calls = append(*h.calls, h.name+":init")
	return h.initErr
}

func (h *recordingHook) OnInsert(string, []float32, *string) error {
	*h.calls = append(*h.calls, h.name+":insert")
	return h.insertErr
}

func TestRegistryOrder(t *testing.T) {
	var calls []string
	r := NewRegistry(
		&recordingHook{name: "first", calls: &calls},
		&recordingHook{name: "second", calls: &calls},
	)

	require.NoError(t, r.Init(context.Background()))
	require.NoError(t, r.DispatchInsert("id", []float32{1}, nil))

	assert.Equal(t, []string{"first:init", "second:init", "first:insert", "second:insert"}, calls)
	assert.Equal(t, []string{"first", "second"}, r.Names())
}

func TestRegistryInsertAbortsChain(t *testing.T) {
	boom := errors.New("rejected")
	var calls []string
	r := NewRegistry(
		&recordingHook{name: "first", insertErr: boom, calls: &calls},
		&recordingHook{name: "second", calls: &calls},
	)

	err := r.DispatchInsert("id", []float32{1}, nil)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `plugin "first"`)
	assert.Equal(t, []string{"first:insert"}, calls)
}

func TestNilRegistry(t *testing.T) {
	var r *Registry
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Names())
	assert.NoError(t, r.Init(context.Background()))
	assert.NoError(t, r.DispatchInsert("id", []float32{1}, nil))
	assert.NoError(t, r.DispatchSearchResults(nil, &[]Result{}))
}

func TestClamp(t *testing.T) {
	c, err := NewClamp(-1, 1)
	require.NoError(t, err)

	vec := []float32{-2.5, -1, 0.25, 1, 3}
	require.NoError(t, c.OnInsert("id", vec, nil))
	assert.Equal(t, []float32{-1, -1, 0.25, 1, 1}, vec)

	_, err = NewClamp(1, -1)
	assert.Error(t, err)
}

func TestMinScoreFilter(t *testing.T) {
	f := NewMinScoreFilter(0.5)

	results := []Result{
		{ID: "a", Score: 0.9},
		{ID: "b", Score: 0.5},
		{ID: "c", Score: 0.49},
	}
	require.NoError(t, f.OnSearchResults(nil, &results))

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
}

func TestFromSpec(t *testing.T) {
	tests := []struct {
		spec    string
		name    string
		wantErr bool
	}{
		{spec: "clamp", name: "clamp"},
		{spec: "clamp=0.5", name: "clamp"},
		{spec: "min_score=0.25", name: "min_score"},
		{spec: "min_score", wantErr: true},
		{spec: "min_score=abc", wantErr: true},
		{spec: "clamp=x", wantErr: true},
		{spec: "unknown", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			h, err := FromSpec(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, h.Name())
		})
	}
}

func TestFromSpecClampBound(t *testing.T) {
	h, err := FromSpec("clamp=0.5")
	require.NoError(t, err)

	vec := []float32{-0.9, 0.2, 0.9}
	require.NoError(t, h.OnInsert("id", vec, nil))
	assert.Equal(t, []float32{-0.5, 0.2, 0.5}, vec)
}

func TestRegistryFromSpecs(t *testing.T) {
	r, err := RegistryFromSpecs([]string{"clamp", "min_score=0.1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"clamp", "min_score"}, r.Names())

	_, err = RegistryFromSpecs([]string{"clamp", "nope"})
	assert.Error(t, err)

	r, err = RegistryFromSpecs(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
}
