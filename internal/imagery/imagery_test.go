package imagery

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialSet(t *testing.T, examples, rows, cols int, names ...string) *ExampleSet {
	t.Helper()
	values := make([]float64, examples*rows*cols*len(names))
	for i := range values {
		values[i] = float64(i)
	}
	set, err := New(names, rows, cols, values)
	require.NoError(t, err)
	return set
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		names   []string
		rows    int
		cols    int
		values  []float64
		wantErr error
	}{
		{"valid", []string{"a", "b"}, 2, 2, make([]float64, 16), nil},
		{"empty values", []string{"a"}, 2, 2, nil, nil},
		{"zero rows", []string{"a"}, 0, 2, nil, ErrInvalidShape},
		{"no predictors", nil, 2, 2, nil, ErrInvalidShape},
		{"ragged values", []string{"a"}, 2, 2, make([]float64, 5), ErrInvalidShape},
		{"duplicate names", []string{"a", "a"}, 1, 1, make([]float64, 2), ErrDuplicatePredictor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.names, tt.rows, tt.cols, tt.values)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestExampleSet_Indexing(t *testing.T) {
	set := sequentialSet(t, 2, 2, 3, "refl", "temp")

	assert.Equal(t, 2, set.NumExamples())
	assert.Equal(t, 2, set.NumChannels())

	// ((1*2+1)*3+2)*2+1 = 23
	assert.Equal(t, 23.0, set.At(1, 1, 2, 1))

	set.Set(0, 0, 1, 0, -1)
	assert.Equal(t, -1.0, set.Values[2])

	idx, err := set.ChannelIndex("temp")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = set.ChannelIndex("u_wind")
	assert.ErrorIs(t, err, ErrUnknownPredictor)
}

func TestExampleSet_ChannelSliceRoundTrip(t *testing.T) {
	set := sequentialSet(t, 2, 2, 2, "a", "b", "c")

	slice := set.ChannelSlice(1, 2, nil)
	assert.Equal(t, []float64{14, 17, 20, 23}, slice)

	set.SetChannelSlice(1, 2, []float64{0, 0, 0, 0})
	assert.Equal(t, []float64{0, 0, 0, 0}, set.ChannelSlice(1, 2, slice))

	// neighbouring channels untouched
	assert.Equal(t, []float64{13, 16, 19, 22}, set.ChannelSlice(1, 1, nil))
}

func TestExampleSet_CloneIsDeep(t *testing.T) {
	set := sequentialSet(t, 1, 1, 2, "a")
	set.Targets = []float64{1, 2}
	set.StormIDs = []string{"s1"}

	clone := set.Clone()
	clone.Values[0] = 99
	clone.Targets[0] = 99
	clone.PredictorNames[0] = "z"
	clone.StormIDs[0] = "z"

	assert.Equal(t, 0.0, set.Values[0])
	assert.Equal(t, 1.0, set.Targets[0])
	assert.Equal(t, "a", set.PredictorNames[0])
	assert.Equal(t, "s1", set.StormIDs[0])
}

func TestExampleSet_Slice(t *testing.T) {
	set := sequentialSet(t, 3, 1, 2, "a")
	set.Targets = []float64{0, 1, 2, 3, 4, 5}

	part := set.Slice(1, 3)
	require.NoError(t, part.Validate())
	assert.Equal(t, 2, part.NumExamples())
	assert.Equal(t, []float64{2, 3, 4, 5}, part.Values)
	assert.Equal(t, []float64{2, 3, 4, 5}, part.Targets)
	assert.Equal(t, []float64{4, 5}, part.TargetGrid(1))
}

func TestConcat(t *testing.T) {
	a := sequentialSet(t, 1, 1, 1, "a", "b")
	b := sequentialSet(t, 2, 1, 1, "a", "b")

	joined, err := Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, 3, joined.NumExamples())

	c := sequentialSet(t, 1, 1, 1, "b", "a")
	_, err = Concat(a, c)
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestChannelValues(t *testing.T) {
	set := sequentialSet(t, 2, 1, 1, "a", "b")
	assert.Equal(t, []float64{0, 2}, set.ChannelValues(0))
	assert.Equal(t, []float64{1, 3}, set.ChannelValues(1))
}

func TestSaveLoadJSON(t *testing.T) {
	set := sequentialSet(t, 2, 2, 2, "refl", "temp")
	set.Targets = make([]float64, 8)
	set.StormIDs = []string{"a", "b"}
	set.StormSteps = []int{1, 2}

	path := filepath.Join(t.TempDir(), "nested", "examples.json")
	require.NoError(t, SaveJSON(set, path))

	loaded, err := LoadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, set, loaded)

	_, err = LoadJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
