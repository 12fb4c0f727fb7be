package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prompt-sync/internal/store"
)

func TestParseDedupMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    DedupMode
		wantErr bool
	}{
		{"", DedupFields, false},
		{"fields", DedupFields, false},
		{"pair", DedupPair, false},
		{"Pair", "", true},
		{"exact", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDedupMode(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSnapshot_EmptyContainsNothing(t *testing.T) {
	t.Parallel()

	for _, mode := range []DedupMode{DedupFields, DedupPair} {
		s := NewSnapshot(mode, nil)
		assert.Equal(t, 0, s.Len())
		assert.False(t, s.Contains("", ""), mode)
		assert.False(t, s.Contains("Hello", "World"), mode)
	}
}

func TestSnapshot_Contains(t *testing.T) {
	t.Parallel()

	recs := []store.Record{
		{Prefix: "A", Suffix: "B"},
		{Prefix: "C", Suffix: "D"},
	}

	tests := []struct {
		prefix, suffix string
		fields, pair   bool
	}{
		{"A", "B", true, true},
		{"C", "D", true, true},
		{"A", "D", true, false},
		{"C", "B", true, false},
		{"A", "X", false, false},
		{"X", "B", false, false},
		{"B", "A", false, false},
	}

	fields := NewSnapshot(DedupFields, recs)
	pair := NewSnapshot(DedupPair, recs)
	assert.Equal(t, 2, fields.Len())

	for _, tc := range tests {
		assert.Equal(t, tc.fields, fields.Contains(tc.prefix, tc.suffix), "fields %s/%s", tc.prefix, tc.suffix)
		assert.Equal(t, tc.pair, pair.Contains(tc.prefix, tc.suffix), "pair %s/%s", tc.prefix, tc.suffix)
	}
}

func TestSnapshot_Add(t *testing.T) {
	t.Parallel()

	s := NewSnapshot(DedupPair, nil)
	require.False(t, s.Contains("X", "Y"))

	s.Add("X", "Y")
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Contains("X", "Y"))
	assert.False(t, s.Contains("X", "Z"))
}
