package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRankedBallot(t *testing.T) {
	labor, liberal := NewParty("labor"), NewParty("liberal")

	b, err := NewRankedBallot(labor, liberal)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, labor, b.At(0))
	assert.Equal(t, []Party{labor, liberal}, b.Preferences())

	_, err = NewRankedBallot(labor, liberal, labor)
	assert.ErrorIs(t, err, ErrInvalidArgument, "duplicates are rejected on a ranked ballot")
}

func TestRankedBallot_Mutation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(b *RankedBallot[string]) error
		want    []string
		wantErr error
	}{
		{
			name:   "set replaces position",
			mutate: func(b *RankedBallot[string]) error { return b.Set(1, "greens") },
			want:   []string{"labor", "greens"},
		},
		{
			name:   "set same value is a no-op",
			mutate: func(b *RankedBallot[string]) error { return b.Set(0, "labor") },
			want:   []string{"labor", "liberal"},
		},
		{
			name:    "set duplicate is rejected",
			mutate:  func(b *RankedBallot[string]) error { return b.Set(1, "labor") },
			want:    []string{"labor", "liberal"},
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "set out of range",
			mutate:  func(b *RankedBallot[string]) error { return b.Set(5, "greens") },
			want:    []string{"labor", "liberal"},
			wantErr: ErrMissingKey,
		},
		{
			name:   "remove shifts later preferences up",
			mutate: func(b *RankedBallot[string]) error { return b.Remove(0) },
			want:   []string{"liberal"},
		},
		{
			name:    "remove out of range",
			mutate:  func(b *RankedBallot[string]) error { return b.Remove(-1) },
			want:    []string{"labor", "liberal"},
			wantErr: ErrMissingKey,
		},
		{
			name:   "append extends the ranking",
			mutate: func(b *RankedBallot[string]) error { return b.Append("greens", "nats") },
			want:   []string{"labor", "liberal", "greens", "nats"},
		},
		{
			name:    "append is all or nothing",
			mutate:  func(b *RankedBallot[string]) error { return b.Append("greens", "liberal") },
			want:    []string{"labor", "liberal"},
			wantErr: ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewRankedBallot("labor", "liberal")
			require.NoError(t, err)

			err = tt.mutate(b)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, b.Preferences())
		})
	}
}

func TestPreferentialBallot(t *testing.T) {
	b := NewPreferentialBallot("labor", "liberal", "labor")
	assert.Equal(t, []string{"labor", "liberal"}, b.Preferences(), "repeats keep the first ranking")

	b.Append("labor", "greens", "liberal")
	assert.Equal(t, []string{"labor", "liberal", "greens"}, b.Preferences())
	assert.True(t, b.Contains("greens"))
	assert.False(t, b.Contains("nats"))

	assert.ErrorIs(t, b.Set(0, "greens"), ErrInvalidArgument)
	require.NoError(t, b.Remove(0))
	assert.True(t, b.Equal(NewPreferentialBallot("liberal", "greens")))
	assert.False(t, b.Equal(NewPreferentialBallot("greens", "liberal")))
}

func TestBallot_PreferencesIsACopy(t *testing.T) {
	b, err := NewRankedBallot("a", "b")
	require.NoError(t, err)

	prefs := b.Preferences()
	prefs[0] = "z"
	assert.Equal(t, "a", b.At(0))
}

func TestRankedBallot_Equal(t *testing.T) {
	a, _ := NewRankedBallot("x", "y")
	b, _ := NewRankedBallot("x", "y")
	c, _ := NewRankedBallot("x")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}
