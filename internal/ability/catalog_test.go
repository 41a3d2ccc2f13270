package ability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewCatalog(t *testing.T) {
	defs := []Definition{
		{Name: "Confusion", Kind: KindReverseDirection, Duration: 3 * time.Second, Refresh: true},
		{Name: "drunk", Kind: KindRandomDirection, Duration: 5 * time.Second, RequiresContinuousMovement: true, ChangeInterval: 500 * time.Millisecond},
	}

	catalog, err := NewCatalog(defs, zaptest.NewLogger(t))
	require.NoError(t, err)

	all := catalog.All()
	require.Len(t, all, 2)
	assert.Equal(t, "Confusion", all[0].Name())
	assert.Equal(t, "drunk", all[1].Name())

	confusion, ok := catalog.Lookup("confusion")
	require.True(t, ok)
	assert.IsType(t, &ReverseDirection{}, confusion)
	assert.True(t, confusion.Config().RefreshAbility)
	assert.Equal(t, 3*time.Second, confusion.Config().Duration)

	drunk, ok := catalog.Lookup(" DRUNK ")
	require.True(t, ok)
	random, ok := drunk.(*RandomDirection)
	require.True(t, ok)
	assert.True(t, random.Config().RequiresContinuousMovement)
	assert.Equal(t, 500*time.Millisecond, random.Interval())

	_, ok = catalog.Lookup("missing")
	assert.False(t, ok)
}

func TestNewCatalog_Errors(t *testing.T) {
	tests := []struct {
		name string
		defs []Definition
		want string
	}{
		{
			name: "missing name",
			defs: []Definition{{Kind: KindReverseDirection}},
			want: "name is required",
		},
		{
			name: "unknown kind",
			defs: []Definition{{Name: "x", Kind: "teleport"}},
			want: "unknown kind",
		},
		{
			name: "negative duration",
			defs: []Definition{{Name: "x", Kind: KindReverseDirection, Duration: -time.Second}},
			want: "duration must not be negative",
		},
		{
			name: "negative interval",
			defs: []Definition{{Name: "x", Kind: KindRandomDirection, ChangeInterval: -time.Second}},
			want: "change_interval must not be negative",
		},
		{
			name: "duplicate",
			defs: []Definition{
				{Name: "x", Kind: KindReverseDirection},
				{Name: "X", Kind: KindRandomDirection},
			},
			want: "duplicate name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.defs, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCatalog_NilSafe(t *testing.T) {
	var c *Catalog
	_, ok := c.Lookup("x")
	assert.False(t, ok)
	assert.Nil(t, c.All())
}
