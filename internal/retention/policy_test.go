package retention

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raoulx24/bsu-backup/internal/config"
	"github.com/raoulx24/bsu-backup/internal/snapshot"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// records builds snapshots started the given number of hours before now,
// in API order.
func records(hoursAgo ...int) []snapshot.Record {
	out := make([]snapshot.Record, 0, len(hoursAgo))
	for i, h := range hoursAgo {
		out = append(out, snapshot.Record{
			ID:        fmt.Sprintf("snap-%d", i),
			VolumeID:  "vol-1",
			StartTime: now.Add(-time.Duration(h) * time.Hour),
		})
	}
	return out
}

func ids(recs []snapshot.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestCountPolicy(t *testing.T) {
	tests := []struct {
		name string
		keep int
		recs []snapshot.Record
		want []string
	}{
		{"below threshold", 3, records(1, 2), []string{}},
		{"at threshold", 2, records(1, 2), []string{}},
		{"one over", 2, records(5, 1, 3), []string{"snap-0"}},
		{"keep one of three", 1, records(2, 1, 3), []string{"snap-0", "snap-2"}},
		{"empty", 1, nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Plan(now, tt.recs, CountPolicy{Keep: tt.keep})
			assert.ElementsMatch(t, tt.want, ids(got))
		})
	}
}

func TestCountPolicyOrdersOldestLast(t *testing.T) {
	got := Plan(now, records(10, 30, 20, 40), CountPolicy{Keep: 2})
	assert.Equal(t, []string{"snap-1", "snap-3"}, ids(got))
}

func TestCountPolicyTiesKeepAPIOrder(t *testing.T) {
	recs := records(5, 5, 5)
	got := Plan(now, recs, CountPolicy{Keep: 1})
	assert.Equal(t, []string{"snap-1", "snap-2"}, ids(got))
	// input untouched
	assert.Equal(t, []string{"snap-0", "snap-1", "snap-2"}, ids(recs))
}

func TestAgePolicyBoundary(t *testing.T) {
	const maxAge = 7
	recs := records(
		maxAge*24,     // exactly 7 days: deleted
		maxAge*24-1,   // 6 days 23h: kept
		(maxAge-1)*24, // 6 days: kept
		maxAge*24+30,  // 8 days 6h: deleted
	)

	got := Plan(now, recs, AgePolicy{MaxAgeDays: maxAge})
	assert.Equal(t, []string{"snap-0", "snap-3"}, ids(got))
}

func TestAgePolicyZeroSelectsEverything(t *testing.T) {
	got := Plan(now, records(0, 1, 500), AgePolicy{MaxAgeDays: 0})
	assert.Len(t, got, 3)
}

func TestAgeDays(t *testing.T) {
	assert.Equal(t, 0, AgeDays(now, now))
	assert.Equal(t, 0, AgeDays(now, now.Add(-23*time.Hour)))
	assert.Equal(t, 1, AgeDays(now, now.Add(-24*time.Hour)))
	assert.Equal(t, 2, AgeDays(now, now.Add(-71*time.Hour)))
	assert.Equal(t, -1, AgeDays(now, now.Add(time.Hour)))
}

func TestPolicyFromConfig(t *testing.T) {
	p, scope, err := PolicyFromConfig(config.RetentionConfig{Count: 5})
	require.NoError(t, err)
	assert.Equal(t, CountPolicy{Keep: 5}, p)
	assert.Equal(t, ScopeAll, scope)

	days := 0
	p, scope, err = PolicyFromConfig(config.RetentionConfig{Count: 5, Days: &days, OnlyOwned: true})
	require.NoError(t, err)
	assert.Equal(t, AgePolicy{MaxAgeDays: 0}, p)
	assert.Equal(t, ScopeOwned, scope)

	_, _, err = PolicyFromConfig(config.RetentionConfig{Count: 0})
	assert.ErrorIs(t, err, config.ErrInvalid)

	days = -2
	_, _, err = PolicyFromConfig(config.RetentionConfig{Days: &days})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestPolicyStrings(t *testing.T) {
	assert.Equal(t, "keep 3 most recent", CountPolicy{Keep: 3}.String())
	assert.Equal(t, "older than 30 days", AgePolicy{MaxAgeDays: 30}.String())
	assert.Equal(t, "owned", ScopeOwned.String())
	assert.Equal(t, "all", ScopeAll.String())
}
