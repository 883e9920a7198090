package retention

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/raoulx24/bsu-backup/internal/config"
	"github.com/raoulx24/bsu-backup/internal/snapshot"
)

// Policy decides which snapshots of one volume are deleted. The only
// implementations are CountPolicy and AgePolicy.
type Policy interface {
	fmt.Stringer
	validate() error
	selectFrom(now time.Time, recs []snapshot.Record) []snapshot.Record
}

// CountPolicy keeps the Keep most recent snapshots.
type CountPolicy struct {
	Keep int
}

func (p CountPolicy) String() string { return fmt.Sprintf("keep %d most recent", p.Keep) }

func (p CountPolicy) validate() error {
	if p.Keep < 1 {
		return fmt.Errorf("%w: count policy must keep at least 1 snapshot, got %d", config.ErrInvalid, p.Keep)
	}
	return nil
}

// selectFrom evaluates as soon as there are Keep snapshots, not Keep+1:
// rotation runs right after a creation, so that threshold is the usual
// trigger point and must not move.
func (p CountPolicy) selectFrom(_ time.Time, recs []snapshot.Record) []snapshot.Record {
	if len(recs) < p.Keep {
		return nil
	}

	// Sort newest → oldest; ties keep API order
	sorted := slices.Clone(recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.After(sorted[j].StartTime)
	})

	return sorted[p.Keep:]
}

// AgePolicy deletes snapshots at least MaxAgeDays whole days old.
type AgePolicy struct {
	MaxAgeDays int
}

func (p AgePolicy) String() string { return fmt.Sprintf("older than %d days", p.MaxAgeDays) }

func (p AgePolicy) validate() error {
	if p.MaxAgeDays < 0 {
		return fmt.Errorf("%w: age policy days must be >= 0, got %d", config.ErrInvalid, p.MaxAgeDays)
	}
	return nil
}

func (p AgePolicy) selectFrom(now time.Time, recs []snapshot.Record) []snapshot.Record {
	var out []snapshot.Record
	for _, r := range recs {
		if AgeDays(now, r.StartTime) >= p.MaxAgeDays {
			out = append(out, r)
		}
	}
	return out
}

const day = 24 * time.Hour

// AgeDays is the number of whole days elapsed between t and now, rounded
// down. Snapshots stamped in the future have a negative age.
func AgeDays(now, t time.Time) int {
	d := now.Sub(t)
	days := int(d / day)
	if d < 0 && d%day != 0 {
		days--
	}
	return days
}

// Plan returns the snapshots policy selects for deletion out of recs.
// recs is not modified.
func Plan(now time.Time, recs []snapshot.Record, policy Policy) []snapshot.Record {
	return policy.selectFrom(now, recs)
}

// Scope restricts which snapshots rotation may see.
type Scope int

const (
	// ScopeAll considers every snapshot of the volume.
	ScopeAll Scope = iota
	// ScopeOwned considers only snapshots whose description carries a
	// known marker of this tool.
	ScopeOwned
)

func (s Scope) String() string {
	if s == ScopeOwned {
		return "owned"
	}
	return "all"
}

// PolicyFromConfig builds the active policy. Days, when set, wins over Count.
func PolicyFromConfig(cfg config.RetentionConfig) (Policy, Scope, error) {
	scope := ScopeAll
	if cfg.OnlyOwned {
		scope = ScopeOwned
	}

	var p Policy = CountPolicy{Keep: cfg.Count}
	if cfg.Days != nil {
		p = AgePolicy{MaxAgeDays: *cfg.Days}
	}
	if err := p.validate(); err != nil {
		return nil, scope, err
	}
	return p, scope, nil
}
