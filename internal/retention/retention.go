// Package retention rotates volume snapshots according to a count or
// age policy.
package retention

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/juju/clock"

	"github.com/raoulx24/bsu-backup/internal/cloud"
	"github.com/raoulx24/bsu-backup/internal/logging"
	"github.com/raoulx24/bsu-backup/internal/snapshot"
)

// API is the part of the EC2 client the engine calls.
type API interface {
	ec2.DescribeSnapshotsAPIClient
	DeleteSnapshot(context.Context, *ec2.DeleteSnapshotInput, ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error)
}

type Options struct {
	// DryRun logs the selection without deleting anything.
	DryRun bool
	// Markers recognised under ScopeOwned. Defaults to snapshot.Known.
	Markers snapshot.Markers
}

type Engine struct {
	api     API
	log     logging.Logger
	clock   clock.Clock
	dryRun  bool
	markers snapshot.Markers
}

func New(api API, log logging.Logger, clk clock.Clock, opts Options) *Engine {
	markers := opts.Markers
	if len(markers) == 0 {
		markers = snapshot.Known
	}
	return &Engine{
		api:     api,
		log:     log,
		clock:   clk,
		dryRun:  opts.DryRun,
		markers: markers,
	}
}

// VolumeReport is the outcome of rotating one volume.
type VolumeReport struct {
	VolumeID string
	Listed   int
	Selected []snapshot.Record
	Deleted  []string
	InUse    []string // selected but busy; left in place
	Err      error
}

type Report struct {
	Volumes []VolumeReport
}

// Deleted counts deletions across all volumes.
func (r Report) Deleted() int {
	n := 0
	for _, v := range r.Volumes {
		n += len(v.Deleted)
	}
	return n
}

// VolumeError carries the fatal error that stopped rotation of one volume.
type VolumeError struct {
	VolumeID string
	Err      error
}

func (e *VolumeError) Error() string { return fmt.Sprintf("rotating %s: %v", e.VolumeID, e.Err) }
func (e *VolumeError) Unwrap() error { return e.Err }

// DeleteError is a failed deletion tagged with its Kind. Only KindOther
// stops a volume's rotation.
type DeleteError struct {
	SnapshotID string
	Kind       cloud.Kind
	Err        error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("deleting %s (%s): %v", e.SnapshotID, e.Kind, e.Err)
}
func (e *DeleteError) Unwrap() error { return e.Err }

// Rotate applies policy to every volume independently. A fatal error on
// one volume stops that volume only; the others are still processed and
// all fatal errors are returned joined once every volume has been seen.
// Nothing is rolled back.
func (e *Engine) Rotate(ctx context.Context, volumes []string, policy Policy, scope Scope) (Report, error) {
	if err := policy.validate(); err != nil {
		return Report{}, err
	}
	e.log.Info("rotating snapshots", "policy", policy.String(), "scope", scope.String(), "volumes", len(volumes), "dryRun", e.dryRun)

	var (
		report Report
		errs   []error
	)
	for _, vol := range volumes {
		vr := e.rotateVolume(ctx, vol, policy, scope)
		if vr.Err != nil {
			e.log.Error("rotation failed", "volume", vol, "error", vr.Err)
			errs = append(errs, &VolumeError{VolumeID: vol, Err: vr.Err})
		}
		report.Volumes = append(report.Volumes, vr)
	}
	return report, errors.Join(errs...)
}

func (e *Engine) rotateVolume(ctx context.Context, vol string, policy Policy, scope Scope) VolumeReport {
	vr := VolumeReport{VolumeID: vol}

	recs, err := e.list(ctx, vol, scope)
	if err != nil {
		vr.Err = err
		return vr
	}
	vr.Listed = len(recs)

	// one listing, one decision
	vr.Selected = Plan(e.clock.Now(), recs, policy)
	e.log.Debug("selection computed", "volume", vol, "listed", vr.Listed, "selected", len(vr.Selected))

	for _, rec := range vr.Selected {
		e.log.Info("deleting snapshot", "volume", vol, "snapshot", rec.ID, "startTime", rec.StartTime)
		if e.dryRun {
			continue
		}

		err := e.delete(ctx, rec.ID)
		if err == nil {
			vr.Deleted = append(vr.Deleted, rec.ID)
			continue
		}

		var de *DeleteError
		if errors.As(err, &de) && de.Kind == cloud.KindResourceInUse {
			e.log.Error("snapshot in use, skipped", "volume", vol, "snapshot", rec.ID, "code", cloud.ErrorCode(de.Err), "error", de.Err)
			vr.InUse = append(vr.InUse, rec.ID)
			continue
		}
		e.log.Error("deleting snapshot failed", "volume", vol, "snapshot", rec.ID, "code", cloud.ErrorCode(err), "error", err)
		vr.Err = err
		return vr
	}
	return vr
}

// list fetches the current snapshots of vol. Under ScopeOwned the
// description filter is sent to the API and re-checked locally.
func (e *Engine) list(ctx context.Context, vol string, scope Scope) ([]snapshot.Record, error) {
	filters := []types.Filter{{
		Name:   aws.String("volume-id"),
		Values: []string{vol},
	}}
	if scope == ScopeOwned {
		filters = append(filters, types.Filter{
			Name:   aws.String("description"),
			Values: e.markers.FilterValues(),
		})
	}

	var recs []snapshot.Record
	p := ec2.NewDescribeSnapshotsPaginator(e.api, &ec2.DescribeSnapshotsInput{Filters: filters})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing snapshots: %w", err)
		}
		for _, s := range page.Snapshots {
			rec := snapshot.FromAPI(s)
			if scope == ScopeOwned && !e.markers.Match(rec.Description) {
				continue
			}
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (e *Engine) delete(ctx context.Context, id string) error {
	_, err := e.api.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{SnapshotId: aws.String(id)})
	if err != nil {
		return &DeleteError{SnapshotID: id, Kind: cloud.Classify(err), Err: err}
	}
	return nil
}
