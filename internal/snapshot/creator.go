package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/juju/clock"

	"github.com/raoulx24/bsu-backup/internal/cloud"
	"github.com/raoulx24/bsu-backup/internal/logging"
)

// CreatorAPI is the part of the EC2 client the creator calls.
type CreatorAPI interface {
	ec2.DescribeSnapshotsAPIClient
	ec2.DescribeVolumesAPIClient
	CreateSnapshot(context.Context, *ec2.CreateSnapshotInput, ...func(*ec2.Options)) (*ec2.CreateSnapshotOutput, error)
	CreateTags(context.Context, *ec2.CreateTagsInput, ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
}

type CreatorOptions struct {
	CopyTags    bool
	WaitTimeout time.Duration
	WaitDelay   time.Duration // minimum delay between completion polls; 0 keeps the SDK default
}

// Creator snapshots volumes and waits for the whole batch to complete.
type Creator struct {
	api   CreatorAPI
	log   logging.Logger
	clock clock.Clock
	opts  CreatorOptions
}

func NewCreator(api CreatorAPI, log logging.Logger, clk clock.Clock, opts CreatorOptions) *Creator {
	return &Creator{api: api, log: log, clock: clk, opts: opts}
}

// Create issues one snapshot per volume, copies volume tags when asked,
// then blocks until every snapshot is completed. It returns the snapshot
// IDs in volume order. Any failure aborts the batch.
func (c *Creator) Create(ctx context.Context, volumes []string) ([]string, error) {
	if len(volumes) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(volumes))
	for _, vol := range volumes {
		out, err := c.api.CreateSnapshot(ctx, &ec2.CreateSnapshotInput{
			VolumeId:    aws.String(vol),
			Description: aws.String(Description(c.clock.Now())),
		})
		if err != nil {
			return ids, fmt.Errorf("creating snapshot of %s: %w", vol, err)
		}
		id := aws.ToString(out.SnapshotId)
		c.log.Info("snapshot created", "volume", vol, "snapshot", id)
		ids = append(ids, id)

		if c.opts.CopyTags {
			if err := c.copyTags(ctx, vol, id); err != nil {
				return ids, err
			}
		}
	}

	if err := c.wait(ctx, ids); err != nil {
		return ids, err
	}
	return ids, nil
}

func (c *Creator) copyTags(ctx context.Context, vol, snap string) error {
	out, err := c.api.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{VolumeIds: []string{vol}})
	if err != nil {
		return fmt.Errorf("reading tags of %s: %w", vol, err)
	}
	if len(out.Volumes) == 0 || len(out.Volumes[0].Tags) == 0 {
		return nil
	}

	if _, err := c.api.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{snap},
		Tags:      out.Volumes[0].Tags,
	}); err != nil {
		return fmt.Errorf("copying tags of %s to %s: %w", vol, snap, err)
	}
	c.log.Info("tags copied", "volume", vol, "snapshot", snap, "count", len(out.Volumes[0].Tags))
	return nil
}

func (c *Creator) wait(ctx context.Context, ids []string) error {
	c.log.Info("waiting for snapshots", "snapshots", ids, "timeout", c.opts.WaitTimeout)

	w := ec2.NewSnapshotCompletedWaiter(c.api, func(o *ec2.SnapshotCompletedWaiterOptions) {
		o.Retryable = failFast(o.Retryable)
		if c.opts.WaitDelay > 0 {
			o.MinDelay = c.opts.WaitDelay
			if o.MaxDelay < o.MinDelay {
				o.MaxDelay = o.MinDelay
			}
		}
	})
	if err := w.Wait(ctx, &ec2.DescribeSnapshotsInput{SnapshotIds: ids}, c.opts.WaitTimeout); err != nil {
		return fmt.Errorf("waiting for snapshots %v: %w", ids, err)
	}
	return nil
}

// failFast stops the wait on the first API error. Only a snapshot that is
// not visible yet is polled again; everything else goes to next.
func failFast(next func(context.Context, *ec2.DescribeSnapshotsInput, *ec2.DescribeSnapshotsOutput, error) (bool, error)) func(context.Context, *ec2.DescribeSnapshotsInput, *ec2.DescribeSnapshotsOutput, error) (bool, error) {
	return func(ctx context.Context, in *ec2.DescribeSnapshotsInput, out *ec2.DescribeSnapshotsOutput, err error) (bool, error) {
		if err != nil {
			if cloud.ErrorCode(err) == cloud.CodeSnapshotNotFound {
				return true, nil
			}
			return false, err
		}
		return next(ctx, in, out, err)
	}
}
