// Package locator resolves a backup target into the volumes to snapshot.
package locator

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/raoulx24/bsu-backup/internal/config"
	"github.com/raoulx24/bsu-backup/internal/logging"
)

// API is the part of the EC2 client the locator queries.
type API interface {
	ec2.DescribeInstancesAPIClient
	ec2.DescribeVolumesAPIClient
}

// Locator turns a Target into a deduplicated list of volume IDs.
type Locator struct {
	api API
	log logging.Logger
}

func New(api API, log logging.Logger) *Locator {
	return &Locator{api: api, log: log}
}

// Locate returns the volumes selected by t, in first-seen order.
func (l *Locator) Locate(ctx context.Context, t Target) ([]string, error) {
	switch {
	case t.VolumeID != "":
		return []string{t.VolumeID}, nil

	case t.InstanceID != "":
		l.log.Info("finding instance by id", "instance", t.InstanceID)
		return l.instanceVolumes(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{t.InstanceID},
		})

	case len(t.InstanceTags) > 0:
		l.log.Info("finding instances by tags", "tags", t.InstanceTags)
		filters := []types.Filter{{
			Name: aws.String("instance-state-name"),
			Values: []string{
				string(types.InstanceStateNameRunning),
				string(types.InstanceStateNameStopped),
			},
		}}
		for _, q := range t.InstanceTags {
			filters = append(filters, q.filter())
		}
		return l.instanceVolumes(ctx, &ec2.DescribeInstancesInput{Filters: filters})

	case len(t.VolumeTags) > 0:
		l.log.Info("finding volumes by tags", "tags", t.VolumeTags)
		filters := make([]types.Filter, 0, len(t.VolumeTags))
		for _, q := range t.VolumeTags {
			filters = append(filters, q.filter())
		}
		return l.taggedVolumes(ctx, filters)

	default:
		return nil, fmt.Errorf("%w: empty backup target", config.ErrInvalid)
	}
}

func (l *Locator) instanceVolumes(ctx context.Context, in *ec2.DescribeInstancesInput) ([]string, error) {
	var volumes orderedSet

	p := ec2.NewDescribeInstancesPaginator(l.api, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describing instances: %w", err)
		}
		for _, res := range page.Reservations {
			for _, inst := range res.Instances {
				id := aws.ToString(inst.InstanceId)
				l.log.Info("instance found", "instance", id, "tags", tagPairs(inst.Tags))
				for _, bdm := range inst.BlockDeviceMappings {
					if bdm.Ebs == nil || bdm.Ebs.VolumeId == nil {
						continue
					}
					vol := aws.ToString(bdm.Ebs.VolumeId)
					l.log.Info("volume found", "instance", id, "volume", vol)
					volumes.add(vol)
				}
			}
		}
	}
	return volumes.items, nil
}

func (l *Locator) taggedVolumes(ctx context.Context, filters []types.Filter) ([]string, error) {
	var volumes orderedSet

	p := ec2.NewDescribeVolumesPaginator(l.api, &ec2.DescribeVolumesInput{Filters: filters})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describing volumes: %w", err)
		}
		for _, v := range page.Volumes {
			vol := aws.ToString(v.VolumeId)
			l.log.Info("volume found", "volume", vol, "tags", tagPairs(v.Tags))
			volumes.add(vol)
		}
	}
	return volumes.items, nil
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func (s *orderedSet) add(v string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

func tagPairs(tags []types.Tag) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, aws.ToString(t.Key)+"="+aws.ToString(t.Value))
	}
	return out
}
