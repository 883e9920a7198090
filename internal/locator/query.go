package locator

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/raoulx24/bsu-backup/internal/config"
)

// TagQuery is one parsed "key:value" selector.
type TagQuery struct {
	Key   string
	Value string
}

func (q TagQuery) String() string { return q.Key + ":" + q.Value }

// filter converts the query to an EC2 tag filter.
func (q TagQuery) filter() types.Filter {
	return types.Filter{
		Name:   aws.String("tag:" + q.Key),
		Values: []string{q.Value},
	}
}

// ParseTagQuery splits s on its first colon. The value may itself contain
// colons; the key may not be empty.
func ParseTagQuery(s string) (TagQuery, error) {
	key, value, ok := strings.Cut(s, ":")
	if !ok || key == "" {
		return TagQuery{}, fmt.Errorf("%w: tag query %q must look like key:value", config.ErrInvalid, s)
	}
	return TagQuery{Key: key, Value: value}, nil
}

// ParseTagQueries parses every entry, failing on the first malformed one.
func ParseTagQueries(in []string) ([]TagQuery, error) {
	out := make([]TagQuery, 0, len(in))
	for _, s := range in {
		q, err := ParseTagQuery(s)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// Target selects the volumes to back up. Exactly one field is set.
type Target struct {
	VolumeID     string
	InstanceID   string
	InstanceTags []TagQuery
	VolumeTags   []TagQuery
}

// TargetFromConfig parses the tag queries of cfg once, at the boundary.
func TargetFromConfig(cfg config.TargetConfig) (Target, error) {
	if err := cfg.Validate(); err != nil {
		return Target{}, err
	}

	instanceTags, err := ParseTagQueries(cfg.InstanceTags)
	if err != nil {
		return Target{}, err
	}
	volumeTags, err := ParseTagQueries(cfg.VolumeTags)
	if err != nil {
		return Target{}, err
	}

	return Target{
		VolumeID:     cfg.VolumeID,
		InstanceID:   cfg.InstanceID,
		InstanceTags: instanceTags,
		VolumeTags:   volumeTags,
	}, nil
}
