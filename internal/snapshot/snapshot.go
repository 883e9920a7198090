package snapshot

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// Record is a snapshot as read from the API. It is never cached: every
// decision is made on a fresh listing.
type Record struct {
	ID          string
	VolumeID    string
	StartTime   time.Time
	Description string
	State       types.SnapshotState
	Tags        []types.Tag
}

// FromAPI converts an EC2 snapshot to a Record.
func FromAPI(s types.Snapshot) Record {
	return Record{
		ID:          aws.ToString(s.SnapshotId),
		VolumeID:    aws.ToString(s.VolumeId),
		StartTime:   aws.ToTime(s.StartTime),
		Description: aws.ToString(s.Description),
		State:       s.State,
		Tags:        s.Tags,
	}
}
