// Package cloudtest provides an in-memory EC2 simulator covering the calls
// made by the backup tool.
package cloudtest

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/juju/clock"

	"github.com/raoulx24/bsu-backup/internal/cloud"
)

// Server implements cloud.EC2API against in-memory state. Listings are
// returned in insertion order, like the natural order of the real API.
type Server struct {
	mu sync.Mutex

	clock clock.Clock

	instances []*types.Instance
	volumes   []*types.Volume
	snapshots []*types.Snapshot

	nextID           int
	pageSize         int
	newSnapshotState types.SnapshotState
	deleteErrs       map[string]error
	failures         map[string]error
	calls            []string
}

var _ cloud.EC2API = (*Server)(nil)

// NewServer returns an empty simulator. New snapshots are stamped with
// clk.Now() and are immediately completed.
func NewServer(clk clock.Clock) *Server {
	return &Server{
		clock:            clk,
		newSnapshotState: types.SnapshotStateCompleted,
		deleteErrs:       make(map[string]error),
		failures:         make(map[string]error),
	}
}

// InUseError is the error the API returns when deleting a snapshot that
// is still referenced.
func InUseError(snapshotID string) error {
	return &smithy.GenericAPIError{
		Code:    cloud.CodeSnapshotInUse,
		Message: fmt.Sprintf("The snapshot %s is currently in use", snapshotID),
		Fault:   smithy.FaultClient,
	}
}

// APIError builds an arbitrary API error.
func APIError(code, msg string) error {
	return &smithy.GenericAPIError{Code: code, Message: msg, Fault: smithy.FaultClient}
}

// FailOn makes every call to op (e.g. "DescribeSnapshots") return err.
// A nil err clears the failure.
func (s *Server) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// FailDelete makes DeleteSnapshot fail for one snapshot.
func (s *Server) FailDelete(snapshotID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteErrs[snapshotID] = err
}

// SetPageSize splits filter-based listings into pages of n items. Lookups
// by explicit ID are never paged. n <= 0 disables paging.
func (s *Server) SetPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageSize = n
}

// SetNewSnapshotState sets the state given to snapshots created from now on.
func (s *Server) SetNewSnapshotState(state types.SnapshotState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newSnapshotState = state
}

// Calls returns the names of the API operations served so far.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// AddVolume registers a volume and returns its ID.
func (s *Server) AddVolume(tags ...types.Tag) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID("vol")
	s.volumes = append(s.volumes, &types.Volume{
		VolumeId: aws.String(id),
		State:    types.VolumeStateAvailable,
		Tags:     copyTags(tags),
	})
	return id
}

// AddInstance registers an instance with the given attached volumes.
func (s *Server) AddInstance(state types.InstanceStateName, volumeIDs []string, tags ...types.Tag) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID("i")
	inst := &types.Instance{
		InstanceId: aws.String(id),
		State:      &types.InstanceState{Name: state},
		Tags:       copyTags(tags),
	}
	for i, vol := range volumeIDs {
		inst.BlockDeviceMappings = append(inst.BlockDeviceMappings, types.InstanceBlockDeviceMapping{
			DeviceName: aws.String(fmt.Sprintf("/dev/xvd%c", 'a'+i)),
			Ebs:        &types.EbsInstanceBlockDevice{VolumeId: aws.String(vol)},
		})
	}
	s.instances = append(s.instances, inst)
	return id
}

// AddSnapshot registers a completed snapshot and returns its ID.
func (s *Server) AddSnapshot(volumeID, description string, start time.Time, tags ...types.Tag) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID("snap")
	s.snapshots = append(s.snapshots, &types.Snapshot{
		SnapshotId:  aws.String(id),
		VolumeId:    aws.String(volumeID),
		Description: aws.String(description),
		StartTime:   aws.Time(start),
		State:       types.SnapshotStateCompleted,
		Tags:        copyTags(tags),
	})
	return id
}

// Snapshots returns the snapshots of a volume in insertion order.
func (s *Server) Snapshots(volumeID string) []types.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Snapshot
	for _, snap := range s.snapshots {
		if aws.ToString(snap.VolumeId) == volumeID {
			out = append(out, cloneSnapshot(snap))
		}
	}
	return out
}

func (s *Server) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("DescribeInstances"); err != nil {
		return nil, err
	}

	for _, id := range in.InstanceIds {
		if s.findInstance(id) == nil {
			return nil, APIError("InvalidInstanceID.NotFound", fmt.Sprintf("The instance ID '%s' does not exist", id))
		}
	}

	out := &ec2.DescribeInstancesOutput{}
	for _, inst := range s.instances {
		id := aws.ToString(inst.InstanceId)
		if len(in.InstanceIds) > 0 && !contains(in.InstanceIds, id) {
			continue
		}
		if !matchFilters(in.Filters, func(name string) []string {
			switch name {
			case "instance-id":
				return []string{id}
			case "instance-state-name":
				return []string{string(inst.State.Name)}
			}
			return tagValues(inst.Tags, name)
		}) {
			continue
		}
		// one reservation per instance, as run-instances with count 1 does
		out.Reservations = append(out.Reservations, types.Reservation{
			ReservationId: aws.String("r-" + strings.TrimPrefix(id, "i-")),
			Instances:     []types.Instance{*inst},
		})
	}
	if len(in.InstanceIds) == 0 {
		var err error
		out.Reservations, out.NextToken, err = paginate(out.Reservations, in.NextToken, s.pageSize)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Server) DescribeVolumes(_ context.Context, in *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("DescribeVolumes"); err != nil {
		return nil, err
	}

	for _, id := range in.VolumeIds {
		if s.findVolume(id) == nil {
			return nil, APIError("InvalidVolume.NotFound", fmt.Sprintf("The volume '%s' does not exist.", id))
		}
	}

	out := &ec2.DescribeVolumesOutput{}
	for _, vol := range s.volumes {
		id := aws.ToString(vol.VolumeId)
		if len(in.VolumeIds) > 0 && !contains(in.VolumeIds, id) {
			continue
		}
		if !matchFilters(in.Filters, func(name string) []string {
			switch name {
			case "volume-id":
				return []string{id}
			case "status":
				return []string{string(vol.State)}
			}
			return tagValues(vol.Tags, name)
		}) {
			continue
		}
		v := *vol
		v.Tags = copyTags(vol.Tags)
		out.Volumes = append(out.Volumes, v)
	}
	if len(in.VolumeIds) == 0 {
		var err error
		out.Volumes, out.NextToken, err = paginate(out.Volumes, in.NextToken, s.pageSize)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Server) DescribeSnapshots(_ context.Context, in *ec2.DescribeSnapshotsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("DescribeSnapshots"); err != nil {
		return nil, err
	}

	for _, id := range in.SnapshotIds {
		if s.findSnapshot(id) == nil {
			return nil, APIError("InvalidSnapshot.NotFound", fmt.Sprintf("The snapshot '%s' does not exist.", id))
		}
	}

	out := &ec2.DescribeSnapshotsOutput{}
	for _, snap := range s.snapshots {
		id := aws.ToString(snap.SnapshotId)
		if len(in.SnapshotIds) > 0 && !contains(in.SnapshotIds, id) {
			continue
		}
		if !matchFilters(in.Filters, func(name string) []string {
			switch name {
			case "snapshot-id":
				return []string{id}
			case "volume-id":
				return []string{aws.ToString(snap.VolumeId)}
			case "description":
				return []string{aws.ToString(snap.Description)}
			case "status":
				return []string{string(snap.State)}
			}
			return tagValues(snap.Tags, name)
		}) {
			continue
		}
		out.Snapshots = append(out.Snapshots, cloneSnapshot(snap))
	}
	if len(in.SnapshotIds) == 0 {
		var err error
		out.Snapshots, out.NextToken, err = paginate(out.Snapshots, in.NextToken, s.pageSize)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Server) CreateSnapshot(_ context.Context, in *ec2.CreateSnapshotInput, _ ...func(*ec2.Options)) (*ec2.CreateSnapshotOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("CreateSnapshot"); err != nil {
		return nil, err
	}

	volumeID := aws.ToString(in.VolumeId)
	if s.findVolume(volumeID) == nil {
		return nil, APIError("InvalidVolume.NotFound", fmt.Sprintf("The volume '%s' does not exist.", volumeID))
	}

	snap := &types.Snapshot{
		SnapshotId:  aws.String(s.newID("snap")),
		VolumeId:    aws.String(volumeID),
		Description: in.Description,
		StartTime:   aws.Time(s.clock.Now()),
		State:       s.newSnapshotState,
	}
	s.snapshots = append(s.snapshots, snap)

	return &ec2.CreateSnapshotOutput{
		SnapshotId:  snap.SnapshotId,
		VolumeId:    snap.VolumeId,
		Description: snap.Description,
		StartTime:   snap.StartTime,
		State:       snap.State,
	}, nil
}

func (s *Server) CreateTags(_ context.Context, in *ec2.CreateTagsInput, _ ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("CreateTags"); err != nil {
		return nil, err
	}

	for _, id := range in.Resources {
		var tags *[]types.Tag
		switch {
		case s.findSnapshot(id) != nil:
			tags = &s.findSnapshot(id).Tags
		case s.findVolume(id) != nil:
			tags = &s.findVolume(id).Tags
		case s.findInstance(id) != nil:
			tags = &s.findInstance(id).Tags
		default:
			return nil, APIError("InvalidID", fmt.Sprintf("The ID '%s' is not valid", id))
		}
		*tags = mergeTags(*tags, in.Tags)
	}
	return &ec2.CreateTagsOutput{}, nil
}

func (s *Server) DeleteSnapshot(_ context.Context, in *ec2.DeleteSnapshotInput, _ ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("DeleteSnapshot"); err != nil {
		return nil, err
	}

	id := aws.ToString(in.SnapshotId)
	if err, ok := s.deleteErrs[id]; ok {
		return nil, err
	}

	for i, snap := range s.snapshots {
		if aws.ToString(snap.SnapshotId) == id {
			s.snapshots = append(s.snapshots[:i], s.snapshots[i+1:]...)
			return &ec2.DeleteSnapshotOutput{}, nil
		}
	}
	return nil, APIError("InvalidSnapshot.NotFound", fmt.Sprintf("The snapshot '%s' does not exist.", id))
}

func (s *Server) DescribeKeyPairs(_ context.Context, _ *ec2.DescribeKeyPairsInput, _ ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record("DescribeKeyPairs"); err != nil {
		return nil, err
	}
	return &ec2.DescribeKeyPairsOutput{}, nil
}

// paginate returns the page of items starting at token. Tokens are the
// offset of the first item of the page.
func paginate[T any](items []T, token *string, size int) ([]T, *string, error) {
	start := 0
	if token != nil {
		n, err := strconv.Atoi(*token)
		if err != nil || n < 0 || n > len(items) {
			return nil, nil, APIError("InvalidPaginationToken", fmt.Sprintf("Invalid pagination token %q", *token))
		}
		start = n
	}
	if size <= 0 || start+size >= len(items) {
		return items[start:], nil, nil
	}
	return items[start : start+size], aws.String(strconv.Itoa(start + size)), nil
}

// record must be called with s.mu held.
func (s *Server) record(op string) error {
	s.calls = append(s.calls, op)
	return s.failures[op]
}

func (s *Server) newID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%08x", prefix, s.nextID)
}

func (s *Server) findInstance(id string) *types.Instance {
	for _, inst := range s.instances {
		if aws.ToString(inst.InstanceId) == id {
			return inst
		}
	}
	return nil
}

func (s *Server) findVolume(id string) *types.Volume {
	for _, vol := range s.volumes {
		if aws.ToString(vol.VolumeId) == id {
			return vol
		}
	}
	return nil
}

func (s *Server) findSnapshot(id string) *types.Snapshot {
	for _, snap := range s.snapshots {
		if aws.ToString(snap.SnapshotId) == id {
			return snap
		}
	}
	return nil
}

// matchFilters applies EC2 filter semantics: filters are ANDed, the values
// of one filter are ORed, and values may contain * and ? wildcards.
func matchFilters(filters []types.Filter, values func(name string) []string) bool {
	for _, f := range filters {
		have := values(aws.ToString(f.Name))
		if !anyMatch(f.Values, have) {
			return false
		}
	}
	return true
}

func anyMatch(patterns, have []string) bool {
	for _, p := range patterns {
		for _, v := range have {
			if ok, _ := path.Match(p, v); ok {
				return true
			}
		}
	}
	return false
}

func tagValues(tags []types.Tag, filterName string) []string {
	key, ok := strings.CutPrefix(filterName, "tag:")
	if !ok {
		return nil
	}
	var out []string
	for _, t := range tags {
		if aws.ToString(t.Key) == key {
			out = append(out, aws.ToString(t.Value))
		}
	}
	return out
}

func mergeTags(dst, src []types.Tag) []types.Tag {
	out := copyTags(dst)
	for _, t := range src {
		replaced := false
		for i := range out {
			if aws.ToString(out[i].Key) == aws.ToString(t.Key) {
				out[i].Value = aws.String(aws.ToString(t.Value))
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, types.Tag{Key: aws.String(aws.ToString(t.Key)), Value: aws.String(aws.ToString(t.Value))})
		}
	}
	return out
}

func copyTags(tags []types.Tag) []types.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]types.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, types.Tag{Key: aws.String(aws.ToString(t.Key)), Value: aws.String(aws.ToString(t.Value))})
	}
	return out
}

func cloneSnapshot(snap *types.Snapshot) types.Snapshot {
	c := *snap
	c.Tags = copyTags(snap.Tags)
	return c
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Tag is a shorthand for building EC2 tags in tests.
func Tag(key, value string) types.Tag {
	return types.Tag{Key: aws.String(key), Value: aws.String(value)}
}
