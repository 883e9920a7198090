package cloud

import (
	"errors"

	"github.com/aws/smithy-go"
)

// Kind classifies remote API failures. Only KindOther is fatal to callers
// that tolerate busy resources.
type Kind int

const (
	KindOther Kind = iota
	KindResourceInUse
)

func (k Kind) String() string {
	switch k {
	case KindResourceInUse:
		return "resource-in-use"
	default:
		return "other"
	}
}

// CodeSnapshotInUse is returned when deleting a snapshot that is referenced
// by an image or an in-flight copy.
const CodeSnapshotInUse = "InvalidSnapshot.InUse"

// CodeSnapshotNotFound is returned while a freshly created snapshot is not
// yet visible to DescribeSnapshots.
const CodeSnapshotNotFound = "InvalidSnapshot.NotFound"

// Classify maps an error returned by the EC2 API to a Kind.
func Classify(err error) Kind {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == CodeSnapshotInUse {
		return KindResourceInUse
	}
	return KindOther
}

// ErrorCode returns the machine-readable API error code, or "" when err
// did not come from the remote API.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
