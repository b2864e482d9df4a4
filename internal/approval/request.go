package approval

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xelth-com/examroom/internal/store"
)

// Status of an access request
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected" // defined, never set by the UI
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// ErrMalformed is returned by Decode for records that must not reach the domain
var ErrMalformed = errors.New("malformed access request")

// AccessRequest is one candidate's request to take the exam
type AccessRequest struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Status    Status `json:"status" validate:"required,oneof=pending approved rejected"`
	Timestamp int64  `json:"timestamp" validate:"gt=0"` // epoch milliseconds
}

// Time returns the creation time
func (r AccessRequest) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// fields is the stored shape of the request
func (r AccessRequest) fields() map[string]any {
	return map[string]any{
		"id":        r.ID,
		"name":      r.Name,
		"status":    string(r.Status),
		"timestamp": r.Timestamp,
	}
}

var validate = validator.New()

// Decode turns a replicated node into an AccessRequest.
// key is the node's key in the collection and stands in for a missing id field.
func Decode(key string, n store.Node) (AccessRequest, error) {
	if n == nil {
		return AccessRequest{}, fmt.Errorf("%w: %s removed", ErrMalformed, key)
	}

	id, _ := n.String("id")
	if id == "" {
		id = key
	}
	name, _ := n.String("name")
	status, _ := n.String("status")
	ts, _ := n.Int64("timestamp")

	req := AccessRequest{ID: id, Name: name, Status: Status(status), Timestamp: ts}
	if err := validate.Struct(req); err != nil {
		return AccessRequest{}, fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
	}
	return req, nil
}

// Sorted returns a copy ordered newest first; id breaks ties
func Sorted(reqs []AccessRequest) []AccessRequest {
	out := make([]AccessRequest, len(reqs))
	copy(out, reqs)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Count returns how many requests have the given status
func Count(reqs []AccessRequest, status Status) int {
	n := 0
	for _, r := range reqs {
		if r.Status == status {
			n++
		}
	}
	return n
}
