package admission

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"personakit/gate/pkg/admission/storage"
)

// ErrInvalidArgument is matched by every CallerError.
var ErrInvalidArgument = errors.New("invalid admission argument")

// ErrStorageUnavailable is the sentinel backends wrap around transport
// failures. CheckAndAdmit converts it into a degraded Decision; it is only
// returned by operations without a failure policy, such as Sweeper.RunOnce.
var ErrStorageUnavailable = storage.ErrUnavailable

// Decision is the outcome of one admission check.
type Decision struct {
	// Allowed reports whether the request was admitted.
	Allowed bool

	// Limit is the quota the check was evaluated against.
	Limit int

	// Remaining is how many more requests would be admitted right now.
	// Never negative.
	Remaining int

	// ResetAt is when a retry can next be admitted (on denial) or when the
	// request just admitted leaves the window (on admission).
	ResetAt time.Time

	// RetryAfter is max(0, ResetAt - now). Only meaningful on denial.
	RetryAfter time.Duration

	// Degraded is set when storage failed and the decision came from the
	// failure policy instead of the recorded window.
	Degraded bool
}

// Policy is a named quota: at most Limit admissions per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Validate checks the policy the same way CheckAndAdmit checks its arguments.
func (p Policy) Validate() error {
	if p.Limit < 0 {
		return &CallerError{Field: "limit", Message: fmt.Sprintf("must be >= 0, got %d", p.Limit)}
	}
	if p.Window <= 0 {
		return &CallerError{Field: "window", Message: fmt.Sprintf("must be > 0, got %s", p.Window)}
	}
	return nil
}

// PolicyHolder publishes a Policy that can be swapped while requests are in
// flight, for example on config reload.
type PolicyHolder struct {
	p atomic.Pointer[Policy]
}

// NewPolicyHolder returns a holder serving p.
func NewPolicyHolder(p Policy) *PolicyHolder {
	h := &PolicyHolder{}
	h.Store(p)
	return h
}

// Load returns the current policy.
func (h *PolicyHolder) Load() Policy {
	return *h.p.Load()
}

// Store replaces the current policy.
func (h *PolicyHolder) Store(p Policy) {
	h.p.Store(&p)
}

// FailurePolicy selects what CheckAndAdmit does when storage fails.
type FailurePolicy string

const (
	// FailOpen admits requests while storage is unavailable.
	FailOpen FailurePolicy = "open"

	// FailClosed denies requests while storage is unavailable.
	FailClosed FailurePolicy = "closed"
)

// ParseFailurePolicy converts a configuration value into a FailurePolicy.
// The empty string is rejected: the policy must be chosen explicitly.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case FailOpen:
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	case "":
		return "", fmt.Errorf("failure policy is required (open or closed)")
	default:
		return "", fmt.Errorf("unknown failure policy %q (must be open or closed)", s)
	}
}

// CallerError reports an argument that can never be valid. It signals a
// programming or configuration bug at the call site, not a runtime
// condition, and matches ErrInvalidArgument with errors.Is.
type CallerError struct {
	Field   string
	Message string
}

func (e *CallerError) Error() string {
	return fmt.Sprintf("admission: invalid %s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrInvalidArgument) succeed.
func (e *CallerError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// Result labels reported to the metrics recorder.
const (
	ResultAllowed         = "allowed"
	ResultDenied          = "denied"
	ResultDegradedAllowed = "degraded_allowed"
	ResultDegradedDenied  = "degraded_denied"
)

func resultLabel(d Decision) string {
	switch {
	case d.Degraded && d.Allowed:
		return ResultDegradedAllowed
	case d.Degraded:
		return ResultDegradedDenied
	case d.Allowed:
		return ResultAllowed
	default:
		return ResultDenied
	}
}
