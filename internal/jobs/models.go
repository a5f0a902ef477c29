package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the media type a job produces.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Status represents the lifecycle of a job attempt.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Tier is the capability level active when a job was submitted.
type Tier string

const (
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// ErrorKind classifies why a job ended in StatusError.
type ErrorKind string

const (
	ErrorKindNone       ErrorKind = ""
	ErrorKindCredential ErrorKind = "credential"
	ErrorKindTransport  ErrorKind = "transport"
)

// Role tags a reference asset. It is advisory only.
type Role string

const (
	RoleCharacter    Role = "character"
	RoleEnvironment  Role = "environment"
	RoleStyle        Role = "style"
	RoleSource       Role = "source"
	RoleContinuation Role = "continuation"
)

var (
	// ErrNotFound is returned when a job id is not present in the registry.
	ErrNotFound = errors.New("job not found")
	// ErrIllegalTransition is returned for any status edge outside the job graph.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrDuplicateID is returned when inserting a job whose id already exists.
	ErrDuplicateID = errors.New("duplicate job id")
)

var allKinds = []Kind{KindImage, KindVideo, KindAudio}

var allTiers = []Tier{TierStandard, TierPremium}

var activeStatuses = map[Status]struct{}{
	StatusQueued:     {},
	StatusProcessing: {},
}

var legalTransitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing},
	StatusProcessing: {StatusDone, StatusError},
}

// Reference is a handle to an ingested input asset.
type Reference struct {
	Handle string `json:"handle"`
	Role   Role   `json:"role"`
}

// Job is one generation request and its outcome.
type Job struct {
	ID              string      `json:"id"`
	Kind            Kind        `json:"kind"`
	Status          Status      `json:"status"`
	InputText       string      `json:"input_text,omitempty"`
	References      []Reference `json:"references"`
	ParentJobID     string      `json:"parent_job_id,omitempty"`
	ResultRef       string      `json:"result_ref,omitempty"`
	CostCredits     int64       `json:"cost_credits"`
	ErrorKind       ErrorKind   `json:"error_kind,omitempty"`
	Tier            Tier        `json:"tier"`
	Resolution      string      `json:"resolution,omitempty"`
	AspectRatio     string      `json:"aspect_ratio,omitempty"`
	SourceAssetID   string      `json:"source_asset_id,omitempty"`
	ReservationID   string      `json:"reservation_id,omitempty"`
	Attempt         int         `json:"attempt"`
	DurationSeconds float64     `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	CompletedAt     *time.Time  `json:"completed_at"`
}

// AllKinds returns the ordered list of known kinds.
func AllKinds() []Kind {
	cp := make([]Kind, len(allKinds))
	copy(cp, allKinds)
	return cp
}

// AllTiers returns the ordered list of known tiers.
func AllTiers() []Tier {
	cp := make([]Tier, len(allTiers))
	copy(cp, allTiers)
	return cp
}

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, k := range allKinds {
		if k == normalized {
			return k, true
		}
	}
	return "", false
}

// ParseTier converts a string into a known Tier.
func ParseTier(value string) (Tier, bool) {
	normalized := Tier(strings.ToLower(strings.TrimSpace(value)))
	for _, t := range allTiers {
		if t == normalized {
			return t, true
		}
	}
	return "", false
}

// ParseRole converts a string into a Role. Unknown values are kept verbatim
// because roles never gate correctness.
func ParseRole(value string) Role {
	return Role(strings.ToLower(strings.TrimSpace(value)))
}

// IsActive reports whether the status reflects an outstanding attempt.
func (s Status) IsActive() bool {
	_, ok := activeStatuses[s]
	return ok
}

// IsTerminal reports whether the status ends an attempt.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusError
}

// CanTransition reports whether from -> to is a legal edge within an attempt.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsActive reports whether the job has an attempt in flight.
func (j Job) IsActive() bool {
	return j.Status.IsActive()
}

// Clone returns a deep copy of the job.
func (j Job) Clone() Job {
	cp := j
	if j.References != nil {
		cp.References = make([]Reference, len(j.References))
		copy(cp.References, j.References)
	}
	if j.CompletedAt != nil {
		ts := *j.CompletedAt
		cp.CompletedAt = &ts
	}
	return cp
}

func (j *Job) transition(to Status) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: job %s %s -> %s", ErrIllegalTransition, j.ID, j.Status, to)
	}
	j.Status = to
	return nil
}

// Start moves a queued job into processing.
func (j *Job) Start() error {
	return j.transition(StatusProcessing)
}

// Complete records a produced artifact and marks the attempt done.
func (j *Job) Complete(resultRef string, durationSeconds float64, at time.Time) error {
	if strings.TrimSpace(resultRef) == "" {
		return fmt.Errorf("complete job %s: result handle is required", j.ID)
	}
	if err := j.transition(StatusDone); err != nil {
		return err
	}
	j.ResultRef = resultRef
	j.DurationSeconds = durationSeconds
	j.ErrorKind = ErrorKindNone
	j.CompletedAt = &at
	return nil
}

// Fail marks the attempt as failed with the given classification.
func (j *Job) Fail(kind ErrorKind, at time.Time) error {
	if kind == ErrorKindNone {
		kind = ErrorKindTransport
	}
	if err := j.transition(StatusError); err != nil {
		return err
	}
	j.ErrorKind = kind
	j.ResultRef = ""
	j.CompletedAt = &at
	return nil
}

// Reopen starts a new attempt on a failed job. Done jobs never reopen.
func (j *Job) Reopen(reservationID string, cost int64) error {
	if j.Status != StatusError {
		return fmt.Errorf("%w: job %s cannot reopen from %s", ErrIllegalTransition, j.ID, j.Status)
	}
	j.Status = StatusQueued
	j.ErrorKind = ErrorKindNone
	j.ResultRef = ""
	j.CompletedAt = nil
	j.ReservationID = reservationID
	j.CostCredits = cost
	j.Attempt++
	return nil
}

// Message renders the user-facing explanation for an error kind.
func (k ErrorKind) Message() string {
	switch k {
	case ErrorKindNone:
		return ""
	case ErrorKindCredential:
		return "a paid credential is required; select one and generate again"
	case ErrorKindTransport:
		return "generation failed; credits were refunded"
	default:
		return "generation failed"
	}
}
