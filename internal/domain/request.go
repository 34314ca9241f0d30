package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind selects which upstream key space a request lives in.
type Kind string

const (
	KindByCatalog  Kind = "class"
	KindByCourseID Kind = "course"
)

func (k Kind) Valid() bool {
	return k == KindByCatalog || k == KindByCourseID
}

// TrackingRequest is one user's watch on a class or course.
type TrackingRequest struct {
	ID               string
	Kind             Kind
	OwnerUserID      string
	OwnerDisplayName string
	NotifyChannelID  string
	Term             string

	// ByCatalog keys
	Subject       string
	CatalogNumber string

	// ByCourseID keys
	CourseID string

	// Display metadata captured at creation, optional.
	Title      string
	Instructor string
	Days       string
	Time       string
	Location   string

	CreatedAt          time.Time
	LastCheckedAt      *time.Time
	LastNotifiedAt     *time.Time
	LastKnownSeatsOpen *int

	// Extra carries fields this version does not know about so they survive a save.
	Extra map[string]json.RawMessage
}

// NewCatalogRequest builds a ByCatalog request with a fresh id.
func NewCatalogRequest(owner, display, channel, subject, catalogNumber, term string, now time.Time) TrackingRequest {
	r := TrackingRequest{
		ID:               uuid.NewString(),
		Kind:             KindByCatalog,
		OwnerUserID:      owner,
		OwnerDisplayName: display,
		NotifyChannelID:  channel,
		Term:             term,
		Subject:          subject,
		CatalogNumber:    catalogNumber,
		CreatedAt:        now.UTC(),
	}
	r.Normalize()
	return r
}

// NewCourseRequest builds a ByCourseID request with a fresh id.
func NewCourseRequest(owner, display, channel, courseID, term string, now time.Time) TrackingRequest {
	r := TrackingRequest{
		ID:               uuid.NewString(),
		Kind:             KindByCourseID,
		OwnerUserID:      owner,
		OwnerDisplayName: display,
		NotifyChannelID:  channel,
		Term:             term,
		CourseID:         courseID,
		CreatedAt:        now.UTC(),
	}
	r.Normalize()
	return r
}

func (r *TrackingRequest) Normalize() {
	r.OwnerUserID = strings.TrimSpace(r.OwnerUserID)
	r.NotifyChannelID = strings.TrimSpace(r.NotifyChannelID)
	r.Term = strings.TrimSpace(r.Term)
	r.Subject = strings.ToUpper(strings.TrimSpace(r.Subject))
	r.CatalogNumber = strings.TrimSpace(r.CatalogNumber)
	r.CourseID = strings.TrimSpace(r.CourseID)
}

// Validate checks the structural invariants: a known kind with exactly its own key-set
// and a 4-digit term. The season digit is checked when a request is added, not here,
// so documents written with other term codes still load.
func (r TrackingRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrValidation("id is required")
	}
	if strings.TrimSpace(r.OwnerUserID) == "" {
		return ErrValidation("user_id is required")
	}
	if err := ValidateTermFormat(r.Term); err != nil {
		return err
	}
	switch r.Kind {
	case KindByCatalog:
		if r.Subject == "" || r.CatalogNumber == "" {
			return ErrValidation("class requests need class_subject and class_num")
		}
		if r.CourseID != "" {
			return ErrValidation("class requests must not carry course_id")
		}
	case KindByCourseID:
		if r.CourseID == "" {
			return ErrValidation("course requests need course_id")
		}
		if r.Subject != "" || r.CatalogNumber != "" {
			return ErrValidation("course requests must not carry class keys")
		}
	default:
		return ErrValidationMeta("unknown request type", map[string]string{"type": string(r.Kind)})
	}
	return nil
}

// DedupKey identifies (owner, kind, keys, term); two live requests never share one.
func (r TrackingRequest) DedupKey() string {
	switch r.Kind {
	case KindByCatalog:
		return fmt.Sprintf("%s|%s|%s|%s|%s", r.OwnerUserID, r.Kind, r.Subject, r.CatalogNumber, r.Term)
	default:
		return fmt.Sprintf("%s|%s|%s|%s", r.OwnerUserID, r.Kind, r.CourseID, r.Term)
	}
}

// Label is the short human name, e.g. "CSE 205" or "Course 12345".
func (r TrackingRequest) Label() string {
	if r.Kind == KindByCatalog {
		return r.Subject + " " + r.CatalogNumber
	}
	return "Course " + r.CourseID
}

// MarkChecked advances LastCheckedAt, never moving it backwards.
func (r *TrackingRequest) MarkChecked(now time.Time) {
	now = now.UTC()
	if r.LastCheckedAt != nil && now.Before(*r.LastCheckedAt) {
		return
	}
	r.LastCheckedAt = &now
}

func (r *TrackingRequest) MarkNotified(now time.Time) {
	now = now.UTC()
	r.LastNotifiedAt = &now
}

func (r *TrackingRequest) SetSeats(n int) {
	r.LastKnownSeatsOpen = &n
}

// SeatsOpen returns the last known count, 0 when unknown.
func (r TrackingRequest) SeatsOpen() int {
	if r.LastKnownSeatsOpen == nil {
		return 0
	}
	return *r.LastKnownSeatsOpen
}

func (r TrackingRequest) Clone() TrackingRequest {
	c := r
	c.LastCheckedAt = cloneTime(r.LastCheckedAt)
	c.LastNotifiedAt = cloneTime(r.LastNotifiedAt)
	if r.LastKnownSeatsOpen != nil {
		n := *r.LastKnownSeatsOpen
		c.LastKnownSeatsOpen = &n
	}
	c.Extra = cloneRaw(r.Extra)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneRaw(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
