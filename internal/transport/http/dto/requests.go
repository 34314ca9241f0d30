package dto

import (
	"time"

	"github.com/baechuer/seatwatch/internal/application/tracking"
	"github.com/baechuer/seatwatch/internal/domain"
)

// RequestResp is the API view of a tracking request. Keys follow the state file.
type RequestResp struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	Channel  string `json:"channel_id,omitempty"`
	Term     string `json:"term"`
	TermName string `json:"term_name"`
	Label    string `json:"label"`

	ClassSubject string `json:"class_subject,omitempty"`
	ClassNum     string `json:"class_num,omitempty"`
	CourseID     string `json:"course_id,omitempty"`

	Title      string `json:"title,omitempty"`
	Instructor string `json:"instructor,omitempty"`
	Days       string `json:"days,omitempty"`
	Time       string `json:"time,omitempty"`
	Location   string `json:"location,omitempty"`

	AddedAt        time.Time  `json:"added_at"`
	LastChecked    *time.Time `json:"last_checked"`
	LastNotified   *time.Time `json:"last_notified"`
	LastKnownSeats *int       `json:"last_known_seats"`
}

type CreateResp struct {
	Request RequestResp `json:"request"`
	Warning string      `json:"warning,omitempty"`
}

type ListResp struct {
	Items []RequestResp `json:"items"`
	Total int           `json:"total"`
}

type ClearResp struct {
	Removed int `json:"removed"`
}

type StatsResp struct {
	TotalRequests int            `json:"total_requests"`
	Users         int            `json:"users"`
	ByKind        map[string]int `json:"by_kind"`
}

type SweepResp struct {
	ID         string    `json:"id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Visited    int       `json:"visited"`
	Skipped    int       `json:"skipped"`
	Notified   int       `json:"notified"`
	Transient  int       `json:"transient"`
	Incomplete bool      `json:"incomplete"`
}

type StatusResp struct {
	Stats     StatsResp         `json:"stats"`
	LastSweep *SweepResp        `json:"last_sweep,omitempty"`
	Breakers  map[string]string `json:"breakers,omitempty"`
}

func ToRequestResp(r domain.TrackingRequest) RequestResp {
	return RequestResp{
		ID:             r.ID,
		Type:           string(r.Kind),
		UserID:         r.OwnerUserID,
		Username:       r.OwnerDisplayName,
		Channel:        r.NotifyChannelID,
		Term:           r.Term,
		TermName:       domain.TermName(r.Term),
		Label:          r.Label(),
		ClassSubject:   r.Subject,
		ClassNum:       r.CatalogNumber,
		CourseID:       r.CourseID,
		Title:          r.Title,
		Instructor:     r.Instructor,
		Days:           r.Days,
		Time:           r.Time,
		Location:       r.Location,
		AddedAt:        r.CreatedAt,
		LastChecked:    r.LastCheckedAt,
		LastNotified:   r.LastNotifiedAt,
		LastKnownSeats: r.LastKnownSeatsOpen,
	}
}

func ToListResp(items []domain.TrackingRequest) ListResp {
	out := make([]RequestResp, 0, len(items))
	for _, it := range items {
		out = append(out, ToRequestResp(it))
	}
	return ListResp{Items: out, Total: len(out)}
}

func ToStatsResp(s tracking.Stats) StatsResp {
	byKind := make(map[string]int, len(s.ByKind))
	for k, n := range s.ByKind {
		byKind[string(k)] = n
	}
	return StatsResp{TotalRequests: s.TotalRequests, Users: s.Users, ByKind: byKind}
}

// ToSweepResp returns nil until the first sweep has finished.
func ToSweepResp(r tracking.SweepReport) *SweepResp {
	if r.ID == "" {
		return nil
	}
	return &SweepResp{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
		Visited:    r.Visited,
		Skipped:    r.Skipped,
		Notified:   r.Notified,
		Transient:  r.Transient,
		Incomplete: r.Incomplete,
	}
}
