package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/baechuer/seatwatch/internal/domain"
)

// requestsKey holds the request array in the on-disk envelope {"requests": [...]}.
const requestsKey = "requests"

// record mirrors one persisted request. Field names match what the bot has always written.
type record struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	UserID       flexID  `json:"user_id"`
	Username     string  `json:"username"`
	ChannelID    flexID  `json:"channel_id"`
	Term         string  `json:"term"`
	ClassSubject string  `json:"class_subject,omitempty"`
	ClassNum     string  `json:"class_num,omitempty"`
	CourseID     string  `json:"course_id,omitempty"`
	ClassTitle   string  `json:"class_title,omitempty"`
	CourseTitle  string  `json:"course_title,omitempty"`
	Instructor   string  `json:"instructor,omitempty"`
	Days         string  `json:"days,omitempty"`
	Time         string  `json:"time,omitempty"`
	Location     string  `json:"location,omitempty"`
	AddedAt      string  `json:"added_at"`
	LastChecked  *string `json:"last_checked"`
	LastNotified *string `json:"last_notified"`
	LastSeats    *int    `json:"last_known_seats"`
}

var knownKeys = map[string]bool{
	"id": true, "type": true, "user_id": true, "username": true, "channel_id": true,
	"term": true, "class_subject": true, "class_num": true, "course_id": true,
	"class_title": true, "course_title": true, "instructor": true, "days": true,
	"time": true, "location": true, "added_at": true, "last_checked": true,
	"last_notified": true, "last_known_seats": true,
}

// flexID accepts chat ids written either as JSON numbers or strings.
// Snowflakes exceed float64 precision, so numbers are read verbatim.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// MarshalJSON keeps all-digit ids numeric, as the original file format had them.
func (f flexID) MarshalJSON() ([]byte, error) {
	s := string(f)
	if s != "" && isDigits(s) {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

func isDigits(s string) bool {
	if len(s) > 1 && s[0] == '0' {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// parseTime accepts RFC 3339 and the naive "isoformat()+Z" form.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05.999999999", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func toRecord(r domain.TrackingRequest) record {
	rec := record{
		ID:           r.ID,
		Type:         string(r.Kind),
		UserID:       flexID(r.OwnerUserID),
		Username:     r.OwnerDisplayName,
		ChannelID:    flexID(r.NotifyChannelID),
		Term:         r.Term,
		Instructor:   r.Instructor,
		Days:         r.Days,
		Time:         r.Time,
		Location:     r.Location,
		AddedAt:      formatTime(r.CreatedAt),
		LastChecked:  formatTimePtr(r.LastCheckedAt),
		LastNotified: formatTimePtr(r.LastNotifiedAt),
		LastSeats:    r.LastKnownSeatsOpen,
	}
	switch r.Kind {
	case domain.KindByCatalog:
		rec.ClassSubject = r.Subject
		rec.ClassNum = r.CatalogNumber
		rec.ClassTitle = r.Title
	case domain.KindByCourseID:
		rec.CourseID = r.CourseID
		rec.CourseTitle = r.Title
	}
	return rec
}

func fromRecord(rec record) (domain.TrackingRequest, error) {
	r := domain.TrackingRequest{
		ID:                 rec.ID,
		Kind:               domain.Kind(rec.Type),
		OwnerUserID:        string(rec.UserID),
		OwnerDisplayName:   rec.Username,
		NotifyChannelID:    string(rec.ChannelID),
		Term:               rec.Term,
		Subject:            rec.ClassSubject,
		CatalogNumber:      rec.ClassNum,
		CourseID:           rec.CourseID,
		Instructor:         rec.Instructor,
		Days:               rec.Days,
		Time:               rec.Time,
		Location:           rec.Location,
		LastKnownSeatsOpen: rec.LastSeats,
	}
	r.Title = rec.ClassTitle
	if r.Kind == domain.KindByCourseID {
		r.Title = rec.CourseTitle
	}

	var err error
	if rec.AddedAt != "" {
		if r.CreatedAt, err = parseTime(rec.AddedAt); err != nil {
			return r, fmt.Errorf("request %s: added_at: %w", rec.ID, err)
		}
	}
	if r.LastCheckedAt, err = parseTimePtr(rec.LastChecked); err != nil {
		return r, fmt.Errorf("request %s: last_checked: %w", rec.ID, err)
	}
	if r.LastNotifiedAt, err = parseTimePtr(rec.LastNotified); err != nil {
		return r, fmt.Errorf("request %s: last_notified: %w", rec.ID, err)
	}
	if err := r.Validate(); err != nil {
		return r, fmt.Errorf("request %s: %w", rec.ID, err)
	}
	return r, nil
}
