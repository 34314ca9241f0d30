package domain

import "fmt"

type FetchStatus int

const (
	FetchAvailable FetchStatus = iota
	FetchUnavailable
	FetchNotFound
	FetchTransient
)

func (s FetchStatus) String() string {
	switch s {
	case FetchAvailable:
		return "available"
	case FetchUnavailable:
		return "unavailable"
	case FetchNotFound:
		return "not_found"
	case FetchTransient:
		return "transient_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// FetchResult is the outcome of one upstream check. Failures are values, never errors.
type FetchResult struct {
	Status       FetchStatus
	SeatsOpen    int
	SectionLabel string
	Title        string
	Detail       string
}

func Available(seats int, section, title string) FetchResult {
	if seats <= 0 {
		return Unavailable(title)
	}
	return FetchResult{Status: FetchAvailable, SeatsOpen: seats, SectionLabel: section, Title: title}
}

func Unavailable(title string) FetchResult {
	return FetchResult{Status: FetchUnavailable, Title: title}
}

func NotFound(detail string) FetchResult {
	return FetchResult{Status: FetchNotFound, Detail: detail}
}

func Transient(format string, args ...any) FetchResult {
	return FetchResult{Status: FetchTransient, Detail: fmt.Sprintf(format, args...)}
}

func (r FetchResult) Open() bool { return r.Status == FetchAvailable && r.SeatsOpen > 0 }

// Details is display metadata captured when a request is created.
type Details struct {
	Title      string
	Instructor string
	Days       string
	Time       string
	Location   string
}

// Apply copies non-empty fields onto r.
func (d Details) Apply(r *TrackingRequest) {
	if d.Title != "" {
		r.Title = d.Title
	}
	if d.Instructor != "" {
		r.Instructor = d.Instructor
	}
	if d.Days != "" {
		r.Days = d.Days
	}
	if d.Time != "" {
		r.Time = d.Time
	}
	if d.Location != "" {
		r.Location = d.Location
	}
}
