package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/baechuer/seatwatch/internal/domain"
	"github.com/rs/zerolog"
)

// AddInput is what a command adapter collects to create a request.
type AddInput struct {
	Kind             domain.Kind `json:"type" validate:"required,oneof=class course"`
	OwnerUserID      string      `json:"user_id" validate:"required,max=64"`
	OwnerDisplayName string      `json:"username" validate:"max=100"`
	ChannelID        string      `json:"channel_id" validate:"max=64"`
	Term             string      `json:"term" validate:"required,term_code"`
	Subject          string      `json:"class_subject" validate:"required_if=Kind class,excluded_if=Kind course,omitempty,alpha,max=6"`
	CatalogNumber    string      `json:"class_num" validate:"required_if=Kind class,excluded_if=Kind course,omitempty,max=8,catalog_nbr"`
	CourseID         string      `json:"course_id" validate:"required_if=Kind course,excluded_if=Kind class,omitempty,numeric,max=10"`
}

func (in *AddInput) normalize(defaultTerm string) {
	in.Kind = domain.Kind(strings.ToLower(strings.TrimSpace(string(in.Kind))))
	in.OwnerUserID = strings.TrimSpace(in.OwnerUserID)
	in.OwnerDisplayName = strings.TrimSpace(in.OwnerDisplayName)
	in.ChannelID = strings.TrimSpace(in.ChannelID)
	in.Term = strings.TrimSpace(in.Term)
	if in.Term == "" {
		in.Term = defaultTerm
	}
	in.Subject = strings.ToUpper(strings.TrimSpace(in.Subject))
	in.CatalogNumber = strings.TrimSpace(in.CatalogNumber)
	in.CourseID = strings.TrimSpace(in.CourseID)
}

type AddResult struct {
	Request domain.TrackingRequest
	// Warning is set when the upstream lookup says the class or course does not exist.
	// The request is still created.
	Warning string
}

type RegistryConfig struct {
	MaxRequestsPerUser int
	DefaultTerm        string
	LookupTimeout      time.Duration
}

// Registry implements the user-facing request operations on top of State.
type Registry struct {
	state    *State
	fetchers Fetchers
	cfg      RegistryConfig
	now      func() time.Time
	lg       zerolog.Logger
}

func NewRegistry(state *State, fetchers Fetchers, cfg RegistryConfig, lg zerolog.Logger) *Registry {
	if cfg.MaxRequestsPerUser <= 0 {
		cfg.MaxRequestsPerUser = 10
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 30 * time.Second
	}
	return &Registry{
		state:    state,
		fetchers: fetchers,
		cfg:      cfg,
		now:      time.Now,
		lg:       lg.With().Str("component", "registry").Logger(),
	}
}

func (r *Registry) DefaultTerm() string { return r.cfg.DefaultTerm }

func (r *Registry) MaxRequestsPerUser() int { return r.cfg.MaxRequestsPerUser }

// Add validates, dedups, enforces the per-owner cap, and persists a new request.
func (r *Registry) Add(ctx context.Context, in AddInput) (AddResult, error) {
	in.normalize(r.cfg.DefaultTerm)
	if err := validateInput(in); err != nil {
		return AddResult{}, err
	}

	var req domain.TrackingRequest
	now := r.now()
	switch in.Kind {
	case domain.KindByCatalog:
		req = domain.NewCatalogRequest(in.OwnerUserID, in.OwnerDisplayName, in.ChannelID, in.Subject, in.CatalogNumber, in.Term, now)
	default:
		req = domain.NewCourseRequest(in.OwnerUserID, in.OwnerDisplayName, in.ChannelID, in.CourseID, in.Term, now)
	}

	// Cheap pre-check so a rejected request costs no upstream call. Rechecked under lock.
	if err := r.admit(r.state.Snapshot(), req); err != nil {
		return AddResult{}, err
	}

	res := AddResult{}
	if details, warn := r.lookup(ctx, req); warn != "" {
		res.Warning = warn
	} else {
		details.Apply(&req)
	}

	err := r.state.Update(func(set *domain.RequestSet) error {
		if err := r.admit(*set, req); err != nil {
			return err
		}
		set.Add(req)
		return nil
	})
	if err != nil {
		return AddResult{}, err
	}

	r.lg.Info().
		Str("request_id", req.ID).
		Str("user_id", req.OwnerUserID).
		Str("target", req.Label()).
		Str("term", req.Term).
		Msg("tracking request added")

	res.Request = req.Clone()
	return res, nil
}

func (r *Registry) admit(set domain.RequestSet, req domain.TrackingRequest) error {
	if set.HasDuplicate(req) {
		return domain.ErrDuplicate(fmt.Sprintf("you are already tracking %s for %s", req.Label(), domain.TermName(req.Term)))
	}
	if set.CountOwner(req.OwnerUserID) >= r.cfg.MaxRequestsPerUser {
		return domain.ErrLimitExceeded(r.cfg.MaxRequestsPerUser)
	}
	return nil
}

// lookup fetches display metadata. Only an explicit upstream not-found becomes a warning;
// any other failure is ignored and the request is created bare.
func (r *Registry) lookup(ctx context.Context, req domain.TrackingRequest) (domain.Details, string) {
	d, ok := r.fetchers[req.Kind].(Describer)
	if !ok {
		return domain.Details{}, ""
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.LookupTimeout)
	defer cancel()

	details, err := d.Describe(ctx, req)
	if err != nil {
		if domain.HasCode(err, domain.CodeUpstreamNotFound) {
			var appErr *domain.AppError
			errors.As(err, &appErr)
			return domain.Details{}, appErr.Message
		}
		r.lg.Debug().Err(err).Str("target", req.Label()).Msg("upstream lookup failed, creating without details")
		return domain.Details{}, ""
	}
	return details, ""
}

// Remove deletes the owner's index-th request (0-based, in List order).
func (r *Registry) Remove(ctx context.Context, owner string, index int) (domain.TrackingRequest, error) {
	var removed domain.TrackingRequest
	err := r.state.Update(func(set *domain.RequestSet) error {
		mine := set.ForOwner(owner)
		if index < 0 || index >= len(mine) {
			return domain.ErrNotFound(fmt.Sprintf("no request at index %d (you have %d)", index, len(mine)))
		}
		removed = mine[index]
		set.RemoveID(removed.ID)
		return nil
	})
	if err != nil {
		return domain.TrackingRequest{}, err
	}
	r.lg.Info().Str("request_id", removed.ID).Str("user_id", owner).Msg("tracking request removed")
	return removed, nil
}

// RemoveID deletes a request by id regardless of owner (admin surface).
func (r *Registry) RemoveID(ctx context.Context, id string) error {
	err := r.state.Update(func(set *domain.RequestSet) error {
		if !set.RemoveID(id) {
			return domain.ErrNotFound(fmt.Sprintf("request %s not found", id))
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.lg.Info().Str("request_id", id).Msg("tracking request removed by id")
	return nil
}

func (r *Registry) Get(ctx context.Context, id string) (domain.TrackingRequest, error) {
	set := r.state.Snapshot()
	if req := set.Get(id); req != nil {
		return *req, nil
	}
	return domain.TrackingRequest{}, domain.ErrNotFound(fmt.Sprintf("request %s not found", id))
}

func (r *Registry) List(ctx context.Context, owner string) []domain.TrackingRequest {
	return r.state.Snapshot().ForOwner(owner)
}

func (r *Registry) ListAll(ctx context.Context) []domain.TrackingRequest {
	return r.state.Snapshot().Requests
}

// Clear removes every request of owner and returns how many were removed.
func (r *Registry) Clear(ctx context.Context, owner string) (int, error) {
	n := 0
	err := r.state.Update(func(set *domain.RequestSet) error {
		n = set.RemoveOwner(owner)
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.lg.Info().Str("user_id", owner).Int("removed", n).Msg("tracking requests cleared")
	return n, nil
}

// ClearAll empties the whole set.
func (r *Registry) ClearAll(ctx context.Context) (int, error) {
	n := 0
	err := r.state.Update(func(set *domain.RequestSet) error {
		n = set.Len()
		set.Requests = []domain.TrackingRequest{}
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.lg.Warn().Int("removed", n).Msg("all tracking requests cleared")
	return n, nil
}

type Stats struct {
	TotalRequests int
	Users         int
	ByKind        map[domain.Kind]int
}

func (r *Registry) Stats(ctx context.Context) Stats {
	set := r.state.Snapshot()
	st := Stats{TotalRequests: set.Len(), Users: len(set.Owners()), ByKind: map[domain.Kind]int{}}
	for _, req := range set.Requests {
		st.ByKind[req.Kind]++
	}
	return st
}
