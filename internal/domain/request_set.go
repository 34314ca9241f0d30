package domain

import "encoding/json"

// RequestSet is the full collection and the unit of persistence. Order is insertion
// order; per-owner indexes are positions within ForOwner.
type RequestSet struct {
	Requests []TrackingRequest
	Extra    map[string]json.RawMessage
}

func (s RequestSet) Clone() RequestSet {
	out := RequestSet{Extra: cloneRaw(s.Extra)}
	if s.Requests != nil {
		out.Requests = make([]TrackingRequest, len(s.Requests))
		for i, r := range s.Requests {
			out.Requests[i] = r.Clone()
		}
	}
	return out
}

func (s RequestSet) Len() int { return len(s.Requests) }

func (s RequestSet) ForOwner(owner string) []TrackingRequest {
	var out []TrackingRequest
	for _, r := range s.Requests {
		if r.OwnerUserID == owner {
			out = append(out, r.Clone())
		}
	}
	return out
}

func (s RequestSet) CountOwner(owner string) int {
	n := 0
	for _, r := range s.Requests {
		if r.OwnerUserID == owner {
			n++
		}
	}
	return n
}

func (s RequestSet) Owners() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range s.Requests {
		if !seen[r.OwnerUserID] {
			seen[r.OwnerUserID] = true
			out = append(out, r.OwnerUserID)
		}
	}
	return out
}

func (s RequestSet) HasDuplicate(r TrackingRequest) bool {
	key := r.DedupKey()
	for _, existing := range s.Requests {
		if existing.DedupKey() == key {
			return true
		}
	}
	return false
}

func (s RequestSet) IndexOf(id string) int {
	for i, r := range s.Requests {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Get returns a pointer into the set for in-place mutation.
func (s *RequestSet) Get(id string) *TrackingRequest {
	if i := s.IndexOf(id); i >= 0 {
		return &s.Requests[i]
	}
	return nil
}

func (s *RequestSet) Add(r TrackingRequest) {
	s.Requests = append(s.Requests, r)
}

func (s *RequestSet) RemoveID(id string) bool {
	i := s.IndexOf(id)
	if i < 0 {
		return false
	}
	s.Requests = append(s.Requests[:i], s.Requests[i+1:]...)
	return true
}

// RemoveOwner drops every request of owner and returns how many went.
func (s *RequestSet) RemoveOwner(owner string) int {
	kept := s.Requests[:0]
	removed := 0
	for _, r := range s.Requests {
		if r.OwnerUserID == owner {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.Requests = kept
	return removed
}
