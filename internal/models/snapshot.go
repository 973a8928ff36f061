package models

import (
	"slices"
	"strings"
	"time"
)

// Snapshot is the result of one registry load. The caller owns it; the
// registry never touches it again.
type Snapshot struct {
	Meetings  []Meeting `json:"meetings"`
	ActiveIDs []uint64  `json:"active_ids"`
	NextID    uint64    `json:"next_id"`

	// Available is false when no ledger contract could be reached.
	Available bool `json:"available"`

	// ActiveDerived is set when the ledger's active index could not be read
	// and ActiveIDs was derived from the records themselves.
	ActiveDerived bool `json:"active_derived,omitempty"`

	LoadedAt time.Time `json:"loaded_at"`
}

// Stats aggregates a snapshot for dashboards
type Stats struct {
	TotalMeetings       int     `json:"total_meetings"`
	TotalParticipants   uint64  `json:"total_participants"`
	ActiveMeetings      int     `json:"active_meetings"`
	AverageParticipants float64 `json:"average_participants"`
}

// StatusFilter selects meetings by state.
type StatusFilter string

const (
	FilterAll    StatusFilter = "all"
	FilterActive StatusFilter = "active"
	FilterEnded  StatusFilter = "ended"
)

// ParseStatusFilter accepts all, active, ended (or completed).
func ParseStatusFilter(s string) (StatusFilter, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FilterAll, true
	case "active":
		return FilterActive, true
	case "ended", "completed":
		return FilterEnded, true
	}
	return "", false
}

// Meeting returns a copy of the record with the given id
func (s *Snapshot) Meeting(id uint64) (Meeting, bool) {
	// ids are dense and ascending from 1
	if id == 0 || id > uint64(len(s.Meetings)) {
		return Meeting{}, false
	}
	m := s.Meetings[id-1]
	if m.ID != id {
		return Meeting{}, false
	}
	return m, true
}

// Filter returns the meetings matching f, in id order.
func (s *Snapshot) Filter(f StatusFilter) []Meeting {
	out := make([]Meeting, 0, len(s.Meetings))
	for _, m := range s.Meetings {
		switch f {
		case FilterActive:
			if m.Status != StatusActive {
				continue
			}
		case FilterEnded:
			if m.Status != StatusEnded {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// Popular returns up to n active meetings with the most participants.
func (s *Snapshot) Popular(n int) []Meeting {
	active := s.Filter(FilterActive)
	slices.SortStableFunc(active, func(a, b Meeting) int {
		switch {
		case a.ParticipantCount > b.ParticipantCount:
			return -1
		case a.ParticipantCount < b.ParticipantCount:
			return 1
		}
		return 0
	})
	if n >= 0 && len(active) > n {
		active = active[:n]
	}
	return active
}

// Stats computes the dashboard aggregates.
func (s *Snapshot) Stats() Stats {
	st := Stats{TotalMeetings: len(s.Meetings)}
	for _, m := range s.Meetings {
		st.TotalParticipants += m.ParticipantCount
		if m.Status == StatusActive {
			st.ActiveMeetings++
		}
	}
	if st.TotalMeetings > 0 {
		st.AverageParticipants = float64(st.TotalParticipants) / float64(st.TotalMeetings)
	}
	return st
}
