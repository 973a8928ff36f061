package models

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the one-way meeting state: ACTIVE -> ENDED.
type Status uint8

const (
	StatusActive Status = 0
	StatusEnded  Status = 1
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusEnded:
		return "ended"
	}
	return "unknown"
}

// MarshalText renders the status as its name in JSON
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "active":
		*s = StatusActive
	case "ended":
		*s = StatusEnded
	default:
		return fmt.Errorf("unknown meeting status %q", text)
	}
	return nil
}

// PlaceholderTitle marks a record whose details could not be loaded.
const PlaceholderTitle = "Invalid Meeting"

// Meeting is one reconstructed ledger record.
type Meeting struct {
	ID               uint64         `json:"id"`
	Creator          common.Address `json:"creator"`
	Title            string         `json:"title"`
	StartTime        int64          `json:"start_time"`
	EndTime          int64          `json:"end_time"` // 0 while active
	MaxParticipants  uint64         `json:"max_participants"`
	ParticipantCount uint64         `json:"participant_count"`
	Status           Status         `json:"status"`

	// DurationSeconds is derived at load time and never stored on the ledger.
	DurationSeconds int64 `json:"duration_seconds"`

	// Placeholder is set when the record could not be read and was
	// substituted to keep the id sequence gap-free.
	Placeholder bool `json:"placeholder,omitempty"`
}

// Active reports whether the meeting is open for check-in
func (m Meeting) Active() bool {
	return m.Status == StatusActive
}

// Duration returns the derived duration
func (m Meeting) Duration() time.Duration {
	return time.Duration(m.DurationSeconds) * time.Second
}

// Full reports whether the meeting reached its capacity
func (m Meeting) Full() bool {
	return m.ParticipantCount >= m.MaxParticipants
}

// DeriveDuration computes endTime-startTime in seconds for ended meetings
// and now-startTime for active ones.
func DeriveDuration(status Status, startTime, endTime int64, now time.Time) int64 {
	if startTime <= 0 {
		return 0
	}
	end := now.Unix()
	if status == StatusEnded || endTime > 0 {
		end = endTime
	}
	if end < startTime {
		return 0
	}
	return end - startTime
}

// PlaceholderMeeting is substituted for a record that failed to load.
func PlaceholderMeeting(id uint64) Meeting {
	return Meeting{
		ID:          id,
		Creator:     common.Address{},
		Title:       PlaceholderTitle,
		Status:      StatusEnded,
		Placeholder: true,
	}
}

// ParticipantInfo is the check-in state of one participant in one meeting.
type ParticipantInfo struct {
	MeetingID     uint64     `json:"meeting_id"`
	ParticipantID uint64     `json:"participant_id"`
	HasCheckedIn  bool       `json:"has_checked_in"`
	CheckInTime   *time.Time `json:"check_in_time,omitempty"` // nil when the ledger does not expose it
}
