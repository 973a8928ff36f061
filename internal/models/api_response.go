package models

// MeetingsResponse represents the meeting list with dashboard aggregates
type MeetingsResponse struct {
	Meetings      []Meeting `json:"meetings"`
	ActiveIDs     []uint64  `json:"active_ids"`
	Stats         Stats     `json:"stats"`
	Available     bool      `json:"available"`
	ActiveDerived bool      `json:"active_derived,omitempty"`
	Filter        string    `json:"filter"`
}

// CreateMeetingRequest is the body of POST /meetings
type CreateMeetingRequest struct {
	Title           string `json:"title"`
	MaxParticipants uint64 `json:"max_participants"`
}

// CreateMeetingResponse carries the id assigned by the ledger
type CreateMeetingResponse struct {
	ID      uint64  `json:"id"`
	TxHash  string  `json:"tx_hash"`
	Receipt Receipt `json:"receipt"`
}

// CheckInRequest is the body of POST /meetings/{id}/checkin. The participant
// id is a decimal string so large ids survive JSON number precision.
type CheckInRequest struct {
	ParticipantID string `json:"participant_id"`
}

// EndMeetingRequest is the body of POST /meetings/{id}/end
type EndMeetingRequest struct {
	Confirm bool `json:"confirm"`
}

// SubmissionListResponse represents a page of journaled submissions
type SubmissionListResponse struct {
	Submissions []Submission `json:"submissions"`
	Limit       int          `json:"limit"`
	Offset      int          `json:"offset"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
