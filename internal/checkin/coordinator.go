// Package checkin records anonymous attendance, one check-in per
// participant and meeting.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/models"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/network"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/reader"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/submitter"
)

// Coordinator runs the check-in workflow. It never patches meeting records;
// callers reload the registry after a confirmed check-in.
type Coordinator struct {
	gate      *network.Gate
	reader    *reader.Reader
	submitter *submitter.Submitter
}

// New creates a Coordinator
func New(gate *network.Gate, rd *reader.Reader, sub *submitter.Submitter) *Coordinator {
	return &Coordinator{
		gate:      gate,
		reader:    rd,
		submitter: sub,
	}
}

// ParseParticipantID parses a positive integer participant identifier.
func ParseParticipantID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: participant id is required", ledger.ErrInvalidArgument)
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: participant id must be a positive integer, got %q", ledger.ErrInvalidArgument, s)
	}
	return id, nil
}

// QueryStatus reports whether participantID has checked in to meetingID.
// Any failure is ledger.ErrStatusUnavailable so callers show "unknown"
// rather than a false negative.
func (c *Coordinator) QueryStatus(ctx context.Context, meetingID, participantID uint64) (models.ParticipantInfo, error) {
	info := models.ParticipantInfo{MeetingID: meetingID, ParticipantID: participantID}
	if err := validateIDs(meetingID, participantID); err != nil {
		return info, err
	}

	h, err := c.reader.Handle(ctx)
	if err != nil {
		return info, fmt.Errorf("%w: %w", ledger.ErrStatusUnavailable, err)
	}
	defer h.Close()

	checked, err := h.IsParticipant(ctx, meetingID, participantID)
	if err != nil {
		return info, fmt.Errorf("%w: %w", ledger.ErrStatusUnavailable, err)
	}

	info.HasCheckedIn = checked
	return info, nil
}

// CheckIn records participantID's attendance at meetingID and returns the
// confirmed receipt. A repeated check-in is ledger.ErrAlreadyCheckedIn; ledger
// refusals surface as ErrMeetingFull, ErrMeetingEnded or ErrMeetingNotFound.
func (c *Coordinator) CheckIn(ctx context.Context, meetingID, participantID uint64) (*models.Receipt, error) {
	if err := validateIDs(meetingID, participantID); err != nil {
		return nil, err
	}
	if !c.gate.HasWallet() {
		return nil, ledger.ErrNoSigningCapability
	}

	info, err := c.QueryStatus(ctx, meetingID, participantID)
	switch {
	case err != nil:
		// the ledger still enforces idempotency on submission
		slog.Warn("Check-in status unknown, submitting anyway",
			"meeting_id", meetingID,
			"error", err,
		)
	case info.HasCheckedIn:
		return nil, &ledger.RejectionError{Kind: ledger.ErrAlreadyCheckedIn}
	}

	data, err := c.reader.Contract().PackCheckIn(meetingID, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode check-in: %w", err)
	}

	receipt, err := c.submitter.Submit(ctx, submitter.Operation{Name: ledger.OpCheckIn, Data: data})
	if err != nil {
		err = ledger.Classify(ledger.OpCheckIn, err)
		if ledger.IsRejection(err) {
			slog.Info("Check-in rejected by ledger", "meeting_id", meetingID, "reason", err)
		}
		return nil, err
	}

	slog.Info("Participant checked in",
		"meeting_id", meetingID,
		"tx_hash", receipt.TxHash.Hex(),
	)
	return receipt, nil
}

func validateIDs(meetingID, participantID uint64) error {
	if meetingID == 0 {
		return fmt.Errorf("%w: meeting id must be positive", ledger.ErrInvalidArgument)
	}
	if participantID == 0 {
		return fmt.Errorf("%w: participant id must be positive", ledger.ErrInvalidArgument)
	}
	return nil
}

// IsRejection reports whether err is a ledger refusal of a check-in rather
// than a connectivity fault.
func IsRejection(err error) bool {
	return errors.Is(err, ledger.ErrAlreadyCheckedIn) ||
		errors.Is(err, ledger.ErrMeetingFull) ||
		errors.Is(err, ledger.ErrMeetingEnded) ||
		errors.Is(err, ledger.ErrMeetingNotFound)
}
