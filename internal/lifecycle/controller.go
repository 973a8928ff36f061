// Package lifecycle creates and ends meetings.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/models"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/network"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/reader"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/submitter"
)

// EndPrompt is shown before a meeting is ended.
const EndPrompt = "Are you sure you want to end this meeting? This will finalize attendance records."

// how far back to look for a created meeting when the receipt has no event
const maxCreatedScan = 64

// Confirmer asks the caller to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Confirmed is a Confirmer for callers that already obtained consent.
var Confirmed Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) {
	return true, nil
})

// Controller orchestrates meeting creation and termination. Both operations
// return only after ledger confirmation.
type Controller struct {
	gate      *network.Gate
	reader    *reader.Reader
	submitter *submitter.Submitter
}

// New creates a Controller
func New(gate *network.Gate, rd *reader.Reader, sub *submitter.Submitter) *Controller {
	return &Controller{
		gate:      gate,
		reader:    rd,
		submitter: sub,
	}
}

// Create submits a new meeting and returns its ledger-assigned id.
func (c *Controller) Create(ctx context.Context, title string, maxParticipants uint64) (uint64, *models.Receipt, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, nil, fmt.Errorf("%w: title is required", ledger.ErrInvalidArgument)
	}
	if maxParticipants == 0 {
		return 0, nil, fmt.Errorf("%w: max participants must be positive", ledger.ErrInvalidArgument)
	}
	if !c.gate.HasWallet() {
		return 0, nil, ledger.ErrNoSigningCapability
	}

	contract := c.reader.Contract()
	data, err := contract.PackCreateMeeting(title, maxParticipants)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode meeting: %w", err)
	}

	receipt, err := c.submitter.Submit(ctx, submitter.Operation{Name: ledger.OpCreateMeeting, Data: data})
	if err != nil {
		return 0, nil, ledger.Classify(ledger.OpCreateMeeting, err)
	}

	id, ok := contract.MeetingCreatedID(receipt.Logs)
	if !ok {
		slog.Debug("No MeetingCreated event in receipt, resolving id from state",
			"tx_hash", receipt.TxHash.Hex(),
		)
		id, err = c.resolveCreatedID(ctx, receipt, title)
		if err != nil {
			return 0, receipt, err
		}
	}

	slog.Info("Meeting created",
		"meeting_id", id,
		"max_participants", maxParticipants,
		"tx_hash", receipt.TxHash.Hex(),
	)
	return id, receipt, nil
}

// resolveCreatedID finds the newest meeting at the inclusion block that was
// created by the sender with the same title.
func (c *Controller) resolveCreatedID(ctx context.Context, receipt *models.Receipt, title string) (uint64, error) {
	h, err := c.reader.Handle(ctx)
	if err != nil {
		return 0, fmt.Errorf("meeting created in %s but its id could not be read: %w", receipt.TxHash.Hex(), err)
	}
	defer h.Close()

	block := new(big.Int).SetUint64(receipt.BlockNumber)
	next, err := h.NextMeetingIDAt(ctx, block)
	if err != nil {
		return 0, fmt.Errorf("meeting created in %s but its id could not be read: %w", receipt.TxHash.Hex(), err)
	}

	if next <= 1 {
		return 0, fmt.Errorf("meeting created in %s but the ledger reports no meetings", receipt.TxHash.Hex())
	}
	for id := next - 1; id >= 1 && next-id <= maxCreatedScan; id-- {
		details, err := h.MeetingDetailsAt(ctx, id, block)
		if err != nil {
			continue
		}
		if details.Creator == receipt.From && details.Title == title {
			return id, nil
		}
	}
	return 0, fmt.Errorf("meeting created in %s but no matching record was found", receipt.TxHash.Hex())
}

// End closes an active meeting after confirm approves. Ending an ended
// meeting is ledger.ErrAlreadyEnded; only the creator may end a meeting.
func (c *Controller) End(ctx context.Context, meetingID uint64, confirm Confirmer) (*models.Receipt, error) {
	if meetingID == 0 {
		return nil, fmt.Errorf("%w: meeting id must be positive", ledger.ErrInvalidArgument)
	}
	if !c.gate.HasWallet() {
		return nil, ledger.ErrNoSigningCapability
	}
	if confirm == nil {
		return nil, ledger.ErrNotConfirmed
	}

	ok, err := confirm.Confirm(ctx, EndPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ledger.ErrNotConfirmed, err)
	}
	if !ok {
		return nil, ledger.ErrNotConfirmed
	}

	data, err := c.reader.Contract().PackEndMeeting(meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode end: %w", err)
	}

	receipt, err := c.submitter.Submit(ctx, submitter.Operation{Name: ledger.OpEndMeeting, Data: data})
	if err != nil {
		err = ledger.Classify(ledger.OpEndMeeting, err)
		if errors.Is(err, ledger.ErrNotCreator) || errors.Is(err, ledger.ErrAlreadyEnded) {
			slog.Info("End rejected by ledger", "meeting_id", meetingID, "reason", err)
		}
		return nil, err
	}

	slog.Info("Meeting ended",
		"meeting_id", meetingID,
		"tx_hash", receipt.TxHash.Hex(),
	)
	return receipt, nil
}
