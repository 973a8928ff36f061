package ledger_test

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger/ledgertest"
)

func newContract(t *testing.T) *ledger.Contract {
	t.Helper()
	c, err := ledger.NewContract(ledgertest.DefaultAddress)
	if err != nil {
		t.Fatalf("NewContract() error: %v", err)
	}
	return c
}

func TestDecodeRevert(t *testing.T) {
	c := newContract(t)
	parsed := c.ABI()
	fullID := parsed.Errors["MeetingFull"].ID

	tests := []struct {
		name      string
		err       error
		wantOK    bool
		reason    string
		errorName string
	}{
		{
			name:   "error string data",
			err:    revertWith("Meeting is full"),
			wantOK: true,
			reason: "Meeting is full",
		},
		{
			name:      "custom error selector",
			err:       &ledgertest.CallError{Message: "execution reverted", Data: hexutil.Encode(fullID[:4])},
			wantOK:    true,
			errorName: "MeetingFull",
		},
		{
			name:   "message only",
			err:    errors.New("execution reverted: Already checked in"),
			wantOK: true,
			reason: "Already checked in",
		},
		{
			name:   "wrapped",
			err:    fmt.Errorf("call checkIn: %w", revertWith("Meeting not active")),
			wantOK: true,
			reason: "Meeting not active",
		},
		{
			name:   "connectivity",
			err:    errors.New("dial tcp: connection refused"),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.DecodeRevert(tt.err)
			if ok != tt.wantOK {
				t.Fatalf("DecodeRevert() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Reason != tt.reason || got.ErrorName != tt.errorName {
				t.Errorf("DecodeRevert() = {%q %q}, want {%q %q}", got.Reason, got.ErrorName, tt.reason, tt.errorName)
			}
		})
	}
}

// revertWith returns the error a node gives for a require() failure.
func revertWith(reason string) error {
	return &ledgertest.CallError{
		Message: "execution reverted: " + reason,
		Data:    encodeErrorString(reason),
	}
}

func encodeErrorString(reason string) string {
	// Error(string) selector 0x08c379a0 + offset + length + padded bytes
	out := "0x08c379a0"
	out += fmt.Sprintf("%064x", 32)
	out += fmt.Sprintf("%064x", len(reason))
	hexReason := common.Bytes2Hex([]byte(reason))
	for len(hexReason)%64 != 0 {
		hexReason += "0"
	}
	return out + hexReason
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		op   string
		err  error
		want error
	}{
		{name: "already checked in", op: ledger.OpCheckIn, err: &ledger.RevertError{Reason: "Already checked in"}, want: ledger.ErrAlreadyCheckedIn},
		{name: "full", op: ledger.OpCheckIn, err: &ledger.RevertError{Reason: "Meeting is full"}, want: ledger.ErrMeetingFull},
		{name: "capacity", op: ledger.OpCheckIn, err: &ledger.RevertError{Reason: "Max participants reached"}, want: ledger.ErrMeetingFull},
		{name: "ended on check-in", op: ledger.OpCheckIn, err: &ledger.RevertError{Reason: "Meeting not active"}, want: ledger.ErrMeetingEnded},
		{name: "ended on end", op: ledger.OpEndMeeting, err: &ledger.RevertError{Reason: "Meeting not active"}, want: ledger.ErrAlreadyEnded},
		{name: "not creator", op: ledger.OpEndMeeting, err: &ledger.RevertError{Reason: "Only creator can end meeting"}, want: ledger.ErrNotCreator},
		{name: "not found", op: ledger.OpCheckIn, err: &ledger.RevertError{Reason: "Meeting does not exist"}, want: ledger.ErrMeetingNotFound},
		{name: "invalid parameters", op: ledger.OpCreateMeeting, err: &ledger.RevertError{Reason: "Invalid meeting parameters"}, want: ledger.ErrInvalidArgument},
		{name: "invalid meeting", op: ledger.OpCheckIn, err: &ledger.RevertError{Reason: "Invalid meeting"}, want: ledger.ErrInvalidArgument},
		{name: "custom invalid meeting", op: ledger.OpCheckIn, err: &ledger.RevertError{ErrorName: "InvalidMeeting"}, want: ledger.ErrInvalidArgument},
		{name: "custom full", op: ledger.OpCheckIn, err: &ledger.RevertError{ErrorName: "MeetingFull"}, want: ledger.ErrMeetingFull},
		{name: "custom not active", op: ledger.OpEndMeeting, err: &ledger.RevertError{ErrorName: "MeetingNotActive"}, want: ledger.ErrAlreadyEnded},
		{name: "inside submission error", op: ledger.OpCheckIn, err: &ledger.SubmissionError{Op: ledger.OpCheckIn, Err: &ledger.RevertError{Reason: "Already checked in"}}, want: ledger.ErrAlreadyCheckedIn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ledger.Classify(tt.op, tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
			if !ledger.IsRejection(got) {
				t.Errorf("Classify() = %v, want a RejectionError", got)
			}
		})
	}
}

func TestClassify_PassesThroughUnknown(t *testing.T) {
	conn := errors.New("connection refused")
	if got := ledger.Classify(ledger.OpCheckIn, conn); got != conn {
		t.Errorf("Classify() = %v, want the original error", got)
	}

	unknown := &ledger.RevertError{Reason: "paused"}
	if got := ledger.Classify(ledger.OpCheckIn, unknown); ledger.IsRejection(got) {
		t.Errorf("unrecognised revert classified as %v", got)
	}

	if ledger.Classify(ledger.OpCheckIn, nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}

func TestSubmissionError_Unwrap(t *testing.T) {
	cause := errors.New("nonce too low")
	err := &ledger.SubmissionError{Op: ledger.OpCreateMeeting, Err: cause}

	if !errors.Is(err, ledger.ErrSubmissionFailed) {
		t.Error("SubmissionError should match ErrSubmissionFailed")
	}
	if !errors.Is(err, cause) {
		t.Error("SubmissionError should match its cause")
	}
}

func TestMeetingCreatedID(t *testing.T) {
	c := newContract(t)
	event := c.ABI().Events["MeetingCreated"]

	created := &types.Log{
		Address: ledgertest.DefaultAddress,
		Topics: []common.Hash{
			event.ID,
			common.BigToHash(big.NewInt(7)),
			common.BytesToHash(common.HexToAddress("0x01").Bytes()),
		},
	}
	foreign := &types.Log{
		Address: common.HexToAddress("0xdead"),
		Topics:  created.Topics,
	}
	other := &types.Log{
		Address: ledgertest.DefaultAddress,
		Topics:  []common.Hash{c.ABI().Events["MeetingEnded"].ID, common.BigToHash(big.NewInt(3))},
	}

	if id, ok := c.MeetingCreatedID([]*types.Log{foreign, other, created}); !ok || id != 7 {
		t.Errorf("MeetingCreatedID() = %d, %v; want 7, true", id, ok)
	}
	if _, ok := c.MeetingCreatedID([]*types.Log{foreign, other}); ok {
		t.Error("MeetingCreatedID() found an id in unrelated logs")
	}
}

func TestPackRoundTrip(t *testing.T) {
	c := newContract(t)

	data, err := c.PackCheckIn(3, 42)
	if err != nil {
		t.Fatalf("PackCheckIn() error: %v", err)
	}
	parsed := c.ABI()
	method, err := parsed.MethodById(data[:4])
	if err != nil || method.Name != ledger.OpCheckIn {
		t.Fatalf("selector resolves to %v, %v", method, err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("Unpack() error: %v", err)
	}
	if args[0].(*big.Int).Uint64() != 3 || args[1].(*big.Int).Uint64() != 42 {
		t.Errorf("args = %v, want [3 42]", args)
	}
}
