package ledger

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

//go:embed checkin.abi.json
var checkInABI string

// ParseABI returns the check-in contract ABI.
func ParseABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(checkInABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse contract ABI: %w", err)
	}
	return parsed, nil
}

// MeetingDetails is the raw getMeetingDetails result.
type MeetingDetails struct {
	Creator          common.Address
	Title            string
	StartTime        *big.Int
	EndTime          *big.Int
	MaxParticipants  *big.Int
	ParticipantCount *big.Int
	Status           uint8
}

// Contract binds the check-in contract ABI to a deployed address.
type Contract struct {
	address common.Address
	abi     abi.ABI
}

// NewContract creates a binding for the contract at address
func NewContract(address common.Address) (*Contract, error) {
	parsed, err := ParseABI()
	if err != nil {
		return nil, err
	}
	return &Contract{address: address, abi: parsed}, nil
}

// Address returns the bound contract address
func (c *Contract) Address() common.Address {
	return c.address
}

// ABI returns the parsed contract ABI
func (c *Contract) ABI() abi.ABI {
	return c.abi
}

// NextMeetingID returns the exclusive upper bound of assigned meeting ids.
func (c *Contract) NextMeetingID(ctx context.Context, caller ethereum.ContractCaller, block *big.Int) (uint64, error) {
	out, err := c.call(ctx, caller, common.Address{}, block, "nextMeetingId")
	if err != nil {
		return 0, err
	}
	return toUint64("nextMeetingId", out[0])
}

// ActiveMeetings returns the ledger's active-id index.
func (c *Contract) ActiveMeetings(ctx context.Context, caller ethereum.ContractCaller) ([]uint64, error) {
	out, err := c.call(ctx, caller, common.Address{}, nil, "getActiveMeetings")
	if err != nil {
		return nil, err
	}
	raw, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getActiveMeetings: unexpected result type %T", out[0])
	}
	ids := make([]uint64, 0, len(raw))
	for _, v := range raw {
		id, err := toUint64("getActiveMeetings", v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// MeetingDetails reads one meeting record at the given block (nil = latest).
func (c *Contract) MeetingDetails(ctx context.Context, caller ethereum.ContractCaller, meetingID uint64, block *big.Int) (MeetingDetails, error) {
	var details MeetingDetails

	input, err := c.abi.Pack("getMeetingDetails", new(big.Int).SetUint64(meetingID))
	if err != nil {
		return details, fmt.Errorf("failed to pack getMeetingDetails: %w", err)
	}
	data, err := c.rawCall(ctx, caller, common.Address{}, block, "getMeetingDetails", input)
	if err != nil {
		return details, err
	}
	if err := c.abi.UnpackIntoInterface(&details, "getMeetingDetails", data); err != nil {
		return details, fmt.Errorf("failed to unpack meeting %d: %w", meetingID, err)
	}
	if details.StartTime == nil || details.EndTime == nil || details.MaxParticipants == nil || details.ParticipantCount == nil {
		return details, fmt.Errorf("meeting %d: incomplete record", meetingID)
	}
	return details, nil
}

// IsParticipant reports whether participantID has checked in to meetingID.
func (c *Contract) IsParticipant(ctx context.Context, caller ethereum.ContractCaller, meetingID, participantID uint64) (bool, error) {
	out, err := c.call(ctx, caller, common.Address{}, nil, "isParticipant",
		new(big.Int).SetUint64(meetingID), new(big.Int).SetUint64(participantID))
	if err != nil {
		return false, err
	}
	checked, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("isParticipant: unexpected result type %T", out[0])
	}
	return checked, nil
}

// PackCreateMeeting encodes a createMeeting call
func (c *Contract) PackCreateMeeting(title string, maxParticipants uint64) ([]byte, error) {
	return c.abi.Pack(OpCreateMeeting, title, new(big.Int).SetUint64(maxParticipants))
}

// PackCheckIn encodes a checkIn call
func (c *Contract) PackCheckIn(meetingID, participantID uint64) ([]byte, error) {
	return c.abi.Pack(OpCheckIn, new(big.Int).SetUint64(meetingID), new(big.Int).SetUint64(participantID))
}

// PackEndMeeting encodes an endMeeting call
func (c *Contract) PackEndMeeting(meetingID uint64) ([]byte, error) {
	return c.abi.Pack(OpEndMeeting, new(big.Int).SetUint64(meetingID))
}

// MeetingCreatedID extracts the new meeting id from a receipt's logs.
func (c *Contract) MeetingCreatedID(logs []*types.Log) (uint64, bool) {
	event, ok := c.abi.Events["MeetingCreated"]
	if !ok {
		return 0, false
	}
	for _, l := range logs {
		if l == nil || l.Address != c.address || len(l.Topics) < 2 || l.Topics[0] != event.ID {
			continue
		}
		id := new(big.Int).SetBytes(l.Topics[1].Bytes())
		if !id.IsUint64() {
			continue
		}
		return id.Uint64(), true
	}
	return 0, false
}

// Simulate executes calldata as an eth_call from the given account.
func (c *Contract) Simulate(ctx context.Context, caller ethereum.ContractCaller, from common.Address, data []byte, block *big.Int) error {
	_, err := c.rawCall(ctx, caller, from, block, "simulate", data)
	return err
}

func (c *Contract) call(ctx context.Context, caller ethereum.ContractCaller, from common.Address, block *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	data, err := c.rawCall(ctx, caller, from, block, method, input)
	if err != nil {
		return nil, err
	}
	out, err := c.abi.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return out, nil
}

func (c *Contract) rawCall(ctx context.Context, caller ethereum.ContractCaller, from common.Address, block *big.Int, method string, input []byte) ([]byte, error) {
	msg := ethereum.CallMsg{From: from, To: &c.address, Data: input}
	data, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		if revert, ok := c.DecodeRevert(err); ok {
			return nil, revert
		}
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return data, nil
}

// RevertError is a decoded contract revert.
type RevertError struct {
	Reason    string // Error(string) message, if any
	ErrorName string // custom error name, if the selector matched the ABI
	Data      []byte
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Describe()
}

// Describe returns the most specific description available.
func (e *RevertError) Describe() string {
	switch {
	case e.Reason != "":
		return e.Reason
	case e.ErrorName != "":
		return e.ErrorName
	case len(e.Data) > 0:
		return hexutil.Encode(e.Data)
	}
	return "no reason given"
}

// DecodeRevert extracts revert information from a JSON-RPC call error.
func (c *Contract) DecodeRevert(err error) (*RevertError, bool) {
	if err == nil {
		return nil, false
	}
	var existing *RevertError
	if errors.As(err, &existing) {
		return existing, true
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data := revertData(dataErr.ErrorData()); len(data) >= 4 {
			if reason, uerr := abi.UnpackRevert(data); uerr == nil {
				return &RevertError{Reason: reason, Data: data}, true
			}
			for name, e := range c.abi.Errors {
				if bytes.Equal(e.ID[:4], data[:4]) {
					return &RevertError{ErrorName: name, Data: data}, true
				}
			}
			return &RevertError{Data: data}, true
		}
	}

	msg := err.Error()
	if i := strings.Index(msg, "execution reverted"); i >= 0 {
		reason := strings.TrimSpace(strings.TrimPrefix(msg[i+len("execution reverted"):], ":"))
		return &RevertError{Reason: reason}, true
	}
	return nil, false
}

func revertData(v interface{}) []byte {
	switch d := v.(type) {
	case string:
		b, err := hexutil.Decode(d)
		if err != nil {
			return nil
		}
		return b
	case []byte:
		return d
	case hexutil.Bytes:
		return d
	}
	return nil
}

func toUint64(method string, v interface{}) (uint64, error) {
	n, ok := v.(*big.Int)
	if !ok || n == nil {
		return 0, fmt.Errorf("%s: unexpected result type %T", method, v)
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("%s: value %s out of range", method, n)
	}
	return n.Uint64(), nil
}
