// Package ledgertest provides an in-memory check-in ledger and wallet that
// speak the real contract ABI, for use in tests.
package ledgertest

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger"
)

// DefaultAddress is where the test contract lives
var DefaultAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

type meeting struct {
	creator      common.Address
	title        string
	start, end   int64
	max, count   uint64
	ended        bool
	participants map[uint64]bool

	// raw values served instead of the real ones
	rawStatus *uint8
	rawCount  *big.Int
}

// Ledger is an in-memory rendition of the check-in contract. It enforces the
// contract's rules: capacity, one check-in per participant, creator-only end
// and the one-way ACTIVE -> ENDED transition.
type Ledger struct {
	mu sync.Mutex

	abi     abi.ABI
	address common.Address
	chainID *big.Int
	code    []byte

	meetings []*meeting
	receipts map[common.Hash]*types.Receipt
	block    uint64
	nonce    uint64
	now      func() time.Time

	failDetails map[uint64]error
	failNext    map[string][]error
	nextID      *big.Int
	calls       map[string]int
	connections int

	// CustomErrors makes reverts use the ABI's custom errors instead of
	// Error(string) reasons.
	CustomErrors bool

	// NoEvents suppresses MeetingCreated logs in receipts.
	NoEvents bool
}

// New creates an empty, deployed ledger on the given chain.
func New(chainID int64) *Ledger {
	parsed, err := ledger.ParseABI()
	if err != nil {
		panic(err)
	}
	return &Ledger{
		abi:         parsed,
		address:     DefaultAddress,
		chainID:     big.NewInt(chainID),
		code:        []byte{0x60, 0x80, 0x60, 0x40},
		receipts:    make(map[common.Hash]*types.Receipt),
		block:       1,
		now:         time.Now,
		failDetails: make(map[uint64]error),
		failNext:    make(map[string][]error),
		calls:       make(map[string]int),
	}
}

// Address returns the contract address
func (l *Ledger) Address() common.Address { return l.address }

// ChainID returns the ledger's chain id
func (l *Ledger) ChainID() *big.Int { return new(big.Int).Set(l.chainID) }

// SetClock overrides the block timestamp source
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Undeploy removes the contract code
func (l *Ledger) Undeploy() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.code = nil
}

// FailDetails makes every getMeetingDetails read for id fail with err.
func (l *Ledger) FailDetails(id uint64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failDetails[id] = err
}

// OverrideNextID makes nextMeetingId answer v regardless of the stored
// meetings.
func (l *Ledger) OverrideNextID(v *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID = new(big.Int).Set(v)
}

// CorruptStatus makes getMeetingDetails report status for id.
func (l *Ledger) CorruptStatus(id uint64, status uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m := l.lookup(id); m != nil {
		m.rawStatus = &status
	}
}

// CorruptCount makes getMeetingDetails report count as the participant
// count of id.
func (l *Ledger) CorruptCount(id uint64, count *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m := l.lookup(id); m != nil {
		m.rawCount = new(big.Int).Set(count)
	}
}

// FailNext queues errors for the next calls of method ("codeAt" for CodeAt).
func (l *Ledger) FailNext(method string, errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext[method] = append(l.failNext[method], errs...)
}

// Calls returns how many times method was invoked
func (l *Ledger) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

// Connections returns how many backends were opened
func (l *Ledger) Connections() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connections
}

// Seed creates a meeting directly, bypassing transactions.
func (l *Ledger) Seed(creator common.Address, title string, capacity uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.create(creator, title, capacity)
}

// Participants returns the participant count of a meeting
func (l *Ledger) Participants(id uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m := l.lookup(id); m != nil {
		return m.count
	}
	return 0
}

// Backend opens a read handle reporting the ledger's own chain id.
func (l *Ledger) Backend() *Backend {
	return l.backendOn(l.ChainID())
}

func (l *Ledger) backendOn(chainID *big.Int) *Backend {
	l.mu.Lock()
	l.connections++
	l.mu.Unlock()
	return &Backend{ledger: l, chainID: chainID}
}

func (l *Ledger) create(creator common.Address, title string, capacity uint64) uint64 {
	l.meetings = append(l.meetings, &meeting{
		creator:      creator,
		title:        title,
		start:        l.now().Unix(),
		max:          capacity,
		participants: make(map[uint64]bool),
	})
	return uint64(len(l.meetings))
}

func (l *Ledger) lookup(id uint64) *meeting {
	if id == 0 || id > uint64(len(l.meetings)) {
		return nil
	}
	return l.meetings[id-1]
}

func (l *Ledger) takeFailure(method string) error {
	l.calls[method]++
	queue := l.failNext[method]
	if len(queue) == 0 {
		return nil
	}
	l.failNext[method] = queue[1:]
	return queue[0]
}

func (l *Ledger) codeAt(addr common.Address) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.takeFailure("codeAt"); err != nil {
		return nil, err
	}
	if addr != l.address {
		return nil, nil
	}
	return append([]byte(nil), l.code...), nil
}

func (l *Ledger) call(msg ethereum.CallMsg) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if msg.To == nil || *msg.To != l.address || len(l.code) == 0 {
		return nil, nil
	}
	ret, _, err := l.apply(msg.From, msg.Data, false)
	return ret, err
}

// execute mines a transaction. Reverts produce a failed receipt, like a chain.
func (l *Ledger) execute(from, to common.Address, data []byte) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nonce++
	l.block++
	hash := crypto.Keccak256Hash(from.Bytes(), data, new(big.Int).SetUint64(l.nonce).Bytes())

	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(l.block),
		GasUsed:     21000,
	}
	if to != l.address || len(l.code) == 0 {
		receipt.Status = types.ReceiptStatusFailed
	} else if _, logs, err := l.apply(from, data, true); err != nil {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		receipt.Logs = logs
	}
	l.receipts[hash] = receipt
	return hash, nil
}

func (l *Ledger) receipt(hash common.Hash) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.takeFailure("receipt"); err != nil {
		return nil, err
	}
	r, ok := l.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	cp := *r
	return &cp, nil
}

func (l *Ledger) apply(from common.Address, data []byte, commit bool) ([]byte, []*types.Log, error) {
	if len(data) < 4 {
		return nil, nil, l.revert("InvalidCall", "invalid calldata")
	}
	method, err := l.abi.MethodById(data[:4])
	if err != nil {
		return nil, nil, l.revert("InvalidCall", "unknown method")
	}
	if err := l.takeFailure(method.Name); err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, l.revert("InvalidCall", "bad arguments")
	}

	switch method.Name {
	case "nextMeetingId":
		next := new(big.Int).SetUint64(uint64(len(l.meetings)) + 1)
		if l.nextID != nil {
			next = l.nextID
		}
		ret, err := method.Outputs.Pack(next)
		return ret, nil, err

	case "getActiveMeetings":
		ids := []*big.Int{}
		for i, m := range l.meetings {
			if !m.ended {
				ids = append(ids, big.NewInt(int64(i+1)))
			}
		}
		ret, err := method.Outputs.Pack(ids)
		return ret, nil, err

	case "getMeetingDetails":
		id := args[0].(*big.Int).Uint64()
		if err := l.failDetails[id]; err != nil {
			return nil, nil, err
		}
		m := l.lookup(id)
		if m == nil {
			return nil, nil, l.revert("MeetingNotFound", "Meeting does not exist")
		}
		status := uint8(0)
		if m.ended {
			status = 1
		}
		if m.rawStatus != nil {
			status = *m.rawStatus
		}
		count := new(big.Int).SetUint64(m.count)
		if m.rawCount != nil {
			count = m.rawCount
		}
		ret, err := method.Outputs.Pack(m.creator, m.title, big.NewInt(m.start), big.NewInt(m.end),
			new(big.Int).SetUint64(m.max), count, status)
		return ret, nil, err

	case "isParticipant":
		m := l.lookup(args[0].(*big.Int).Uint64())
		checked := m != nil && m.participants[args[1].(*big.Int).Uint64()]
		ret, err := method.Outputs.Pack(checked)
		return ret, nil, err

	case "createMeeting":
		title := args[0].(string)
		capacity := args[1].(*big.Int)
		if title == "" || capacity.Sign() <= 0 {
			return nil, nil, l.revert("InvalidMeeting", "Invalid meeting parameters")
		}
		id := uint64(len(l.meetings)) + 1
		var logs []*types.Log
		if commit {
			l.create(from, title, capacity.Uint64())
			if !l.NoEvents {
				logs = append(logs, l.meetingCreatedLog(id, from, title, capacity))
			}
		}
		ret, err := method.Outputs.Pack(new(big.Int).SetUint64(id))
		return ret, logs, err

	case "checkIn":
		m := l.lookup(args[0].(*big.Int).Uint64())
		pid := args[1].(*big.Int).Uint64()
		switch {
		case m == nil:
			return nil, nil, l.revert("MeetingNotFound", "Meeting does not exist")
		case m.ended:
			return nil, nil, l.revert("MeetingNotActive", "Meeting not active")
		case m.participants[pid]:
			return nil, nil, l.revert("AlreadyCheckedIn", "Already checked in")
		case m.count >= m.max:
			return nil, nil, l.revert("MeetingFull", "Meeting is full")
		}
		if commit {
			m.participants[pid] = true
			m.count++
		}
		return nil, nil, nil

	case "endMeeting":
		m := l.lookup(args[0].(*big.Int).Uint64())
		switch {
		case m == nil:
			return nil, nil, l.revert("MeetingNotFound", "Meeting does not exist")
		case m.creator != from:
			return nil, nil, l.revert("NotCreator", "Only creator can end meeting")
		case m.ended:
			return nil, nil, l.revert("MeetingNotActive", "Meeting not active")
		}
		if commit {
			m.ended = true
			m.end = l.now().Unix()
			if m.end < m.start {
				m.end = m.start
			}
		}
		return nil, nil, nil
	}

	return nil, nil, l.revert("InvalidCall", "unsupported method")
}

func (l *Ledger) meetingCreatedLog(id uint64, creator common.Address, title string, capacity *big.Int) *types.Log {
	event := l.abi.Events["MeetingCreated"]
	data, _ := event.Inputs.NonIndexed().Pack(title, capacity)
	return &types.Log{
		Address: l.address,
		Topics: []common.Hash{
			event.ID,
			common.BigToHash(new(big.Int).SetUint64(id)),
			common.BytesToHash(creator.Bytes()),
		},
		Data:        data,
		BlockNumber: l.block,
	}
}

var revertSelector = crypto.Keccak256([]byte("Error(string)"))[:4]

func (l *Ledger) revert(customName, reason string) error {
	if l.CustomErrors {
		if e, ok := l.abi.Errors[customName]; ok {
			return &CallError{Message: "execution reverted", Data: hexutil.Encode(e.ID[:4])}
		}
	}
	stringType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringType}}.Pack(reason)
	data := append(append([]byte{}, revertSelector...), packed...)
	return &CallError{Message: "execution reverted: " + reason, Data: hexutil.Encode(data)}
}

// CallError mimics a JSON-RPC error carrying revert data.
type CallError struct {
	Message string
	Data    string
}

func (e *CallError) Error() string          { return e.Message }
func (e *CallError) ErrorCode() int         { return 3 }
func (e *CallError) ErrorData() interface{} { return e.Data }

// Backend is a connected handle on the in-memory ledger.
type Backend struct {
	ledger  *Ledger
	chainID *big.Int

	mu     sync.Mutex
	closed bool
}

var errClosed = errors.New("backend closed")

func (b *Backend) check() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}
	return nil
}

// ChainID returns the chain this handle was opened on
func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	return new(big.Int).Set(b.chainID), nil
}

// CodeAt returns the contract code
func (b *Backend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	return b.ledger.codeAt(account)
}

// CallContract executes a read-only call
func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.ledger.call(msg)
}

// TransactionReceipt returns a mined receipt or ethereum.NotFound
func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	return b.ledger.receipt(txHash)
}

// Close marks the handle unusable
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Closed reports whether Close was called
func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
