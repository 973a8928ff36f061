package submitter_test

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger/ledgertest"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/models"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/network"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/submitter"
)

const chainID = 11155111

var (
	alice = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob   = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

type memJournal struct {
	mu      sync.Mutex
	entries []models.Submission
}

func (j *memJournal) SaveSubmission(ctx context.Context, s models.Submission) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
	return nil
}

func (j *memJournal) all() []models.Submission {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]models.Submission(nil), j.entries...)
}

type fixture struct {
	ledger   *ledgertest.Ledger
	wallet   *ledgertest.Wallet
	contract *ledger.Contract
	journal  *memJournal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := ledgertest.New(chainID)
	contract, err := ledger.NewContract(l.Address())
	if err != nil {
		t.Fatalf("NewContract() error: %v", err)
	}
	return &fixture{
		ledger:   l,
		wallet:   ledgertest.NewWallet(l, alice, chainID),
		contract: contract,
		journal:  &memJournal{},
	}
}

func (f *fixture) submitter(wallet network.Wallet, cfg submitter.Config) *submitter.Submitter {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}
	gate := network.NewGate(network.ChainParams{ChainID: big.NewInt(chainID)}, wallet, nil)
	return submitter.New(gate, f.contract, f.journal, cfg)
}

func TestSubmit_Confirmed(t *testing.T) {
	f := newFixture(t)
	s := f.submitter(f.wallet, submitter.Config{})

	data, _ := f.contract.PackCreateMeeting("Standup", 5)
	receipt, err := s.Submit(context.Background(), submitter.Operation{Name: ledger.OpCreateMeeting, Data: data})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	if receipt.From != alice {
		t.Errorf("from = %s, want %s", receipt.From, alice)
	}
	if id, ok := f.contract.MeetingCreatedID(receipt.Logs); !ok || id != 1 {
		t.Errorf("MeetingCreated id = %d (%v), want 1", id, ok)
	}
	if f.wallet.Sends() != 1 {
		t.Errorf("sends = %d, want 1", f.wallet.Sends())
	}

	entries := f.journal.all()
	if len(entries) != 1 || entries[0].Status != models.SubmissionConfirmed {
		t.Fatalf("journal = %+v, want one confirmed entry", entries)
	}
	if entries[0].TxHash != receipt.TxHash.Hex() || entries[0].ChainID != chainID {
		t.Errorf("journal entry = %+v", entries[0])
	}
}

func TestSubmit_SimulationRevertIsNotSent(t *testing.T) {
	f := newFixture(t)
	s := f.submitter(f.wallet, submitter.Config{})

	data, _ := f.contract.PackCheckIn(9, 42)
	_, err := s.Submit(context.Background(), submitter.Operation{Name: ledger.OpCheckIn, Data: data})

	if !errors.Is(err, ledger.ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}
	var revert *ledger.RevertError
	if !errors.As(err, &revert) || revert.Reason != "Meeting does not exist" {
		t.Errorf("expected revert reason, got %v", err)
	}
	if f.wallet.Sends() != 0 {
		t.Errorf("sends = %d, want 0", f.wallet.Sends())
	}
	if len(f.journal.all()) != 0 {
		t.Error("simulated rejections are not journaled")
	}
}

// racingWallet lets another account act between simulation and broadcast.
type racingWallet struct {
	*ledgertest.Wallet
	before func()
}

func (w *racingWallet) SendTransaction(ctx context.Context, req network.TxRequest) (common.Hash, error) {
	if w.before != nil {
		w.before()
	}
	return w.Wallet.SendTransaction(ctx, req)
}

func TestSubmit_OnChainRevertRecoversReason(t *testing.T) {
	f := newFixture(t)
	id := f.ledger.Seed(bob, "Retro", 1)
	data, _ := f.contract.PackCheckIn(id, 42)

	other := ledgertest.NewWallet(f.ledger, bob, chainID)
	wallet := &racingWallet{
		Wallet: f.wallet,
		before: func() {
			if _, err := other.SendTransaction(context.Background(), network.TxRequest{From: bob, To: f.ledger.Address(), Data: data}); err != nil {
				t.Errorf("racing send: %v", err)
			}
		},
	}
	s := f.submitter(wallet, submitter.Config{})

	_, err := s.Submit(context.Background(), submitter.Operation{Name: ledger.OpCheckIn, Data: data})
	if !errors.Is(err, ledger.ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}
	if !errors.Is(ledger.Classify(ledger.OpCheckIn, err), ledger.ErrAlreadyCheckedIn) {
		t.Errorf("expected the replayed reason to classify as already checked in, got %v", err)
	}
	if f.ledger.Participants(id) != 1 {
		t.Errorf("participants = %d, want 1", f.ledger.Participants(id))
	}

	entries := f.journal.all()
	if len(entries) != 1 || entries[0].Status != models.SubmissionReverted {
		t.Fatalf("journal = %+v, want one reverted entry", entries)
	}
	if !strings.Contains(entries[0].Reason, "Already checked in") {
		t.Errorf("journal reason = %q", entries[0].Reason)
	}
}

func TestSubmit_NoWallet(t *testing.T) {
	f := newFixture(t)
	s := f.submitter(nil, submitter.Config{})

	data, _ := f.contract.PackEndMeeting(1)
	_, err := s.Submit(context.Background(), submitter.Operation{Name: ledger.OpEndMeeting, Data: data})

	if !errors.Is(err, ledger.ErrNoSigningCapability) {
		t.Errorf("expected ErrNoSigningCapability, got %v", err)
	}
	if !errors.Is(err, ledger.ErrSubmissionFailed) {
		t.Errorf("expected ErrSubmissionFailed, got %v", err)
	}
}

func TestSubmit_UserDeclinesSignature(t *testing.T) {
	f := newFixture(t)
	f.wallet.RejectSend = true
	s := f.submitter(f.wallet, submitter.Config{})

	data, _ := f.contract.PackCreateMeeting("Standup", 5)
	_, err := s.Submit(context.Background(), submitter.Operation{Name: ledger.OpCreateMeeting, Data: data})

	if !errors.Is(err, ledger.ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}
	if !network.IsUserRejected(err) {
		t.Errorf("expected the user rejection to be preserved, got %v", err)
	}
}

func TestSubmit_WaitsForInclusion(t *testing.T) {
	f := newFixture(t)
	f.ledger.FailNext("receipt", ethereum.NotFound, errors.New("connection reset by peer"), ethereum.NotFound)
	s := f.submitter(f.wallet, submitter.Config{})

	data, _ := f.contract.PackCreateMeeting("Standup", 5)
	if _, err := s.Submit(context.Background(), submitter.Operation{Name: ledger.OpCreateMeeting, Data: data}); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if f.ledger.Calls("receipt") != 4 {
		t.Errorf("receipt polls = %d, want 4", f.ledger.Calls("receipt"))
	}
}

func TestSubmit_ConfirmTimeoutNeverResubmits(t *testing.T) {
	f := newFixture(t)
	pending := make([]error, 1000)
	for i := range pending {
		pending[i] = ethereum.NotFound
	}
	f.ledger.FailNext("receipt", pending...)
	s := f.submitter(f.wallet, submitter.Config{ConfirmTimeout: 20 * time.Millisecond})

	data, _ := f.contract.PackCreateMeeting("Standup", 5)
	_, err := s.Submit(context.Background(), submitter.Operation{Name: ledger.OpCreateMeeting, Data: data})

	if !errors.Is(err, ledger.ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "not confirmed") {
		t.Errorf("error = %v", err)
	}
	if f.wallet.Sends() != 1 {
		t.Errorf("sends = %d, want exactly 1", f.wallet.Sends())
	}
}
