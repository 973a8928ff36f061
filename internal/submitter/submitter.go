// Package submitter sends signer-authorised state changes to the ledger and
// waits for their confirmation. Submissions are never retried.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger/retry"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/metrics"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/models"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/network"
)

// Journal records finished submissions.
type Journal interface {
	SaveSubmission(ctx context.Context, s models.Submission) error
}

// Operation is one encoded contract call.
type Operation struct {
	Name string
	Data []byte
}

// Config controls confirmation waiting
type Config struct {
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
}

// Submitter dispatches operations through the gate's signer.
type Submitter struct {
	gate     *network.Gate
	contract *ledger.Contract
	journal  Journal
	config   Config
	now      func() time.Time
}

// New creates a Submitter. journal may be nil.
func New(gate *network.Gate, contract *ledger.Contract, journal Journal, config Config) *Submitter {
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.ConfirmTimeout <= 0 {
		config.ConfirmTimeout = 3 * time.Minute
	}
	return &Submitter{
		gate:     gate,
		contract: contract,
		journal:  journal,
		config:   config,
		now:      time.Now,
	}
}

// Submit signs and broadcasts op exactly once and blocks until the ledger
// includes it. Every failure is a *ledger.SubmissionError.
func (s *Submitter) Submit(ctx context.Context, op Operation) (*models.Receipt, error) {
	signer, err := s.gate.Signer(ctx)
	if err != nil {
		metrics.Submissions.WithLabelValues(op.Name, "no_signer").Inc()
		return nil, &ledger.SubmissionError{Op: op.Name, Err: err}
	}
	defer signer.Close()

	// Surface reverts before the wallet prompts for a signature.
	if err := s.contract.Simulate(ctx, signer.Backend, signer.Account, op.Data, nil); err != nil {
		metrics.Submissions.WithLabelValues(op.Name, "simulation_failed").Inc()
		slog.Info("Submission rejected in simulation",
			"operation", op.Name,
			"account", signer.Account.Hex(),
			"error", err,
		)
		return nil, &ledger.SubmissionError{Op: op.Name, Err: err}
	}

	submittedAt := s.now()
	hash, err := signer.Send(ctx, s.contract.Address(), op.Data)
	if err != nil {
		outcome := "failed"
		if network.IsUserRejected(err) {
			outcome = "rejected"
		}
		metrics.Submissions.WithLabelValues(op.Name, outcome).Inc()
		return nil, &ledger.SubmissionError{Op: op.Name, Err: fmt.Errorf("send transaction: %w", err)}
	}

	slog.Info("Transaction broadcast, waiting for confirmation",
		"operation", op.Name,
		"tx_hash", hash.Hex(),
		"account", signer.Account.Hex(),
	)

	receipt, err := s.waitReceipt(ctx, signer.Backend, hash)
	if err != nil {
		metrics.Submissions.WithLabelValues(op.Name, "unconfirmed").Inc()
		return nil, &ledger.SubmissionError{Op: op.Name, Err: err}
	}
	metrics.ConfirmationDuration.Observe(time.Since(submittedAt).Seconds())

	entry := models.Submission{
		TxHash:      hash.Hex(),
		Operation:   op.Name,
		Account:     signer.Account.Hex(),
		ChainID:     signer.ChainID.Uint64(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		Status:      models.SubmissionConfirmed,
		SubmittedAt: submittedAt,
		ConfirmedAt: s.now(),
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		cause := s.revertReason(ctx, signer, op, receipt)
		entry.Status = models.SubmissionReverted
		entry.Reason = cause.Error()
		s.record(ctx, entry)

		metrics.Submissions.WithLabelValues(op.Name, "reverted").Inc()
		slog.Warn("Transaction reverted on-chain",
			"operation", op.Name,
			"tx_hash", hash.Hex(),
			"block", entry.BlockNumber,
			"reason", entry.Reason,
		)
		return nil, &ledger.SubmissionError{Op: op.Name, Err: cause}
	}

	s.record(ctx, entry)
	metrics.Submissions.WithLabelValues(op.Name, "confirmed").Inc()
	slog.Info("Transaction confirmed",
		"operation", op.Name,
		"tx_hash", hash.Hex(),
		"block", entry.BlockNumber,
		"gas_used", receipt.GasUsed,
	)

	return &models.Receipt{
		Operation:   op.Name,
		TxHash:      hash,
		From:        signer.Account,
		BlockNumber: entry.BlockNumber,
		GasUsed:     receipt.GasUsed,
		Logs:        receipt.Logs,
	}, nil
}

// waitReceipt polls until the transaction is mined or the confirm timeout
// elapses. Connectivity faults while polling are tolerated.
func (s *Submitter) waitReceipt(ctx context.Context, backend network.Backend, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			slog.Debug("Transaction pending", "tx_hash", hash.Hex())
		case retry.IsRecoverable(err) && ctx.Err() == nil:
			slog.Warn("Receipt poll failed, will retry", "tx_hash", hash.Hex(), "error", err)
		default:
			return nil, fmt.Errorf("query receipt for %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("transaction %s not confirmed within %s; it may still be included", hash.Hex(), s.config.ConfirmTimeout)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// revertReason replays the call at the inclusion block to recover the reason.
func (s *Submitter) revertReason(ctx context.Context, signer *network.Signer, op Operation, receipt *types.Receipt) error {
	err := s.contract.Simulate(ctx, signer.Backend, signer.Account, op.Data, receipt.BlockNumber)
	if err == nil {
		return &ledger.RevertError{}
	}
	if revert, ok := s.contract.DecodeRevert(err); ok {
		return revert
	}
	slog.Debug("Could not replay reverted transaction", "tx_hash", receipt.TxHash.Hex(), "error", err)
	return &ledger.RevertError{}
}

func (s *Submitter) record(ctx context.Context, entry models.Submission) {
	if s.journal == nil {
		return
	}
	if err := s.journal.SaveSubmission(ctx, entry); err != nil {
		slog.Error("Failed to journal submission",
			"tx_hash", entry.TxHash,
			"operation", entry.Operation,
			"error", err,
		)
	}
}
