// Package reader provides verified, retrying read access to the check-in
// contract.
package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger/retry"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/metrics"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/network"
)

// Reader hands out read handles on the configured contract.
type Reader struct {
	gate     *network.Gate
	contract *ledger.Contract
	strategy retry.Strategy
}

// New creates a Reader. A nil strategy disables retries.
func New(gate *network.Gate, contract *ledger.Contract, strategy retry.Strategy) *Reader {
	if strategy == nil {
		strategy = retry.NewNoRetryStrategy()
	}
	return &Reader{
		gate:     gate,
		contract: contract,
		strategy: strategy,
	}
}

// Contract returns the contract binding
func (r *Reader) Contract() *ledger.Contract {
	return r.contract
}

// Handle resolves the network and verifies that code is deployed at the
// contract address. It returns ledger.ErrContractUnavailable when there is
// none; callers are expected to degrade to an empty view.
func (r *Reader) Handle(ctx context.Context) (*Handle, error) {
	var backend network.Backend

	err := r.strategy.Execute(ctx, func() error {
		b, err := r.gate.ResolveProvider(ctx)
		if err != nil {
			return err
		}

		code, err := b.CodeAt(ctx, r.contract.Address(), nil)
		if err != nil {
			b.Close()
			return fmt.Errorf("failed to read contract code: %w", err)
		}
		if len(code) == 0 {
			b.Close()
			return ledger.ErrContractUnavailable
		}

		backend = b
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrContractUnavailable) {
			metrics.ContractUnavailable.Inc()
			slog.Warn("No contract deployed at configured address",
				"address", r.contract.Address().Hex(),
			)
		}
		return nil, err
	}

	return &Handle{
		backend:  backend,
		contract: r.contract,
		strategy: r.strategy,
	}, nil
}

// Handle is a verified contract accessor bound to one connected backend.
// Every read runs inside the reader's retry strategy.
type Handle struct {
	backend  network.Backend
	contract *ledger.Contract
	strategy retry.Strategy
}

// Backend returns the connected backend
func (h *Handle) Backend() network.Backend {
	return h.backend
}

// Close releases the backend
func (h *Handle) Close() {
	h.backend.Close()
}

// NextMeetingID returns the exclusive upper bound of assigned meeting ids.
func (h *Handle) NextMeetingID(ctx context.Context) (uint64, error) {
	return h.NextMeetingIDAt(ctx, nil)
}

// NextMeetingIDAt reads nextMeetingId at a historical block.
func (h *Handle) NextMeetingIDAt(ctx context.Context, block *big.Int) (uint64, error) {
	var next uint64
	err := h.read(ctx, "nextMeetingId", func() error {
		var err error
		next, err = h.contract.NextMeetingID(ctx, h.backend, block)
		return err
	})
	return next, err
}

// ActiveMeetings returns the ledger's active-id index.
func (h *Handle) ActiveMeetings(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := h.read(ctx, "getActiveMeetings", func() error {
		var err error
		ids, err = h.contract.ActiveMeetings(ctx, h.backend)
		return err
	})
	return ids, err
}

// MeetingDetails reads the latest record for id.
func (h *Handle) MeetingDetails(ctx context.Context, id uint64) (ledger.MeetingDetails, error) {
	return h.MeetingDetailsAt(ctx, id, nil)
}

// MeetingDetailsAt reads the record for id at a historical block.
func (h *Handle) MeetingDetailsAt(ctx context.Context, id uint64, block *big.Int) (ledger.MeetingDetails, error) {
	var details ledger.MeetingDetails
	err := h.read(ctx, "getMeetingDetails", func() error {
		var err error
		details, err = h.contract.MeetingDetails(ctx, h.backend, id, block)
		return err
	})
	return details, err
}

// IsParticipant reports whether participantID has checked in to meetingID.
func (h *Handle) IsParticipant(ctx context.Context, meetingID, participantID uint64) (bool, error) {
	var checked bool
	err := h.read(ctx, "isParticipant", func() error {
		var err error
		checked, err = h.contract.IsParticipant(ctx, h.backend, meetingID, participantID)
		return err
	})
	return checked, err
}

func (h *Handle) read(ctx context.Context, method string, op retry.Operation) error {
	err := h.strategy.Execute(ctx, op)
	if err != nil {
		metrics.LedgerReads.WithLabelValues(method, "error").Inc()
		return err
	}
	metrics.LedgerReads.WithLabelValues(method, "ok").Inc()
	return nil
}
