package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Receipt is a confirmed ledger inclusion of a submitted operation.
type Receipt struct {
	Operation   string         `json:"operation"`
	TxHash      common.Hash    `json:"tx_hash"`
	From        common.Address `json:"from"`
	BlockNumber uint64         `json:"block_number"`
	GasUsed     uint64         `json:"gas_used"`
	Logs        []*types.Log   `json:"-"`
}

// SubmissionStatus records how a submission ended
type SubmissionStatus string

const (
	SubmissionConfirmed SubmissionStatus = "confirmed"
	SubmissionReverted  SubmissionStatus = "reverted"
)

// Submission is a journal entry for a state-changing operation.
type Submission struct {
	TxHash      string           `json:"tx_hash"`
	Operation   string           `json:"operation"`
	Account     string           `json:"account"`
	ChainID     uint64           `json:"chain_id"`
	BlockNumber uint64           `json:"block_number"`
	Status      SubmissionStatus `json:"status"`
	Reason      string           `json:"reason,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	ConfirmedAt time.Time        `json:"confirmed_at"`
}
