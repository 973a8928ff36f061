package network

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// Backend is the connected endpoint handle used for reads and receipts.
// *ethclient.Client satisfies it.
type Backend interface {
	ethereum.ContractCaller
	ChainID(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// ChainParams describes a network for wallet registration (EIP-3085).
type ChainParams struct {
	ChainID          *big.Int
	ChainName        string
	RPCURL           string
	CurrencyName     string
	CurrencySymbol   string
	CurrencyDecimals uint8
	ExplorerURL      string
}

// TxRequest is an unsigned call the wallet signs and broadcasts.
type TxRequest struct {
	From common.Address
	To   common.Address
	Data []byte
}

// Wallet is the capability set consumed from an interactive wallet.
// Alternative wallet backends implement the same interface.
type Wallet interface {
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainID *big.Int) error
	AddChain(ctx context.Context, params ChainParams) error
	Accounts(ctx context.Context) ([]common.Address, error)
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)

	// Connect returns a fresh handle bound to the wallet's current network.
	Connect(ctx context.Context) (Backend, error)
}

// EIP-1193 provider error codes
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnrecognizedChain = 4902
)

// ErrUserRejected is returned by wallets when the user declines a prompt.
var ErrUserRejected = errors.New("user rejected the request")

// ErrUnrecognizedChain is returned when the wallet does not know a chain.
var ErrUnrecognizedChain = errors.New("unrecognized chain")

// IsUserRejected reports whether err is a user refusal
func IsUserRejected(err error) bool {
	return errors.Is(err, ErrUserRejected) || hasCode(err, CodeUserRejected)
}

// IsUnrecognizedChain reports whether the wallet does not know the chain
func IsUnrecognizedChain(err error) bool {
	return errors.Is(err, ErrUnrecognizedChain) || hasCode(err, CodeUnrecognizedChain)
}

func hasCode(err error, code int) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode() == code
	}
	return false
}
