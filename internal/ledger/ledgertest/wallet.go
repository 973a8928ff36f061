package ledgertest

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/network"
)

// ProviderError mimics an EIP-1193 error returned over JSON-RPC.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string  { return e.Message }
func (e *ProviderError) ErrorCode() int { return e.Code }

// Rejected is the error a wallet returns when the user declines.
func Rejected() error {
	return &ProviderError{Code: network.CodeUserRejected, Message: "User rejected the request."}
}

// Wallet is a scriptable interactive wallet bound to a Ledger.
type Wallet struct {
	mu sync.Mutex

	ledger   *Ledger
	chainID  *big.Int
	known    map[string]bool
	accounts []common.Address

	// RejectSwitch, RejectAdd, RejectAccounts and RejectSend make the user
	// decline the corresponding prompt.
	RejectSwitch   bool
	RejectAdd      bool
	RejectAccounts bool
	RejectSend     bool

	// SwitchGate, when set, blocks SwitchChain until it is closed.
	SwitchGate chan struct{}

	switchCalls int
	addCalls    int
	sends       int
}

// NewWallet creates a wallet on chainID holding account. The ledger's chain
// is known to the wallet unless Forget is called.
func NewWallet(l *Ledger, account common.Address, chainID int64) *Wallet {
	w := &Wallet{
		ledger:   l,
		chainID:  big.NewInt(chainID),
		known:    map[string]bool{},
		accounts: []common.Address{account},
	}
	w.known[w.chainID.String()] = true
	w.known[l.ChainID().String()] = true
	return w
}

// Forget removes a chain from the wallet's known networks
func (w *Wallet) Forget(chainID *big.Int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.known, chainID.String())
}

// SetAccounts simulates the user changing accounts
func (w *Wallet) SetAccounts(accounts ...common.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.accounts = slices.Clone(accounts)
}

// SwitchCalls returns the number of switch prompts shown
func (w *Wallet) SwitchCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.switchCalls
}

// AddCalls returns the number of registration prompts shown
func (w *Wallet) AddCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addCalls
}

// Sends returns the number of transactions broadcast
func (w *Wallet) Sends() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sends
}

func (w *Wallet) ChainID(ctx context.Context) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return new(big.Int).Set(w.chainID), nil
}

func (w *Wallet) SwitchChain(ctx context.Context, chainID *big.Int) error {
	w.mu.Lock()
	w.switchCalls++
	gate := w.SwitchGate
	w.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.RejectSwitch {
		return Rejected()
	}
	if !w.known[chainID.String()] {
		return &ProviderError{Code: network.CodeUnrecognizedChain, Message: "Unrecognized chain ID"}
	}
	w.chainID = new(big.Int).Set(chainID)
	return nil
}

func (w *Wallet) AddChain(ctx context.Context, params network.ChainParams) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.addCalls++
	if w.RejectAdd {
		return Rejected()
	}
	w.known[params.ChainID.String()] = true
	return nil
}

func (w *Wallet) Accounts(ctx context.Context) ([]common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.accounts), nil
}

func (w *Wallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.RejectAccounts {
		return nil, Rejected()
	}
	return slices.Clone(w.accounts), nil
}

func (w *Wallet) SendTransaction(ctx context.Context, req network.TxRequest) (common.Hash, error) {
	w.mu.Lock()
	if w.RejectSend {
		w.mu.Unlock()
		return common.Hash{}, Rejected()
	}
	if w.chainID.Cmp(w.ledger.ChainID()) != 0 {
		w.mu.Unlock()
		return common.Hash{}, fmt.Errorf("wallet on chain %s cannot reach ledger chain %s", w.chainID, w.ledger.ChainID())
	}
	w.sends++
	w.mu.Unlock()

	return w.ledger.execute(req.From, req.To, req.Data)
}

// Connect returns a handle on the wallet's current chain.
func (w *Wallet) Connect(ctx context.Context) (network.Backend, error) {
	w.mu.Lock()
	chainID := new(big.Int).Set(w.chainID)
	w.mu.Unlock()
	return w.ledger.backendOn(chainID), nil
}
