package network

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/singleflight"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/metrics"
)

// Dialer opens a direct endpoint handle
type Dialer func(ctx context.Context, url string) (Backend, error)

// DialEndpoint dials a JSON-RPC endpoint with ethclient
func DialEndpoint(ctx context.Context, url string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return client, nil
}

// Gate guarantees that reads and writes happen on the required network.
type Gate struct {
	params ChainParams
	wallet Wallet
	dial   Dialer

	// one chain negotiation in flight at a time
	switches singleflight.Group
}

// NewGate creates a gate. wallet may be nil for read-only operation.
func NewGate(params ChainParams, wallet Wallet, dial Dialer) *Gate {
	if dial == nil {
		dial = DialEndpoint
	}
	return &Gate{
		params: params,
		wallet: wallet,
		dial:   dial,
	}
}

// HasWallet reports whether an interactive wallet is available
func (g *Gate) HasWallet() bool {
	return g.wallet != nil
}

// Params returns the target network parameters
func (g *Gate) Params() ChainParams {
	return g.params
}

// ResolveProvider returns a connected handle on the required network. With a
// wallet it negotiates the network first and always returns a fresh handle;
// without one it dials the configured read endpoint.
func (g *Gate) ResolveProvider(ctx context.Context) (Backend, error) {
	if g.wallet == nil {
		return g.dialStatic(ctx)
	}

	if err := g.ensureChain(ctx); err != nil {
		return nil, err
	}

	backend, err := g.wallet.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return backend, nil
}

func (g *Gate) dialStatic(ctx context.Context) (Backend, error) {
	backend, err := g.dial(ctx, g.params.RPCURL)
	if err != nil {
		return nil, err
	}

	id, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("query endpoint network: %w", err)
	}
	if id.Cmp(g.params.ChainID) != 0 {
		backend.Close()
		return nil, fmt.Errorf("%w: endpoint chain %s, required %s", ledger.ErrWrongNetwork, id, g.params.ChainID)
	}
	return backend, nil
}

// negotiateTimeout bounds one shared negotiation, prompts included.
const negotiateTimeout = 3 * time.Minute

// ensureChain serialises negotiation: concurrent callers share one attempt.
// The attempt outlives any single caller; each caller stops waiting when its
// own ctx is done.
func (g *Gate) ensureChain(ctx context.Context) error {
	ch := g.switches.DoChan("chain", func() (interface{}, error) {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), negotiateTimeout)
		defer cancel()
		return nil, g.negotiate(nctx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			slog.Debug("Joined in-flight network negotiation")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) negotiate(ctx context.Context) error {
	target := g.params.ChainID

	current, err := g.wallet.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("query wallet network: %w", err)
	}
	if current.Cmp(target) == 0 {
		return nil
	}

	slog.Info("Wallet on a different network, requesting switch",
		"current_chain", current,
		"required_chain", target,
	)

	if err := g.wallet.SwitchChain(ctx, target); err != nil {
		switch {
		case IsUserRejected(err):
			metrics.NetworkSwitches.WithLabelValues("rejected").Inc()
			return fmt.Errorf("%w: %v", ledger.ErrNetworkRejected, err)

		case IsUnrecognizedChain(err):
			slog.Info("Wallet does not know the network, requesting registration",
				"chain", g.params.ChainName,
				"chain_id", target,
			)
			if err := g.wallet.AddChain(ctx, g.params); err != nil {
				if IsUserRejected(err) {
					metrics.NetworkSwitches.WithLabelValues("rejected").Inc()
					return fmt.Errorf("%w: %v", ledger.ErrNetworkRejected, err)
				}
				metrics.NetworkSwitches.WithLabelValues("failed").Inc()
				return fmt.Errorf("register network: %w", err)
			}
			if err := g.wallet.SwitchChain(ctx, target); err != nil {
				if IsUserRejected(err) {
					metrics.NetworkSwitches.WithLabelValues("rejected").Inc()
					return fmt.Errorf("%w: %v", ledger.ErrNetworkRejected, err)
				}
				metrics.NetworkSwitches.WithLabelValues("failed").Inc()
				return fmt.Errorf("switch network after registration: %w", err)
			}

		default:
			metrics.NetworkSwitches.WithLabelValues("failed").Inc()
			return fmt.Errorf("switch network: %w", err)
		}
	}

	after, err := g.wallet.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("query wallet network: %w", err)
	}
	if after.Cmp(target) != 0 {
		metrics.NetworkSwitches.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: wallet still on chain %s", ledger.ErrWrongNetwork, after)
	}

	metrics.NetworkSwitches.WithLabelValues("switched").Inc()
	slog.Info("Wallet switched network", "chain_id", target)
	return nil
}

// Signer is a signing handle on the required network.
type Signer struct {
	Account common.Address
	ChainID *big.Int
	Backend Backend
	wallet  Wallet
}

// Send has the wallet sign and broadcast a call from the signer's account
func (s *Signer) Send(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	return s.wallet.SendTransaction(ctx, TxRequest{From: s.Account, To: to, Data: data})
}

// Close releases the signer's backend
func (s *Signer) Close() {
	s.Backend.Close()
}

// Signer resolves the network and returns a handle able to sign for the
// wallet's active account.
func (g *Gate) Signer(ctx context.Context) (*Signer, error) {
	if g.wallet == nil {
		return nil, ledger.ErrNoSigningCapability
	}

	backend, err := g.ResolveProvider(ctx)
	if err != nil {
		return nil, err
	}

	accounts, err := g.wallet.RequestAccounts(ctx)
	if err != nil {
		backend.Close()
		if IsUserRejected(err) {
			return nil, fmt.Errorf("%w: %v", ledger.ErrNoSigningCapability, err)
		}
		return nil, fmt.Errorf("request accounts: %w", err)
	}
	if len(accounts) == 0 {
		backend.Close()
		return nil, fmt.Errorf("%w: wallet exposed no accounts", ledger.ErrNoSigningCapability)
	}

	return &Signer{
		Account: accounts[0],
		ChainID: new(big.Int).Set(g.params.ChainID),
		Backend: backend,
		wallet:  g.wallet,
	}, nil
}
