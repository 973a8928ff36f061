package network

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPCWallet talks to an EIP-1193 compatible wallet exposed over JSON-RPC
// (a desktop wallet or remote signer).
type RPCWallet struct {
	url    string
	client *rpc.Client
}

// DialWallet connects to the wallet endpoint
func DialWallet(ctx context.Context, url string) (*RPCWallet, error) {
	if url == "" {
		return nil, fmt.Errorf("wallet endpoint is empty")
	}
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet: %w", err)
	}
	return &RPCWallet{url: url, client: client}, nil
}

// ChainID returns the wallet's current network
func (w *RPCWallet) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := w.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return nil, fmt.Errorf("eth_chainId: %w", err)
	}
	return (*big.Int)(&id), nil
}

// SwitchChain asks the wallet to change network
func (w *RPCWallet) SwitchChain(ctx context.Context, chainID *big.Int) error {
	params := map[string]string{"chainId": hexutil.EncodeBig(chainID)}
	if err := w.client.CallContext(ctx, nil, "wallet_switchEthereumChain", params); err != nil {
		return fmt.Errorf("wallet_switchEthereumChain: %w", err)
	}
	return nil
}

type addChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	NativeCurrency    nativeCurrency `json:"nativeCurrency"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

type nativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// AddChain asks the wallet to register a network
func (w *RPCWallet) AddChain(ctx context.Context, p ChainParams) error {
	params := addChainParams{
		ChainID:   hexutil.EncodeBig(p.ChainID),
		ChainName: p.ChainName,
		RPCURLs:   []string{p.RPCURL},
		NativeCurrency: nativeCurrency{
			Name:     p.CurrencyName,
			Symbol:   p.CurrencySymbol,
			Decimals: p.CurrencyDecimals,
		},
	}
	if p.ExplorerURL != "" {
		params.BlockExplorerURLs = []string{p.ExplorerURL}
	}
	if err := w.client.CallContext(ctx, nil, "wallet_addEthereumChain", params); err != nil {
		return fmt.Errorf("wallet_addEthereumChain: %w", err)
	}
	return nil
}

// Accounts returns the currently exposed accounts without prompting
func (w *RPCWallet) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := w.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	return accounts, nil
}

// RequestAccounts asks the user to expose accounts
func (w *RPCWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := w.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, fmt.Errorf("eth_requestAccounts: %w", err)
	}
	return accounts, nil
}

type sendTxArgs struct {
	From common.Address `json:"from"`
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

// SendTransaction has the wallet sign and broadcast the request
func (w *RPCWallet) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	var hash common.Hash
	args := sendTxArgs{From: req.From, To: req.To, Data: req.Data}
	if err := w.client.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendTransaction: %w", err)
	}
	return hash, nil
}

// Connect opens a fresh client on the wallet endpoint. Handles opened
// before a chain switch must not be reused.
func (w *RPCWallet) Connect(ctx context.Context) (Backend, error) {
	client, err := ethclient.DialContext(ctx, w.url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect through wallet: %w", err)
	}
	return client, nil
}

// Close releases the wallet connection
func (w *RPCWallet) Close() {
	w.client.Close()
}
