package network

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/metrics"
)

// AccountChange is one wallet account notification.
type AccountChange struct {
	Accounts []common.Address
	At       time.Time
}

// Account returns the active account, or the zero address when the wallet
// exposes none.
func (c AccountChange) Account() common.Address {
	if len(c.Accounts) == 0 {
		return common.Address{}
	}
	return c.Accounts[0]
}

// WatchAccounts streams account changes until ctx is done. The current
// accounts are delivered first, then one event per observed change.
func (g *Gate) WatchAccounts(ctx context.Context, interval time.Duration) (<-chan AccountChange, error) {
	if g.wallet == nil {
		return nil, ledger.ErrNoSigningCapability
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}

	out := make(chan AccountChange)
	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last []common.Address
		first := true

		for {
			accounts, err := g.wallet.Accounts(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("Failed to poll wallet accounts", "error", err)
			} else if first || !slices.Equal(last, accounts) {
				if !first {
					metrics.AccountChanges.Inc()
				}
				first = false
				last = slices.Clone(accounts)

				select {
				case out <- AccountChange{Accounts: slices.Clone(accounts), At: time.Now()}:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out, nil
}
