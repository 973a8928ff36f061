package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/session"
)

func NewAccountsCmd(deps *Dependencies) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Connect the wallet and show the active account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(cmd.OutOrStdout())
			ctx := cmd.Context()

			stop, err := startSession(ctx, deps.App)
			if err != nil {
				return err
			}
			defer stop()

			sess := deps.App.Session()
			updates, unsubscribe := sess.Subscribe()
			defer unsubscribe()

			st, err := sess.Connect(ctx)
			if err != nil {
				return err
			}
			formatter.Success(fmt.Sprintf("Active account %s (session %s)", st.Account.Hex(), st.ID))

			if !watch {
				return nil
			}

			formatter.Info("Watching for account changes, press Ctrl+C to stop")
			for {
				select {
				case <-ctx.Done():
					return nil
				case st, ok := <-updates:
					if !ok {
						return nil
					}
					if st.LastEvent != session.EventAccountsChanged {
						continue
					}
					if !st.Connected {
						formatter.Warning("Wallet disconnected")
						continue
					}
					formatter.Info(fmt.Sprintf("Active account changed to %s", st.Account.Hex()))
				}
			}
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and report account changes")

	return cmd
}
