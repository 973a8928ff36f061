package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/app"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/config"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/session"
)

const version = "1.0.0"

type Dependencies struct {
	App    *app.App
	Config *config.Config
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "checkin",
		Short:         "Anonymous meeting check-in on an EVM ledger",
		Long:          "Create meetings, check in anonymously with a numeric participant id, and end meetings recorded on an EVM ledger contract.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version

	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewMeetingsCmd(deps))
	rootCmd.AddCommand(NewStatusCmd(deps))
	rootCmd.AddCommand(NewCreateCmd(deps))
	rootCmd.AddCommand(NewCheckInCmd(deps))
	rootCmd.AddCommand(NewEndCmd(deps))
	rootCmd.AddCommand(NewAccountsCmd(deps))

	return rootCmd
}

func parseMeetingID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: meeting id must be a positive integer, got %q", ledger.ErrInvalidArgument, s)
	}
	return id, nil
}

// startSession runs the session loop in the background and returns once it
// accepts events. The returned function stops it.
func startSession(ctx context.Context, a *app.App) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	stop := func() {
		cancel()
		<-done
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := a.Session().Disconnect(ctx)
		if err == nil {
			return stop, nil
		}
		if !errors.Is(err, session.ErrNotRunning) || time.Now().After(deadline) {
			stop()
			return nil, err
		}
		select {
		case err := <-done:
			cancel()
			return nil, err
		case <-time.After(10 * time.Millisecond):
		}
	}
}
