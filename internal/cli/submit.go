package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/checkin"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/lifecycle"
)

func NewCreateCmd(deps *Dependencies) *cobra.Command {
	var maxParticipants uint64

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a meeting",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(cmd.OutOrStdout())
			title := strings.Join(args, " ")

			formatter.Info("Waiting for the wallet and ledger confirmation...")
			id, receipt, err := deps.App.CreateMeeting(cmd.Context(), title, maxParticipants)
			if err != nil {
				return err
			}
			formatter.Success(fmt.Sprintf("Meeting %d created: %s", id, title))
			formatter.Receipt(receipt)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&maxParticipants, "max", 0, "maximum number of participants")
	cmd.MarkFlagRequired("max")

	return cmd
}

func NewCheckInCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "check-in <meeting-id> <participant-id>",
		Short: "Check in anonymously",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(cmd.OutOrStdout())

			meetingID, err := parseMeetingID(args[0])
			if err != nil {
				return err
			}
			participantID, err := checkin.ParseParticipantID(args[1])
			if err != nil {
				return err
			}

			formatter.Info("Waiting for the wallet and ledger confirmation...")
			receipt, err := deps.App.CheckIn(cmd.Context(), meetingID, participantID)
			if err != nil {
				return err
			}
			formatter.Success(fmt.Sprintf("Checked in to meeting %d", meetingID))
			formatter.Receipt(receipt)
			return nil
		},
	}
}

func NewEndCmd(deps *Dependencies) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "end <meeting-id>",
		Short: "End a meeting you created",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(cmd.OutOrStdout())

			meetingID, err := parseMeetingID(args[0])
			if err != nil {
				return err
			}

			confirm := lifecycle.Confirmed
			if !yes {
				in := bufio.NewReader(cmd.InOrStdin())
				confirm = lifecycle.ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", prompt)
					answer, err := in.ReadString('\n')
					if err != nil && answer == "" {
						return false, err
					}
					return isYes(answer), nil
				})
			}

			receipt, err := deps.App.EndMeeting(cmd.Context(), meetingID, confirm)
			if err != nil {
				return err
			}
			formatter.Success(fmt.Sprintf("Meeting %d ended", meetingID))
			formatter.Receipt(receipt)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}
