package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/checkin"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/models"
)

func NewMeetingsCmd(deps *Dependencies) *cobra.Command {
	var status string
	var popular int

	cmd := &cobra.Command{
		Use:   "meetings",
		Short: "List meetings with attendance aggregates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(cmd.OutOrStdout())

			filter, ok := models.ParseStatusFilter(status)
			if !ok {
				return fmt.Errorf("--status must be one of all, active, ended")
			}

			snap, err := deps.App.Meetings(cmd.Context())
			if err != nil {
				return err
			}
			if !snap.Available {
				formatter.Warning("No contract found at the configured address")
				return nil
			}
			if snap.ActiveDerived {
				formatter.Warning("Active meeting index unavailable, derived from records")
			}

			formatter.Stats(snap.Stats())

			meetings := snap.Filter(filter)
			if popular > 0 {
				meetings = snap.Popular(popular)
			}
			if len(meetings) == 0 {
				formatter.Info("No meetings found")
				return nil
			}
			formatter.Meetings(meetings)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "all", "filter by status: all, active, ended")
	cmd.Flags().IntVar(&popular, "popular", 0, "show the N most attended active meetings")

	return cmd
}

func NewStatusCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "status <meeting-id> <participant-id>",
		Short: "Show whether a participant checked in",
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

			info, err := deps.App.ParticipantStatus(cmd.Context(), meetingID, participantID)
			if err != nil {
				return err
			}
			if info.HasCheckedIn {
				formatter.Success(fmt.Sprintf("Participant %d is checked in to meeting %d", participantID, meetingID))
			} else {
				formatter.Info(fmt.Sprintf("Participant %d has not checked in to meeting %d", participantID, meetingID))
			}
			return nil
		},
	}
}
