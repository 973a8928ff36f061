package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/models"
)

type formatter struct {
	w io.Writer
}

func newFormatter(w io.Writer) *formatter {
	return &formatter{w: w}
}

func (f *formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *formatter) Stats(st models.Stats) {
	fmt.Fprintf(f.w, "📊 %d meetings, %d active, %d participants (%.1f per meeting)\n\n",
		st.TotalMeetings, st.ActiveMeetings, st.TotalParticipants, st.AverageParticipants)
}

func (f *formatter) Meetings(meetings []models.Meeting) {
	tw := tabwriter.NewWriter(f.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tPARTICIPANTS\tDURATION\tCREATOR")
	for _, m := range meetings {
		status := m.Status.String()
		if m.Placeholder {
			status = "unreadable"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\t%s\t%s\n",
			m.ID, m.Title, status, m.ParticipantCount, m.MaxParticipants,
			m.Duration().Round(time.Second), shortAddress(m.Creator.Hex()))
	}
	tw.Flush()
}

func (f *formatter) Receipt(r *models.Receipt) {
	fmt.Fprintf(f.w, "   tx %s in block %d (gas %d)\n", r.TxHash.Hex(), r.BlockNumber, r.GasUsed)
}

func shortAddress(addr string) string {
	if len(addr) < 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
