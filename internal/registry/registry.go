// Package registry reconstructs the full set of meetings from the ledger.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/metrics"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/models"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/reader"
)

// DefaultMaxScan bounds how many records one load reads.
const DefaultMaxScan = 10_000

// Registry scans ids [1, nextId) on every load and hands out an immutable
// snapshot. Nothing is cached between loads.
type Registry struct {
	reader      *reader.Reader
	concurrency int
	maxScan     uint64
	now         func() time.Time
}

// New creates a Registry issuing at most concurrency detail reads at once.
func New(rd *reader.Reader, concurrency int) *Registry {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Registry{
		reader:      rd,
		concurrency: concurrency,
		maxScan:     DefaultMaxScan,
		now:         time.Now,
	}
}

// SetMaxScan sets the largest id count a load accepts from nextMeetingId.
func (r *Registry) SetMaxScan(n uint64) {
	if n > 0 {
		r.maxScan = n
	}
}

// SetClock overrides the clock used to derive active durations
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// LoadAll reads every meeting and the ledger's active index.
//
// When no contract is deployed the snapshot is empty and Available is false.
// Failing to determine nextId returns ledger.ErrRegistryUnavailable. A record
// that cannot be read is replaced by a placeholder and never fails the load.
func (r *Registry) LoadAll(ctx context.Context) (*models.Snapshot, error) {
	start := time.Now()
	now := r.now()

	h, err := r.reader.Handle(ctx)
	if errors.Is(err, ledger.ErrContractUnavailable) {
		return &models.Snapshot{
			Meetings:  []models.Meeting{},
			ActiveIDs: []uint64{},
			LoadedAt:  now,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ledger.ErrRegistryUnavailable, err)
	}
	defer h.Close()

	next, err := h.NextMeetingID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read nextMeetingId: %w", ledger.ErrRegistryUnavailable, err)
	}

	var count uint64
	if next > 1 {
		count = next - 1
	}
	if count > r.maxScan {
		return nil, fmt.Errorf("%w: nextMeetingId %d exceeds scan limit %d", ledger.ErrRegistryUnavailable, next, r.maxScan)
	}

	// each id owns its slot, so issuance order does not matter
	meetings := make([]models.Meeting, count)
	var (
		activeIDs []uint64
		activeErr error
	)

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	g.Go(func() error {
		activeIDs, activeErr = h.ActiveMeetings(ctx)
		return nil
	})
	for id := uint64(1); id <= count; id++ {
		g.Go(func() error {
			meetings[id-1] = r.loadMeeting(ctx, h, id, now)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshot := &models.Snapshot{
		Meetings:  meetings,
		NextID:    next,
		Available: true,
		LoadedAt:  now,
	}

	if activeErr != nil {
		slog.Warn("Failed to read active meeting index, deriving from records",
			"error", activeErr,
		)
		snapshot.ActiveIDs = deriveActive(meetings)
		snapshot.ActiveDerived = true
	} else {
		snapshot.ActiveIDs = append([]uint64{}, activeIDs...)
	}

	metrics.RegistryLoadDuration.Observe(time.Since(start).Seconds())
	metrics.Meetings.Set(float64(len(meetings)))
	metrics.ActiveMeetings.Set(float64(len(snapshot.ActiveIDs)))

	slog.Debug("Meeting registry loaded",
		"meetings", len(meetings),
		"active", len(snapshot.ActiveIDs),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return snapshot, nil
}

func (r *Registry) loadMeeting(ctx context.Context, h *reader.Handle, id uint64, now time.Time) models.Meeting {
	details, err := h.MeetingDetails(ctx, id)
	if err != nil {
		metrics.PlaceholderRecords.Inc()
		slog.Warn("Failed to load meeting, substituting placeholder",
			"meeting_id", id,
			"error", err,
		)
		return models.PlaceholderMeeting(id)
	}

	m, err := toMeeting(id, details, now)
	if err != nil {
		metrics.PlaceholderRecords.Inc()
		slog.Warn("Inconsistent meeting record, substituting placeholder",
			"meeting_id", id,
			"error", err,
		)
		return models.PlaceholderMeeting(id)
	}

	slog.Debug("Meeting loaded", "meeting_id", id, "status", m.Status, "participants", m.ParticipantCount)
	return m
}

func toMeeting(id uint64, d ledger.MeetingDetails, now time.Time) (models.Meeting, error) {
	status := models.Status(d.Status)
	if status != models.StatusActive && status != models.StatusEnded {
		return models.Meeting{}, fmt.Errorf("unknown status %d", d.Status)
	}
	if !d.StartTime.IsInt64() || !d.EndTime.IsInt64() {
		return models.Meeting{}, fmt.Errorf("timestamp out of range")
	}
	if !d.MaxParticipants.IsUint64() || !d.ParticipantCount.IsUint64() {
		return models.Meeting{}, fmt.Errorf("count out of range")
	}

	m := models.Meeting{
		ID:               id,
		Creator:          d.Creator,
		Title:            d.Title,
		StartTime:        d.StartTime.Int64(),
		EndTime:          d.EndTime.Int64(),
		MaxParticipants:  d.MaxParticipants.Uint64(),
		ParticipantCount: d.ParticipantCount.Uint64(),
		Status:           status,
	}
	m.DurationSeconds = models.DeriveDuration(m.Status, m.StartTime, m.EndTime, now)
	return m, nil
}

func deriveActive(meetings []models.Meeting) []uint64 {
	ids := []uint64{}
	for _, m := range meetings {
		if !m.Placeholder && m.Active() {
			ids = append(ids, m.ID)
		}
	}
	return ids
}
