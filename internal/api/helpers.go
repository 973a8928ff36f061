package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/checkin"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNoSigningCapability):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrNotCreator):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrMeetingNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrNotConfirmed):
		return http.StatusPreconditionRequired
	case errors.Is(err, ledger.ErrNetworkRejected):
		return http.StatusPreconditionFailed
	case ledger.IsRejection(err):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrRegistryUnavailable),
		errors.Is(err, ledger.ErrStatusUnavailable),
		errors.Is(err, ledger.ErrContractUnavailable),
		errors.Is(err, ledger.ErrWrongNetwork):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrSubmissionFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// parseMeetingID reads the {id} path value
func parseMeetingID(r *http.Request) (uint64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: meeting id must be a positive integer, got %q", ledger.ErrInvalidArgument, raw)
	}
	return id, nil
}

// parseParticipantID reads the {pid} path value
func parseParticipantID(r *http.Request) (uint64, error) {
	return checkin.ParseParticipantID(r.PathValue("pid"))
}

// intParam parses an integer query parameter within [lo, hi], falling back
// to def when absent or out of range.
func intParam(r *http.Request, name string, def, lo, hi int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return def
	}
	return v
}
