package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/api"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/app"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/config"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger/ledgertest"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/models"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/network"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/storage"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ws"
)

var organizer = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

func newServer(t *testing.T, l *ledgertest.Ledger, withWallet bool) *api.Server {
	t.Helper()

	cfg := config.Default()
	cfg.ContractAddress = ledgertest.DefaultAddress.Hex()
	cfg.ReceiptPollInterval = time.Millisecond
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = 2 * time.Millisecond

	deps := app.Deps{
		Dial: func(ctx context.Context, url string) (network.Backend, error) {
			return l.Backend(), nil
		},
		Journal: storage.NewMemoryRepository(0),
	}
	if withWallet {
		deps.Wallet = ledgertest.NewWallet(l, organizer, config.SepoliaChainID)
	}

	a, err := app.Build(cfg, deps)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	t.Cleanup(a.Close)
	return api.NewServer(0, a)
}

func do(t *testing.T, srv *api.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func TestMeetingFlow(t *testing.T) {
	l := ledgertest.New(config.SepoliaChainID)
	srv := newServer(t, l, true)

	rec := do(t, srv, http.MethodPost, "/meetings", `{"title":"Standup","max_participants":2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /meetings = %d: %s", rec.Code, rec.Body)
	}
	var created models.CreateMeetingResponse
	decode(t, rec, &created)
	if created.ID != 1 || !strings.HasPrefix(created.TxHash, "0x") {
		t.Fatalf("created = %+v", created)
	}

	if rec := do(t, srv, http.MethodPost, "/meetings/1/checkin", `{"participant_id":"42"}`); rec.Code != http.StatusOK {
		t.Fatalf("check-in = %d: %s", rec.Code, rec.Body)
	}
	if rec := do(t, srv, http.MethodPost, "/meetings/1/checkin", `{"participant_id":"42"}`); rec.Code != http.StatusConflict {
		t.Errorf("repeat check-in = %d, want 409", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/meetings/1/participants/42", "")
	var info models.ParticipantInfo
	decode(t, rec, &info)
	if !info.HasCheckedIn {
		t.Errorf("participant status = %+v", info)
	}

	rec = do(t, srv, http.MethodGet, "/meetings?status=active", "")
	var list models.MeetingsResponse
	decode(t, rec, &list)
	if len(list.Meetings) != 1 || list.Stats.TotalParticipants != 1 || !list.Available {
		t.Errorf("meetings = %+v", list)
	}

	if rec := do(t, srv, http.MethodPost, "/meetings/1/end", `{"confirm":false}`); rec.Code != http.StatusPreconditionRequired {
		t.Errorf("unconfirmed end = %d, want 428", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/meetings/1/end", `{"confirm":true}`); rec.Code != http.StatusOK {
		t.Fatalf("end = %d: %s", rec.Code, rec.Body)
	}
	if rec := do(t, srv, http.MethodPost, "/meetings/1/checkin", `{"participant_id":"43"}`); rec.Code != http.StatusConflict {
		t.Errorf("check-in after end = %d, want 409", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/meetings?status=ended", "")
	list = models.MeetingsResponse{}
	decode(t, rec, &list)
	if len(list.Meetings) != 1 || list.Meetings[0].Status != models.StatusEnded {
		t.Errorf("ended meetings = %+v", list.Meetings)
	}

	rec = do(t, srv, http.MethodGet, "/submissions?limit=10", "")
	var subs models.SubmissionListResponse
	decode(t, rec, &subs)
	if len(subs.Submissions) != 3 {
		t.Errorf("submissions = %d, want 3", len(subs.Submissions))
	}
}

func TestErrorStatus(t *testing.T) {
	l := ledgertest.New(config.SepoliaChainID)
	l.Seed(organizer, "Standup", 5)
	srv := newServer(t, l, true)
	readOnly := newServer(t, l, false)

	tests := []struct {
		name   string
		srv    *api.Server
		method string
		path   string
		body   string
		want   int
	}{
		{name: "bad status filter", srv: srv, method: http.MethodGet, path: "/meetings?status=pending", want: http.StatusBadRequest},
		{name: "bad meeting id", srv: srv, method: http.MethodGet, path: "/meetings/abc/participants/1", want: http.StatusBadRequest},
		{name: "bad participant id", srv: srv, method: http.MethodPost, path: "/meetings/1/checkin", body: `{"participant_id":"-1"}`, want: http.StatusBadRequest},
		{name: "malformed body", srv: srv, method: http.MethodPost, path: "/meetings", body: `{`, want: http.StatusBadRequest},
		{name: "empty title", srv: srv, method: http.MethodPost, path: "/meetings", body: `{"title":"","max_participants":3}`, want: http.StatusBadRequest},
		{name: "unknown meeting", srv: srv, method: http.MethodPost, path: "/meetings/9/checkin", body: `{"participant_id":"1"}`, want: http.StatusNotFound},
		{name: "no wallet", srv: readOnly, method: http.MethodPost, path: "/meetings/1/checkin", body: `{"participant_id":"1"}`, want: http.StatusUnauthorized},
		{name: "unknown route", srv: srv, method: http.MethodGet, path: "/contracts", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, tt.srv, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("%s %s = %d, want %d: %s", tt.method, tt.path, rec.Code, tt.want, rec.Body)
			}
			var body models.ErrorResponse
			decode(t, rec, &body)
			if body.Code != tt.want || body.Error != http.StatusText(tt.want) {
				t.Errorf("error body = %+v", body)
			}
		})
	}
}

func TestUnavailableLedger(t *testing.T) {
	l := ledgertest.New(config.SepoliaChainID)
	l.Seed(organizer, "Standup", 5)
	srv := newServer(t, l, false)

	l.FailNext("nextMeetingId", errors.New("malformed response"))
	if rec := do(t, srv, http.MethodGet, "/meetings", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /meetings = %d, want 503", rec.Code)
	}

	l.Undeploy()
	rec := do(t, srv, http.MethodGet, "/meetings/stats", "")
	var stats models.Stats
	decode(t, rec, &stats)
	if rec.Code != http.StatusOK || stats.TotalMeetings != 0 {
		t.Errorf("stats without contract = %d %+v", rec.Code, stats)
	}
	if rec := do(t, srv, http.MethodGet, "/meetings/1/participants/1", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("participant status = %d, want 503", rec.Code)
	}
}

func TestPopular(t *testing.T) {
	l := ledgertest.New(config.SepoliaChainID)
	for i := 0; i < 5; i++ {
		l.Seed(organizer, fmt.Sprintf("Meeting %d", i+1), 10)
	}
	srv := newServer(t, l, false)

	rec := do(t, srv, http.MethodGet, "/meetings/popular?limit=2", "")
	var body struct {
		Meetings []models.Meeting `json:"meetings"`
		Total    int              `json:"total"`
	}
	decode(t, rec, &body)
	if body.Total != 2 || len(body.Meetings) != 2 {
		t.Errorf("popular = %+v", body)
	}
}

func TestHealthAndIndex(t *testing.T) {
	l := ledgertest.New(config.SepoliaChainID)
	srv := newServer(t, l, false)

	if rec := do(t, srv, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/", ""); rec.Code != http.StatusOK {
		t.Errorf("GET / = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /metrics = %d", rec.Code)
	}
}

func TestWebSocketStream(t *testing.T) {
	l := ledgertest.New(config.SepoliaChainID)
	l.Seed(organizer, "Standup", 5)
	srv := newServer(t, l, true)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first ws.Message
	if err := conn.ReadJSON(&first); err != nil || first.Type != ws.TypeSession {
		t.Fatalf("first message = %+v, %v", first, err)
	}

	// the hub registers the client after the first write
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Post(ts.URL+"/meetings/1/checkin", "application/json", strings.NewReader(`{"participant_id":"7"}`))
	if err != nil {
		t.Fatalf("POST check-in error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("check-in = %d", resp.StatusCode)
	}

	var next ws.Message
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	if next.Type != ws.TypeCheckIn {
		t.Errorf("message type = %q, want %q", next.Type, ws.TypeCheckIn)
	}
}
