// Package app wires the ledger access components behind the interface the
// presentation surfaces (HTTP and CLI) consume.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/checkin"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/config"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger/retry"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/lifecycle"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/models"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/network"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/reader"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/registry"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/session"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/storage"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/submitter"
)

// Deps are the external collaborators. Nil fields get production defaults
// in New; Build uses them as given.
type Deps struct {
	Wallet  network.Wallet
	Dial    network.Dialer
	Journal storage.Repository
}

// App is the presentation-facing facade.
type App struct {
	cfg *config.Config

	gate        *network.Gate
	reader      *reader.Reader
	registry    *registry.Registry
	coordinator *checkin.Coordinator
	lifecycle   *lifecycle.Controller
	session     *session.Session
	journal     storage.Repository

	closers []func()
}

// New connects the wallet (when configured) and the journal, then builds
// the component graph.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	var deps Deps
	var closers []func()

	if cfg.WalletURL != "" {
		w, err := network.DialWallet(ctx, cfg.WalletURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect wallet: %w", err)
		}
		deps.Wallet = w
		closers = append(closers, w.Close)
		slog.Info("Wallet connected", "url", cfg.WalletURL)
	} else {
		slog.Info("No wallet configured, running read-only")
	}

	if cfg.DatabaseURL != "" {
		repo, err := storage.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, fmt.Errorf("failed to open submission journal: %w", err)
		}
		deps.Journal = repo
	} else {
		deps.Journal = storage.NewMemoryRepository(0)
	}

	a, err := Build(cfg, deps)
	if err != nil {
		deps.Journal.Close()
		for _, c := range closers {
			c()
		}
		return nil, err
	}
	a.closers = append(a.closers, closers...)
	return a, nil
}

// Build assembles the components from explicit dependencies.
func Build(cfg *config.Config, deps Deps) (*App, error) {
	contract, err := ledger.NewContract(cfg.Contract())
	if err != nil {
		return nil, fmt.Errorf("failed to bind contract: %w", err)
	}

	dial := deps.Dial
	if dial == nil {
		dial = network.DialEndpoint
	}

	gate := network.NewGate(chainParams(cfg), deps.Wallet, dial)
	rd := reader.New(gate, contract, retry.NewStrategy(cfg.Retry))

	var journal submitter.Journal
	if deps.Journal != nil {
		journal = deps.Journal
	}
	sub := submitter.New(gate, contract, journal, submitter.Config{
		PollInterval:   cfg.ReceiptPollInterval,
		ConfirmTimeout: cfg.ConfirmTimeout,
	})

	reg := registry.New(rd, cfg.ScanConcurrency)
	reg.SetMaxScan(cfg.MaxScan)

	return &App{
		cfg:         cfg,
		gate:        gate,
		reader:      rd,
		registry:    reg,
		coordinator: checkin.New(gate, rd, sub),
		lifecycle:   lifecycle.New(gate, rd, sub),
		session:     session.New(gate),
		journal:     deps.Journal,
	}, nil
}

func chainParams(cfg *config.Config) network.ChainParams {
	return network.ChainParams{
		ChainID:          new(big.Int).SetUint64(cfg.ChainID),
		ChainName:        cfg.ChainName,
		RPCURL:           cfg.RPCURL,
		CurrencyName:     cfg.CurrencyName,
		CurrencySymbol:   cfg.CurrencySymbol,
		CurrencyDecimals: cfg.CurrencyDecimals,
		ExplorerURL:      cfg.ExplorerURL,
	}
}

// Config returns the configuration the app was built with
func (a *App) Config() *config.Config {
	return a.cfg
}

// HasWallet reports whether state-changing operations are possible
func (a *App) HasWallet() bool {
	return a.gate.HasWallet()
}

// Meetings reconstructs the full meeting list.
func (a *App) Meetings(ctx context.Context) (*models.Snapshot, error) {
	return a.registry.LoadAll(ctx)
}

// ParticipantStatus reads whether a participant checked in.
func (a *App) ParticipantStatus(ctx context.Context, meetingID, participantID uint64) (models.ParticipantInfo, error) {
	return a.coordinator.QueryStatus(ctx, meetingID, participantID)
}

// CreateMeeting submits a new meeting and returns its id.
func (a *App) CreateMeeting(ctx context.Context, title string, maxParticipants uint64) (uint64, *models.Receipt, error) {
	return a.lifecycle.Create(ctx, title, maxParticipants)
}

// CheckIn records an anonymous check-in.
func (a *App) CheckIn(ctx context.Context, meetingID, participantID uint64) (*models.Receipt, error) {
	return a.coordinator.CheckIn(ctx, meetingID, participantID)
}

// EndMeeting ends a meeting once confirm agrees.
func (a *App) EndMeeting(ctx context.Context, meetingID uint64, confirm lifecycle.Confirmer) (*models.Receipt, error) {
	return a.lifecycle.End(ctx, meetingID, confirm)
}

// Submissions lists journaled submissions, newest first.
func (a *App) Submissions(ctx context.Context, limit, offset int) ([]models.Submission, error) {
	if a.journal == nil {
		return []models.Submission{}, nil
	}
	return a.journal.ListSubmissions(ctx, limit, offset)
}

// Session returns the active-account session
func (a *App) Session() *session.Session {
	return a.session
}

// Ping checks the journal
func (a *App) Ping(ctx context.Context) error {
	if a.journal == nil {
		return nil
	}
	return a.journal.Ping(ctx)
}

// Run drives the session loop, fed by wallet account notifications when a
// wallet is connected, until ctx is done.
func (a *App) Run(ctx context.Context) error {
	var changes <-chan network.AccountChange
	if a.gate.HasWallet() {
		ch, err := a.gate.WatchAccounts(ctx, a.cfg.AccountPollInterval)
		if err != nil {
			return fmt.Errorf("failed to watch wallet accounts: %w", err)
		}
		changes = ch
	}
	return a.session.Run(ctx, changes)
}

// Close releases the journal and the wallet connection.
func (a *App) Close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			slog.Error("Failed to close submission journal", "error", err)
		}
	}
	for _, c := range a.closers {
		c()
	}
}
