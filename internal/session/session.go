// Package session tracks the active wallet account. Explicit actions and
// wallet notifications are applied by one event loop.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/network"
)

// ErrNotRunning is returned when an action is sent to a stopped session.
var ErrNotRunning = errors.New("session event loop is not running")

// EventKind names what changed the session
type EventKind string

const (
	EventConnect         EventKind = "connect"
	EventDisconnect      EventKind = "disconnect"
	EventAccountsChanged EventKind = "accounts_changed"
)

// State is an immutable view of the session.
type State struct {
	ID        string         `json:"session_id"`
	Connected bool           `json:"connected"`
	Account   common.Address `json:"account"`
	LastEvent EventKind      `json:"last_event,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type event struct {
	kind     EventKind
	accounts []common.Address
	at       time.Time
	applied  chan State
}

// Session owns the active account.
type Session struct {
	id     string
	gate   *network.Gate
	events chan event

	mu        sync.RWMutex
	state     State
	listeners map[int]chan State
	nextID    int
	running   bool
}

// New creates a session with a fresh id
func New(gate *network.Gate) *Session {
	id := uuid.NewString()
	return &Session{
		id:        id,
		gate:      gate,
		events:    make(chan event, 16),
		state:     State{ID: id, UpdatedAt: time.Now()},
		listeners: make(map[int]chan State),
	}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// State returns the current state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe returns a channel receiving every new state and a function that
// cancels the subscription. Slow subscribers miss intermediate states.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan State, 8)
	s.listeners[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if l, ok := s.listeners[id]; ok {
				delete(s.listeners, id)
				close(l)
			}
		})
	}
}

// Connect requests account access through the gate and makes the first
// account active.
func (s *Session) Connect(ctx context.Context) (State, error) {
	signer, err := s.gate.Signer(ctx)
	if err != nil {
		return s.State(), err
	}
	account := signer.Account
	signer.Close()

	return s.dispatch(ctx, event{kind: EventConnect, accounts: []common.Address{account}})
}

// Disconnect forgets the active account
func (s *Session) Disconnect(ctx context.Context) (State, error) {
	return s.dispatch(ctx, event{kind: EventDisconnect})
}

func (s *Session) dispatch(ctx context.Context, ev event) (State, error) {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		return s.State(), ErrNotRunning
	}

	ev.at = time.Now()
	ev.applied = make(chan State, 1)

	select {
	case s.events <- ev:
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}

	select {
	case st := <-ev.applied:
		return st, nil
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

// Run applies events until ctx is done. changes may be nil when no wallet
// notifications are available.
func (s *Session) Run(ctx context.Context, changes <-chan network.AccountChange) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		for id, l := range s.listeners {
			close(l)
			delete(s.listeners, id)
		}
		s.mu.Unlock()
	}()

	slog.Info("Session started", "session_id", s.id)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Session stopped", "session_id", s.id)
			return ctx.Err()

		case ev := <-s.events:
			st := s.apply(ev)
			ev.applied <- st

		case change, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			s.apply(event{kind: EventAccountsChanged, accounts: change.Accounts, at: change.At})
		}
	}
}

func (s *Session) apply(ev event) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := reduce(s.state, ev)
	if next == s.state {
		return next
	}
	s.state = next

	slog.Info("Session updated",
		"session_id", s.id,
		"event", ev.kind,
		"connected", next.Connected,
		"account", next.Account.Hex(),
	)

	for _, l := range s.listeners {
		select {
		case l <- next:
		default:
			slog.Debug("Session listener is behind, dropping state", "session_id", s.id)
		}
	}
	return next
}

// reduce derives the next state. It is the only place the state changes.
func reduce(st State, ev event) State {
	switch ev.kind {
	case EventConnect:
		if len(ev.accounts) == 0 {
			return st
		}
		st.Connected = true
		st.Account = ev.accounts[0]

	case EventDisconnect:
		if !st.Connected {
			return st
		}
		st.Connected = false
		st.Account = common.Address{}

	case EventAccountsChanged:
		if !st.Connected {
			return st
		}
		if len(ev.accounts) == 0 {
			st.Connected = false
			st.Account = common.Address{}
		} else if ev.accounts[0] == st.Account {
			return st
		} else {
			st.Account = ev.accounts[0]
		}

	default:
		return st
	}

	st.LastEvent = ev.kind
	st.UpdatedAt = ev.at
	return st
}
