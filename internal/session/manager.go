// Package session owns the lifecycle of the one temporary mailbox: its
// creation, authentication, countdown, polling and teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/dragonmail/internal/mailtm"
	"github.com/nhle/dragonmail/internal/model"
	"github.com/nhle/dragonmail/internal/store"
	bgsync "github.com/nhle/dragonmail/internal/sync"
)

const (
	defaultTickInterval = time.Second

	// expiryDeleteTimeout bounds the best-effort remote delete on expiry.
	expiryDeleteTimeout = 15 * time.Second

	// storeClearTimeout bounds clearing the stored account on teardown.
	storeClearTimeout = 5 * time.Second
)

// Manager is the session state machine. Lifecycle entry points (generate,
// clear, delete, settings, restore, expiry) are serialized; network calls
// never run while the state lock is held.
type Manager struct {
	provider Provider
	store    store.Store
	log      zerolog.Logger
	now      func() time.Time

	tickInterval   time.Duration
	deleteOnExpiry bool

	opMu       gosync.Mutex
	generating atomic.Bool
	refreshing atomic.Bool

	mu        gosync.Mutex
	state     State
	epoch     uint64
	countdown *bgsync.Task
	poller    *bgsync.Poller
	subs      map[int]chan State
	nextSub   int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTickInterval sets the countdown granularity.
func WithTickInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.tickInterval = d
		}
	}
}

// WithDeleteOnExpiry controls whether an expiring account is deleted on
// the provider before local teardown.
func WithDeleteOnExpiry(on bool) Option {
	return func(m *Manager) { m.deleteOnExpiry = on }
}

// WithDefaultSettings sets the settings used until Restore loads the
// persisted ones.
func WithDefaultSettings(s model.Settings) Option {
	return func(m *Manager) { m.state.Settings = s.Normalize(model.DefaultSettings()) }
}

// NewManager creates an idle manager.
func NewManager(provider Provider, st store.Store, opts ...Option) *Manager {
	m := &Manager{
		provider:       provider,
		store:          st,
		log:            zerolog.Nop(),
		now:            time.Now,
		tickInterval:   defaultTickInterval,
		deleteOnExpiry: true,
		subs:           make(map[int]chan State),
	}
	m.state.Settings = model.DefaultSettings()
	m.state.Messages = []model.Message{}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Limits = model.DefaultAPILimits(m.now())
	m.poller = bgsync.NewPoller(m.pollMessages, m.log)
	return m
}

// State returns a snapshot of the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	s := m.snapshotLocked()
	m.mu.Unlock()

	s.Sync = m.poller.Status()
	return s
}

func (m *Manager) snapshotLocked() State {
	s := m.state.clone()
	if s.Account != nil {
		s.TimeRemaining = s.Account.Remaining(m.now())
	} else {
		s.TimeRemaining = 0
	}
	return s
}

// Subscribe returns a channel receiving a snapshot after every change.
// Slow readers only see the latest snapshot. Call cancel to unsubscribe.
func (m *Manager) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// publish sends the current snapshot to every subscriber without blocking.
func (m *Manager) publish() {
	s := m.State()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
			// Replace the unread snapshot with the newer one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

func (m *Manager) update(fn func(s *State)) {
	m.mu.Lock()
	fn(&m.state)
	m.mu.Unlock()
	m.publish()
}

// current returns the live account copy and the epoch it belongs to.
func (m *Manager) current() (*model.Account, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Account == nil {
		return nil, m.epoch
	}
	acc := *m.state.Account
	return &acc, m.epoch
}

// Restore loads settings and the stored account at startup. A stored
// account that is unexpired is re-authenticated silently; anything else
// is cleared.
func (m *Manager) Restore(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	settings := m.store.GetSettings(ctx)
	m.update(func(s *State) { s.Settings = settings })

	acc, err := m.store.GetAccount(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("reading stored account")
		m.teardown(ctx)
		return nil
	}
	if acc == nil {
		return nil
	}
	if acc.Expired(m.now()) {
		m.log.Info().Str("address", acc.Address).Msg("stored account expired")
		m.teardown(ctx)
		return nil
	}

	m.update(func(s *State) { s.Phase = PhaseAuthenticating })
	m.provider.SetCredentials(acc.Address, acc.Password)
	token, err := m.provider.Authenticate(ctx, acc.Address, acc.Password)
	if err != nil {
		m.log.Warn().Err(err).Str("address", acc.Address).Msg("restoring session")
		m.teardown(ctx)
		return fmt.Errorf("restoring %s: %w", acc.Address, err)
	}

	acc.Token = token
	if err := m.store.SaveAccount(ctx, *acc); err != nil {
		m.log.Warn().Err(err).Msg("persisting refreshed token")
	}
	m.activate(*acc)
	m.log.Info().Str("address", acc.Address).Msg("session restored")
	return nil
}

// GenerateEmail tears down any active account, then creates and
// authenticates a new one. On any failure the session is left empty.
// Concurrent calls fail fast with ErrBusy.
func (m *Manager) GenerateEmail(ctx context.Context) (*model.Account, error) {
	if !m.generating.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer m.generating.Store(false)

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if acc, _ := m.current(); acc != nil {
		m.log.Info().Str("address", acc.Address).Msg("replacing active account")
		m.teardown(ctx)
	}

	m.update(func(s *State) {
		s.Phase = PhaseCreating
		s.IsLoading = true
		s.Err = nil
	})

	creds, err := m.provider.CreateAccount(ctx)
	if err != nil {
		return nil, m.failGenerate(ctx, err)
	}

	m.update(func(s *State) { s.Phase = PhaseAuthenticating })
	if _, err := m.provider.Authenticate(ctx, creds.Address, creds.Password); err != nil {
		return nil, m.failGenerate(ctx, err)
	}
	token := m.provider.Token()
	if token == "" {
		return nil, m.failGenerate(ctx, errors.New("provider issued no token"))
	}

	m.mu.Lock()
	minutes := m.state.Settings.ExpirationMinutes
	m.mu.Unlock()

	createdAt := m.now().UnixMilli()
	acc := model.Account{
		ID:        creds.ID,
		Address:   creds.Address,
		Password:  creds.Password,
		Username:  model.UsernameOf(creds.Address),
		Token:     token,
		CreatedAt: createdAt,
		ExpiresAt: model.ExpiresAtFor(createdAt, minutes),
	}

	if err := m.store.SaveAccount(ctx, acc); err != nil {
		m.log.Warn().Err(err).Msg("persisting new account")
	}
	m.activate(acc)

	limits := m.provider.Limits(ctx)
	m.update(func(s *State) { s.Limits = limits })

	m.log.Info().
		Str("address", acc.Address).
		Int("minutes", minutes).
		Msg("email generated")
	return &acc, nil
}

func (m *Manager) failGenerate(ctx context.Context, err error) error {
	m.log.Warn().Err(err).Msg("email generation failed")
	m.teardown(ctx)
	m.update(func(s *State) { s.Err = err })
	return err
}

// activate makes acc the live account and starts its timers.
func (m *Manager) activate(acc model.Account) {
	m.mu.Lock()
	m.epoch++
	m.state.Account = &acc
	m.state.Phase = PhaseActive
	m.state.Messages = []model.Message{}
	m.state.SelectedMessage = nil
	m.state.IsLoading = false
	m.state.IsViewing = false
	m.state.Err = nil
	m.state.ViewErr = nil
	m.mu.Unlock()

	m.restartTimers()
	m.publish()
}

// restartTimers cancels the countdown and polling of the current epoch
// and schedules fresh ones. At most one countdown is ever live.
func (m *Manager) restartTimers() {
	m.mu.Lock()
	epoch := m.epoch
	interval := time.Duration(m.state.Settings.PollingIntervalSeconds) * time.Second
	m.countdown.Cancel()
	m.countdown = bgsync.Schedule(m.tickInterval, m.tickInterval, func() { m.tick(epoch) })
	m.mu.Unlock()

	m.poller.Start(interval)
}

// Tick recomputes the remaining time now and tears the session down when
// it has run out.
func (m *Manager) Tick() {
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()
	m.tick(epoch)
}

func (m *Manager) tick(epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch || m.state.Account == nil {
		m.mu.Unlock()
		return
	}
	remaining := m.state.Account.Remaining(m.now())
	m.state.TimeRemaining = remaining
	m.mu.Unlock()

	if remaining > 0 {
		m.publish()
		return
	}
	m.expire(epoch)
}

// expire runs the Expiring phase: best-effort remote delete, then teardown.
func (m *Manager) expire(epoch uint64) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.epoch != epoch || m.state.Account == nil {
		m.mu.Unlock()
		return
	}
	m.state.Phase = PhaseExpiring
	address := m.state.Account.Address
	m.mu.Unlock()
	m.publish()

	ctx, cancel := context.WithTimeout(context.Background(), expiryDeleteTimeout)
	defer cancel()

	if m.deleteOnExpiry {
		if err := m.provider.DeleteAccount(ctx, address); err != nil {
			m.log.Warn().Err(err).Str("address", address).Msg("deleting expired account")
		}
	}
	m.teardown(ctx)
	m.log.Info().Str("address", address).Msg("session expired")
}

// teardown clears timers, memory, store and provider auth. It never
// fails; cleanup errors are logged. Callers hold opMu.
func (m *Manager) teardown(ctx context.Context) {
	m.mu.Lock()
	m.epoch++
	countdown := m.countdown
	m.countdown = nil
	m.state.Account = nil
	m.state.Messages = []model.Message{}
	m.state.SelectedMessage = nil
	m.state.IsLoading = false
	m.state.IsViewing = false
	m.state.TimeRemaining = 0
	m.state.Phase = PhaseIdle
	m.state.Err = nil
	m.state.ViewErr = nil
	m.mu.Unlock()

	countdown.Cancel()
	m.poller.Stop()

	// The store is cleared even when ctx is already done, so a cleared
	// session is never restored on the next start.
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeClearTimeout)
	defer cancel()
	if err := m.store.ClearAccount(clearCtx); err != nil {
		m.log.Warn().Err(err).Msg("clearing stored account")
	}
	m.provider.Clear()
	m.publish()
}

// ClearSession tears the session down. It is idempotent and never fails.
func (m *Manager) ClearSession(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.teardown(ctx)
}

// DeleteActiveAccount deletes the account on the provider, then tears the
// session down. A provider 404 counts as success. Other failures leave
// the session intact.
func (m *Manager) DeleteActiveAccount(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	acc, _ := m.current()
	if acc == nil {
		return ErrNoAccount
	}

	err := m.provider.DeleteAccount(ctx, acc.Address)
	if err != nil && !mailtm.IsNotFound(err) && !mailtm.IsAccountGone(err) {
		m.log.Warn().Err(err).Str("address", acc.Address).Msg("deleting account")
		m.update(func(s *State) { s.Err = err })
		return fmt.Errorf("could not delete %s, please try again: %w", acc.Address, err)
	}

	m.teardown(ctx)
	limits := m.provider.Limits(ctx)
	m.update(func(s *State) { s.Limits = limits })

	m.log.Info().Str("address", acc.Address).Msg("account deleted")
	return nil
}

// UpdateSiteUsedFor annotates the active account and persists it.
func (m *Manager) UpdateSiteUsedFor(ctx context.Context, site string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.state.Account == nil {
		m.mu.Unlock()
		return ErrNoAccount
	}
	m.state.Account.SiteUsedFor = site
	acc := *m.state.Account
	m.mu.Unlock()

	if err := m.store.SaveAccount(ctx, acc); err != nil {
		m.log.Warn().Err(err).Msg("persisting site annotation")
	}
	m.publish()
	return nil
}

// UpdateSettings validates and persists settings. For an active account
// the expiry is recomputed from its original creation time and applied
// only if it is still in the future.
func (m *Manager) UpdateSettings(ctx context.Context, settings model.Settings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.store.SaveSettings(ctx, settings); err != nil {
		m.log.Warn().Err(err).Msg("persisting settings")
	}

	var (
		applied     bool
		pollChanged bool
		acc         model.Account
	)
	m.mu.Lock()
	pollChanged = m.state.Settings.PollingIntervalSeconds != settings.PollingIntervalSeconds
	m.state.Settings = settings
	active := m.state.Account != nil
	if active {
		expiresAt := model.ExpiresAtFor(m.state.Account.CreatedAt, settings.ExpirationMinutes)
		if expiresAt > m.now().UnixMilli() {
			m.state.Account.ExpiresAt = expiresAt
			acc = *m.state.Account
			applied = true
		}
	}
	m.mu.Unlock()

	if applied {
		if err := m.store.SaveAccount(ctx, acc); err != nil {
			m.log.Warn().Err(err).Msg("persisting recomputed expiry")
		}
		m.restartTimers()
	} else if active && pollChanged {
		m.poller.Start(time.Duration(settings.PollingIntervalSeconds) * time.Second)
	}
	m.publish()
	return nil
}

// Shutdown stops the countdown and polling without touching the stored
// account, so the session can be restored on the next start.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.epoch++
	countdown := m.countdown
	m.countdown = nil
	m.mu.Unlock()

	countdown.Cancel()
	m.poller.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

// Settings returns the current settings.
func (m *Manager) Settings() model.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Settings
}

// APILimits refreshes and returns the provider quota.
func (m *Manager) APILimits(ctx context.Context) model.APILimits {
	limits := m.provider.Limits(ctx)
	m.update(func(s *State) { s.Limits = limits })
	return limits
}
