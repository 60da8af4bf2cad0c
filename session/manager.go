// Package session implements the portal's client session state machine.
//
// A Manager owns the in-memory session, drives the login, registration,
// profile and logout flows against the backend, and keeps the SessionStore
// in step with memory. Consumers read snapshots with Current and observe
// changes with Subscribe; they never read the store directly.
//
// # Lifecycle
//
//	m := session.NewManager(backend, federation, store)
//	m.Bootstrap(ctx)               // Initializing -> Unauthenticated | Authenticated
//	m.Login(ctx, email, password)  // Unauthenticated -> Authenticating -> Authenticated
//	m.Logout(ctx)                  // -> Unauthenticated, store cleared
//
// Login, LoginWithProvider and Register are mutually exclusive: while one is
// in flight the others fail with domain.ErrConcurrentOperation. A Logout
// issued during one of them is deferred until it resolves and then applied,
// so the final state is always Unauthenticated and the login reports
// domain.ErrInvalidState.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ashaassist/portal/domain"
	"github.com/ashaassist/portal/flow"
	"github.com/ashaassist/portal/identity"
	"github.com/ashaassist/portal/logger"
	"github.com/ashaassist/portal/telemetry"
)

// Listener observes a state change. Listeners run outside the manager's
// lock, one change at a time in transition order, and may call back into
// the manager. A Logout made from a listener while a login announces
// StatusAuthenticating returns at once; that login then ends signed out
// without reaching the backend.
type Listener func(prev, next State)

// Option configures a Manager.
type Option func(*Manager)

// WithRevalidation controls whether Bootstrap checks a restored session
// against the backend before trusting it. Enabled by default.
func WithRevalidation(on bool) Option {
	return func(m *Manager) { m.revalidate = on }
}

// WithTelemetry sets the span and counter provider. The default reads the
// global OpenTelemetry providers.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(m *Manager) { m.telemetry = p }
}

// WithClock overrides the time source used for local token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

type operation struct {
	name string
	done chan struct{}

	// announcing is set while the op's own goroutine delivers its first
	// change to listeners.
	announcing bool
	// loggingOut is set once a deferred logout has taken the op over.
	loggingOut bool
}

type change struct {
	prev, next State
}

// Manager is the session state machine. It is safe for concurrent use; the
// zero value is not usable, create one with NewManager.
type Manager struct {
	backend      domain.AuthBackend
	federation   domain.IdentityFederation
	store        domain.SessionStore
	login        *flow.LoginManager
	registration *flow.RegistrationManager
	telemetry    *telemetry.Provider
	revalidate   bool
	now          func() time.Time

	mu            sync.Mutex
	state         State
	bootstrapped  bool
	inflight      *operation
	pendingLogout bool
	listeners     map[uint64]Listener
	nextListener  uint64
	queue         []change

	// emitMu is held by the goroutine delivering changes.
	emitMu sync.Mutex
	// profileMu serializes UpdateProfile.
	profileMu sync.Mutex
}

// NewManager creates a manager in StatusInitializing. federation may be nil,
// in which case LoginWithProvider fails with domain.ErrProviderDenied.
func NewManager(backend domain.AuthBackend, federation domain.IdentityFederation, store domain.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		backend:      backend,
		federation:   federation,
		store:        store,
		login:        flow.NewLoginManager(),
		registration: flow.NewRegistrationManager(backend),
		revalidate:   true,
		now:          time.Now,
		state:        State{Status: StatusInitializing},
		listeners:    make(map[uint64]Listener),
	}
	m.login.RegisterStrategy(flow.NewPasswordStrategy(backend))
	if federation != nil {
		m.login.RegisterStrategy(flow.NewFederatedStrategy(federation, backend))
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.telemetry == nil {
		m.telemetry = telemetry.NewProvider()
	}
	return m
}

// LoginFlow exposes the login manager for hooks and extra strategies.
func (m *Manager) LoginFlow() *flow.LoginManager { return m.login }

// RegistrationFlow exposes the registration manager for hooks.
func (m *Manager) RegistrationFlow() *flow.RegistrationManager { return m.registration }

// Current returns a copy of the current state.
func (m *Manager) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// IsAuthenticated reports whether the current state holds a token and profile.
func (m *Manager) IsAuthenticated() bool {
	return m.Current().Authenticated()
}

// Subscribe registers l for every subsequent state change and returns a
// function that removes it.
func (m *Manager) Subscribe(l Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = l
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Bootstrap restores the persisted session. It may only run once.
func (m *Manager) Bootstrap(ctx context.Context) (err error) {
	m.mu.Lock()
	if m.bootstrapped || m.state.Status != StatusInitializing {
		m.mu.Unlock()
		return domain.NewError(domain.ReasonInvalidState, "session already bootstrapped", nil)
	}
	m.bootstrapped = true
	op := m.beginLocked("bootstrap")
	m.mu.Unlock()

	ctx, span := m.telemetry.StartSpan(ctx, "session.Bootstrap")
	defer func() { telemetry.EndSpan(span, err) }()

	next := State{Status: StatusUnauthenticated}
	rec, err := m.store.Load(ctx)
	if err != nil {
		logger.Log.Warn("failed to load stored session", zap.Error(err))
		rec = nil
	}

	switch {
	case !rec.Valid():
	case tokenExpired(rec.Token, m.now()):
		logger.Log.Info("stored session token has expired")
		m.clearStore(ctx)
	case !m.revalidate:
		next = State{Status: StatusAuthenticated, Token: rec.Token, Profile: rec.Profile}
	default:
		profile, verr := m.backend.GetProfile(ctx, rec.Token)
		switch {
		case verr == nil && profile != nil:
			next = State{Status: StatusAuthenticated, Token: rec.Token, Profile: profile.Clone()}
			m.saveStore(ctx, domain.Record{Token: rec.Token, Profile: profile})
		case errors.Is(verr, context.Canceled) || errors.Is(verr, context.DeadlineExceeded):
			// Keep the stored session for the next start.
			logger.Log.Info("stored session validation interrupted", zap.Error(verr))
		default:
			logger.Log.Info("stored session rejected", zap.String("reason", string(domain.ReasonOf(verr))), zap.Error(verr))
			m.clearStore(ctx)
		}
	}

	m.finish(ctx, op, next)
	return nil
}

// Login authenticates with an email and password.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	return m.authenticate(ctx, flow.MethodPassword, email, password)
}

// LoginWithProvider authenticates through the identity federation.
func (m *Manager) LoginWithProvider(ctx context.Context) error {
	return m.authenticate(ctx, flow.MethodFederated, "", "")
}

func (m *Manager) authenticate(ctx context.Context, method, identifier, secret string) (err error) {
	m.mu.Lock()
	if err := m.admitLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	op := m.beginLocked(method)
	op.announcing = true
	m.setLocked(ctx, State{Status: StatusAuthenticating})
	m.mu.Unlock()
	m.flush()

	m.mu.Lock()
	op.announcing = false
	signedOut := m.pendingLogout
	m.mu.Unlock()

	ctx, span := m.telemetry.StartSpan(ctx, "session.Login", attribute.String(telemetry.AttrMethod, method))
	defer func() { telemetry.EndSpan(span, err) }()

	if signedOut {
		m.telemetry.RecordAttempt(ctx, method, "signed_out")
		m.finish(ctx, op)
		return errSignedOut
	}

	grant, err := m.login.Authenticate(ctx, method, identifier, secret)
	if err != nil {
		if domain.IsFatal(err) {
			m.clearStore(ctx)
		}
		err = classify(err)
		m.telemetry.RecordAttempt(ctx, method, string(domain.ReasonOf(err)))
		logger.Log.Info("login failed",
			zap.String("method", method),
			zap.String("reason", string(domain.ReasonOf(err))),
		)
		m.finish(ctx, op,
			State{Status: StatusAuthenticationFailed},
			State{Status: StatusUnauthenticated},
		)
		return err
	}

	m.telemetry.RecordAttempt(ctx, method, "success")
	m.saveStore(ctx, domain.Record{Token: grant.Token, Profile: grant.Profile})
	if m.finish(ctx, op, State{Status: StatusAuthenticated, Token: grant.Token, Profile: grant.Profile.Clone()}) {
		return errSignedOut
	}
	return nil
}

var errSignedOut = domain.NewError(domain.ReasonInvalidState, "signed out before login completed", nil)

// Register creates an account. The session stays Unauthenticated; the new
// user must log in explicitly.
func (m *Manager) Register(ctx context.Context, form identity.RegistrationForm) (err error) {
	m.mu.Lock()
	if err := m.admitLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	op := m.beginLocked("register")
	m.mu.Unlock()

	ctx, span := m.telemetry.StartSpan(ctx, "session.Register")
	defer func() { telemetry.EndSpan(span, err) }()

	err = m.registration.Submit(ctx, form)
	if err != nil {
		err = classify(err)
		logger.Log.Info("registration failed", zap.String("reason", string(domain.ReasonOf(err))))
	}
	m.finish(ctx, op)
	return err
}

// UpdateProfile merges patch into the profile once the backend confirms it
// and persists the result. Calls are applied one at a time in call order.
func (m *Manager) UpdateProfile(ctx context.Context, patch identity.ProfilePatch) (_ *identity.Profile, err error) {
	// Listeners are notified once profileMu is released so they may update
	// the profile again.
	var rejected string
	defer func() {
		if rejected != "" {
			m.expire(ctx, rejected)
		}
		m.flush()
	}()

	m.profileMu.Lock()
	defer m.profileMu.Unlock()

	m.mu.Lock()
	if !m.state.Authenticated() {
		m.mu.Unlock()
		return nil, domain.NewError(domain.ReasonInvalidState, "not signed in", nil)
	}
	token := m.state.Token
	current := m.state.Profile.Clone()
	m.mu.Unlock()

	if patch.Empty() {
		return current, nil
	}

	ctx, span := m.telemetry.StartSpan(ctx, "session.UpdateProfile")
	defer func() { telemetry.EndSpan(span, err) }()

	confirmed, err := m.backend.UpdateProfile(ctx, token, patch)
	if err != nil {
		if domain.IsFatal(err) {
			logger.Log.Warn("profile update rejected the session", zap.Error(err))
			rejected = token
		}
		return nil, classify(err)
	}

	m.mu.Lock()
	if !m.state.Authenticated() || m.state.Token != token || m.inflight != nil {
		m.mu.Unlock()
		return nil, domain.NewError(domain.ReasonInvalidState, "session ended during profile update", nil)
	}
	merged := confirmed.Clone()
	if merged == nil {
		merged = patch.Apply(m.state.Profile)
	}
	// Store and memory change under the same lock so no reader sees one
	// without the other.
	m.saveStore(ctx, domain.Record{Token: token, Profile: merged})
	m.setLocked(ctx, State{Status: StatusAuthenticated, Token: token, Profile: merged})
	m.mu.Unlock()

	return merged.Clone(), nil
}

// Logout ends the session. The federated sign-out is best effort; the local
// session is always cleared. When a login or registration is in flight the
// logout is applied as soon as it resolves, even if ctx ends first, and
// Logout waits for that unless the login is still announcing itself.
func (m *Manager) Logout(ctx context.Context) (err error) {
	m.mu.Lock()
	if op := m.inflight; op != nil {
		// An op already being logged out needs no second teardown.
		if op.name != "logout" && !op.loggingOut {
			m.pendingLogout = true
		}
		announcing := op.announcing
		m.mu.Unlock()
		if announcing {
			// The op's goroutine is delivering to a listener and checks
			// pendingLogout before doing any work.
			return nil
		}
		select {
		case <-op.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.bootstrapped = true
	op := m.beginLocked("logout")
	m.mu.Unlock()

	ctx, span := m.telemetry.StartSpan(ctx, "session.Logout")
	defer func() { telemetry.EndSpan(span, err) }()

	m.teardown(ctx)
	m.finish(ctx, op, State{Status: StatusUnauthenticated})
	return nil
}

// Invalidate drops the local session without contacting the identity
// provider. Call it when any authenticated request is rejected with 401.
func (m *Manager) Invalidate(ctx context.Context) {
	m.mu.Lock()
	token := m.state.Token
	m.mu.Unlock()
	m.expire(ctx, token)
}

// CheckEmailAvailability reports whether email can be used for a new
// account. Backend failures are logged and reported as available so that the
// check never blocks registration.
func (m *Manager) CheckEmailAvailability(ctx context.Context, email string) bool {
	email = flow.NormalizeEmail(email)
	if email == "" {
		return false
	}
	available, err := m.backend.CheckEmail(ctx, email)
	if err != nil {
		logger.Log.Warn("email availability check failed", zap.Error(err))
		return true
	}
	return available
}

// ---- internals ----

func (m *Manager) admitLocked() error {
	switch {
	case m.inflight != nil:
		return domain.ErrConcurrentOperation
	case m.state.Status == StatusInitializing:
		return domain.NewError(domain.ReasonInvalidState, "session is not bootstrapped", nil)
	case m.state.Status == StatusAuthenticated:
		return domain.NewError(domain.ReasonInvalidState, "already signed in", nil)
	}
	return nil
}

func (m *Manager) beginLocked(name string) *operation {
	op := &operation{name: name, done: make(chan struct{})}
	m.inflight = op
	return op
}

// finish applies states in order and releases op. A logout deferred while
// op ran is carried out instead of states; finish then reports true.
func (m *Manager) finish(ctx context.Context, op *operation, states ...State) (loggedOut bool) {
	m.mu.Lock()
	deferred := m.pendingLogout
	m.pendingLogout = false
	if deferred {
		op.loggingOut = true
	} else {
		for _, s := range states {
			m.setLocked(ctx, s)
		}
		m.inflight = nil
	}
	m.mu.Unlock()

	if deferred {
		ctx = context.WithoutCancel(ctx)
		m.teardown(ctx)
		m.mu.Lock()
		m.setLocked(ctx, State{Status: StatusUnauthenticated})
		// The teardown also answers any Logout that arrived during it.
		m.pendingLogout = false
		m.inflight = nil
		m.mu.Unlock()
	}

	close(op.done)
	m.flush()
	return deferred
}

// expire clears the session if it still holds token.
func (m *Manager) expire(ctx context.Context, token string) {
	m.mu.Lock()
	if token == "" || !m.state.Authenticated() || m.state.Token != token || m.inflight != nil {
		m.mu.Unlock()
		return
	}
	op := m.beginLocked("invalidate")
	m.mu.Unlock()

	m.clearStore(context.WithoutCancel(ctx))
	m.finish(ctx, op, State{Status: StatusUnauthenticated})
}

func (m *Manager) teardown(ctx context.Context) {
	if m.federation != nil {
		if err := m.federation.SignOut(ctx); err != nil {
			logger.Log.Warn("federated sign-out failed", zap.Error(err))
		}
	}
	m.clearStore(ctx)
}

// setLocked moves to next and queues a notification. Token and profile are
// dropped for every status but Authenticated.
func (m *Manager) setLocked(ctx context.Context, next State) {
	if next.Status != StatusAuthenticated || next.Token == "" || next.Profile == nil {
		if next.Status == StatusAuthenticated {
			logger.Log.DPanic("authenticated state without token and profile")
			next.Status = StatusUnauthenticated
		}
		next.Token = ""
		next.Profile = nil
	}

	prev := m.state
	if prev.equal(next) {
		return
	}
	if !canTransition(prev.Status, next.Status) {
		logger.Log.DPanic("illegal session transition",
			zap.Stringer("from", prev.Status),
			zap.Stringer("to", next.Status),
		)
		return
	}

	m.state = next
	m.queue = append(m.queue, change{prev: prev.clone(), next: next.clone()})
	m.telemetry.RecordTransition(ctx, prev.Status.String(), next.Status.String())
	logger.Log.Debug("session transition",
		zap.Stringer("from", prev.Status),
		zap.Stringer("to", next.Status),
	)
}

// flush delivers queued changes in order, outside m.mu. A listener that
// calls back into the manager leaves its changes to the flush already
// running.
func (m *Manager) flush() {
	for {
		if !m.emitMu.TryLock() {
			return
		}
		m.drain()
		m.emitMu.Unlock()

		m.mu.Lock()
		empty := len(m.queue) == 0
		m.mu.Unlock()
		if empty {
			return
		}
	}
}

func (m *Manager) drain() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		c := m.queue[0]
		m.queue = m.queue[1:]
		listeners := make([]Listener, 0, len(m.listeners))
		for _, l := range m.listeners {
			listeners = append(listeners, l)
		}
		m.mu.Unlock()

		for _, l := range listeners {
			l(c.prev.clone(), c.next.clone())
		}
	}
}

func (m *Manager) saveStore(ctx context.Context, r domain.Record) {
	if err := m.store.Save(ctx, r); err != nil {
		logger.Log.Error("failed to persist session", zap.Error(err))
	}
}

func (m *Manager) clearStore(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		logger.Log.Error("failed to clear stored session", zap.Error(err))
	}
}

// classify turns an unrecognised error into a server error. Context errors
// pass through unchanged.
func classify(err error) error {
	if err == nil || domain.ReasonOf(err) != "" ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.NewError(domain.ReasonServer, "unexpected failure", err)
}
