package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"flotta/internal/core"
	"flotta/internal/log"
	"flotta/internal/metrics"
)

// DefaultIdleTimeout is how long a session may sit untouched.
const DefaultIdleTimeout = 30 * time.Minute

// Choice payloads understood by Advance.
const (
	ChoiceSkip   = "skip"
	ChoiceCancel = "cancel"
	PlatePrefix  = "plate:"
)

// Words that skip an optional field when typed.
var skipWords = map[string]struct{}{"skip": {}, "salta": {}, "-": {}}

type InputKind string

const (
	InputText   InputKind = "text"
	InputChoice InputKind = "choice"
	InputCancel InputKind = "cancel"
)

// Input is one user event routed to a session.
type Input struct {
	Kind    InputKind
	Payload string
}

// Option is one selectable answer of a prompt.
type Option struct {
	Label string
	Value string
}

// Prompt is what the user is asked next.
type Prompt struct {
	Text    string
	Options []Option
}

// Outcome is the result of one Advance. Record is set only when the dialog
// reached StateCompleted.
type Outcome struct {
	State  State
	Prompt Prompt
	Record *core.VehicleUsageRecord
}

// Authorizer decides whether an identity may start an entry session.
type Authorizer interface {
	Authorize(identity int64) bool
}

// Config tunes a Manager. Zero values select defaults.
type Config struct {
	IdleTimeout time.Duration
	Location    *time.Location
	Now         func() time.Time
	Logger      *log.Logger
}

// Manager drives entry sessions. It holds no per-user state itself; all of it
// lives in the Store.
type Manager struct {
	auth   Authorizer
	store  Store
	idle   time.Duration
	loc    *time.Location
	now    func() time.Time
	logger *log.Logger
}

func NewManager(auth Authorizer, store Store, cfg Config) *Manager {
	m := &Manager{
		auth:   auth,
		store:  store,
		idle:   cfg.IdleTimeout,
		loc:    cfg.Location,
		now:    cfg.Now,
		logger: cfg.Logger,
	}
	if m.idle <= 0 {
		m.idle = DefaultIdleTimeout
	}
	if m.loc == nil {
		m.loc = time.UTC
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = log.New(log.DefaultConfig())
	}
	m.logger = m.logger.WithComponent(log.ComponentSession)
	return m
}

// IdleTimeout returns the configured inactivity limit.
func (m *Manager) IdleTimeout() time.Duration { return m.idle }

// Start opens a session for identity offering knownPlates. An active session
// is replaced.
func (m *Manager) Start(ctx context.Context, identity int64, knownPlates []string) (Prompt, error) {
	if !m.auth.Authorize(identity) {
		metrics.AccessDenied.Inc()
		m.logger.WarnContext(ctx, "Entry session refused", log.FieldIdentity, identity)
		return Prompt{}, fmt.Errorf("%w: identity %d", core.ErrAccessDenied, identity)
	}

	plates := normalizePlates(knownPlates)
	if len(plates) == 0 {
		return Prompt{}, core.ErrNoPlates
	}

	old, ok, err := m.store.Load(ctx, identity)
	if err != nil {
		return Prompt{}, fmt.Errorf("load session: %w", err)
	}
	if ok {
		metrics.SessionsTotal.WithLabelValues("replaced").Inc()
		m.logger.InfoContext(ctx, "Replacing active entry session",
			log.FieldIdentity, identity,
			log.FieldState, old.State.String(),
			"session_id", old.ID)
	}

	s := newEntrySession(identity, plates, m.now())
	if err := m.store.Save(ctx, s); err != nil {
		return Prompt{}, fmt.Errorf("save session: %w", err)
	}
	m.logger.InfoContext(ctx, "Entry session started",
		log.FieldIdentity, identity,
		"session_id", s.ID,
		"plates", len(plates))
	return vehiclePrompt(s), nil
}

// Advance feeds one input to the session of identity.
//
// Invalid input leaves the session untouched and returns a *core.ValidationError
// together with an Outcome carrying the re-prompt.
func (m *Manager) Advance(ctx context.Context, identity int64, in Input) (Outcome, error) {
	if isCancel(in) {
		existed, err := m.Cancel(ctx, identity)
		if err != nil {
			return Outcome{}, err
		}
		if !existed {
			return Outcome{}, core.ErrNoSession
		}
		return Outcome{State: StateCancelled, Prompt: Prompt{Text: "❌ Inserimento annullato."}}, nil
	}

	s, err := m.load(ctx, identity)
	if err != nil {
		return Outcome{}, err
	}

	now := m.now()
	payload := strings.TrimSpace(in.Payload)

	switch s.State {
	case StateSelectVehicle:
		plate := core.NormalizePlate(strings.TrimPrefix(payload, PlatePrefix))
		if !s.offers(plate) {
			return m.reject(ctx, s, in, "unknown plate", vehiclePrompt(s))
		}
		s.Plate = plate
		if err := s.moveTo(StateCollectDriver, now); err != nil {
			return Outcome{}, err
		}

	case StateCollectDriver:
		driver := core.NormalizeDriver(payload)
		if in.Kind != InputText || driver == "" {
			return m.reject(ctx, s, in, core.ErrEmptyDriver.Error(), driverPrompt(s))
		}
		candidate := core.VehicleUsageRecord{Date: now, Driver: driver, Plate: s.Plate}
		if err := candidate.Validate(); err != nil {
			return m.reject(ctx, s, in, err.Error(), driverPrompt(s))
		}
		s.Driver = driver
		if err := s.moveTo(StateCollectOdometer, now); err != nil {
			return Outcome{}, err
		}

	case StateCollectOdometer:
		if !isSkip(in, payload) {
			km, err := core.ParseOdometer(payload)
			if err != nil {
				return m.reject(ctx, s, in, err.Error(), odometerPrompt(s))
			}
			s.Odometer = &km
		}
		if err := s.moveTo(StateCollectNotes, now); err != nil {
			return Outcome{}, err
		}

	case StateCollectNotes:
		skip := isSkip(in, payload)
		if in.Kind == InputChoice && !skip {
			return m.reject(ctx, s, in, "unexpected choice", notesPrompt(s))
		}
		if !skip {
			s.Notes = core.StringPtr(payload)
		}
		rec := core.VehicleUsageRecord{
			Date:     core.Today(now, m.loc),
			Driver:   s.Driver,
			Plate:    s.Plate,
			Odometer: s.Odometer,
			Notes:    s.Notes,
		}
		if err := rec.Validate(); err != nil {
			return m.reject(ctx, s, in, err.Error(), notesPrompt(s))
		}
		return m.complete(ctx, s, rec, now)

	default:
		return Outcome{}, fmt.Errorf("%w: session in %s", core.ErrInvalidTransition, s.State)
	}

	if err := m.store.Save(ctx, s); err != nil {
		return Outcome{}, fmt.Errorf("save session: %w", err)
	}
	m.logger.DebugContext(ctx, "Entry session advanced",
		log.FieldIdentity, identity,
		log.FieldState, s.State.String())
	return Outcome{State: s.State, Prompt: promptFor(s)}, nil
}

func (m *Manager) complete(ctx context.Context, s *EntrySession, rec core.VehicleUsageRecord, now time.Time) (Outcome, error) {
	if err := s.moveTo(StateCompleted, now); err != nil {
		return Outcome{}, err
	}
	if _, err := m.store.Delete(ctx, s.Identity); err != nil {
		return Outcome{}, fmt.Errorf("delete session: %w", err)
	}
	metrics.SessionsTotal.WithLabelValues("completed").Inc()
	m.logger.InfoContext(ctx, "Entry session completed",
		log.FieldIdentity, s.Identity,
		log.FieldPlate, rec.Plate,
		log.FieldDriver, rec.Driver,
		"session_id", s.ID)
	return Outcome{State: StateCompleted, Record: &rec}, nil
}

func (m *Manager) reject(ctx context.Context, s *EntrySession, in Input, reason string, reprompt Prompt) (Outcome, error) {
	m.logger.InfoContext(ctx, "Entry input rejected",
		log.FieldIdentity, s.Identity,
		log.FieldState, s.State.String(),
		log.FieldInput, in.Payload,
		"reason", reason)
	return Outcome{State: s.State, Prompt: reprompt}, &core.ValidationError{
		State:  s.State.String(),
		Input:  in.Payload,
		Reason: reason,
	}
}

// Cancel destroys the session of identity without emitting a record and
// reports whether one existed.
func (m *Manager) Cancel(ctx context.Context, identity int64) (bool, error) {
	s, ok, err := m.store.Load(ctx, identity)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := s.moveTo(StateCancelled, m.now()); err != nil {
		return false, err
	}
	if _, err := m.store.Delete(ctx, identity); err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	metrics.SessionsTotal.WithLabelValues("cancelled").Inc()
	m.logger.InfoContext(ctx, "Entry session cancelled", log.FieldIdentity, identity, "session_id", s.ID)
	return true, nil
}

// Active reports whether identity has a live session.
func (m *Manager) Active(ctx context.Context, identity int64) bool {
	_, err := m.load(ctx, identity)
	return err == nil
}

// Current returns a copy of the live session of identity.
func (m *Manager) Current(ctx context.Context, identity int64) (EntrySession, error) {
	s, err := m.load(ctx, identity)
	if err != nil {
		return EntrySession{}, err
	}
	return *s, nil
}

// load returns the live session, dropping it when idle too long.
func (m *Manager) load(ctx context.Context, identity int64) (*EntrySession, error) {
	s, ok, err := m.store.Load(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return nil, core.ErrNoSession
	}
	if m.now().Sub(s.UpdatedAt) > m.idle {
		if _, err := m.store.Delete(ctx, identity); err != nil {
			return nil, errors.Join(core.ErrSessionExpired, fmt.Errorf("delete session: %w", err))
		}
		metrics.SessionsTotal.WithLabelValues("expired").Inc()
		m.logger.InfoContext(ctx, "Entry session expired",
			log.FieldIdentity, identity,
			log.FieldState, s.State.String(),
			"idle", m.now().Sub(s.UpdatedAt).Round(time.Second).String())
		return nil, core.ErrSessionExpired
	}
	return s, nil
}

func isCancel(in Input) bool {
	return in.Kind == InputCancel || (in.Kind == InputChoice && in.Payload == ChoiceCancel)
}

func isSkip(in Input, payload string) bool {
	if in.Kind == InputChoice {
		return payload == ChoiceSkip
	}
	_, ok := skipWords[strings.ToLower(payload)]
	return ok
}

func normalizePlates(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = core.NormalizePlate(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
