// Package bot routes chat events to the entry flow and the report pipeline.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"flotta/internal/cache"
	"flotta/internal/core"
	"flotta/internal/log"
	"flotta/internal/metrics"
	"flotta/internal/report"
	"flotta/internal/session"
	"flotta/internal/sheets"
)

// EventKind classifies an inbound chat event.
type EventKind string

const (
	EventText   EventKind = "text"
	EventChoice EventKind = "choice"
	EventCancel EventKind = "cancel"
)

// Event is one update from the transport. Commands arrive as EventText.
type Event struct {
	Identity int64
	Username string
	Kind     EventKind
	Payload  string
}

// Transport delivers replies to a chat identity.
type Transport interface {
	SendText(ctx context.Context, identity int64, text string) error
	SendChoice(ctx context.Context, identity int64, text string, options []session.Option) error
}

// Reporter builds monthly reports.
type Reporter interface {
	Generate(ctx context.Context, month, year int) (core.Report, error)
}

type invalidator interface {
	Invalidate()
}

// Config wires a Dispatcher. Zero values select defaults.
type Config struct {
	Auth               session.Authorizer
	ReportRequiresAuth bool
	Location           *time.Location
	Now                func() time.Time
	Logger             *log.Logger
	// MaxPickers bounds the report picker cache.
	MaxPickers int
}

// Dispatcher turns chat events into session and report operations. Events of
// one identity are handled one at a time.
type Dispatcher struct {
	transport  Transport
	sessions   *session.Manager
	plates     sheets.PlateLister
	writer     sheets.RecordWriter
	reports    Reporter
	auth       session.Authorizer
	reportAuth bool
	pickers    *pickers
	locks      *keyedMutex
	loc        *time.Location
	now        func() time.Time
	logger     *log.Logger
}

func New(transport Transport, sessions *session.Manager, plates sheets.PlateLister, writer sheets.RecordWriter, reports Reporter, cfg Config) *Dispatcher {
	d := &Dispatcher{
		transport:  transport,
		sessions:   sessions,
		plates:     plates,
		writer:     writer,
		reports:    reports,
		auth:       cfg.Auth,
		reportAuth: cfg.ReportRequiresAuth,
		locks:      newKeyedMutex(),
		loc:        cfg.Location,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
	if d.loc == nil {
		d.loc = time.UTC
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.logger == nil {
		d.logger = log.New(log.DefaultConfig())
	}
	d.logger = d.logger.WithComponent(log.ComponentBot)
	if cfg.MaxPickers <= 0 {
		cfg.MaxPickers = 1000
	}
	d.pickers = newPickers(cfg.MaxPickers, sessions.IdleTimeout(), cache.WithClock(d.now))
	return d
}

// CleanExpired drops idle report pickers; it lets a cache.Manager sweep them.
func (d *Dispatcher) CleanExpired() int {
	return d.pickers.cache.CleanExpired()
}

// Handle processes one event. User-facing failures are answered in chat and
// logged; the returned error reports only failed deliveries.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) error {
	unlock := d.locks.Lock(ev.Identity)
	defer unlock()

	metrics.UpdatesTotal.WithLabelValues(string(ev.Kind)).Inc()

	if ev.Kind == EventText {
		if cmd, args, ok := parseCommand(ev.Payload); ok {
			return d.command(ctx, ev, cmd, args)
		}
	}
	if ev.Kind == EventCancel || (ev.Kind == EventChoice && ev.Payload == session.ChoiceCancel) {
		return d.cancel(ctx, ev)
	}
	if ev.Kind == EventChoice && isPickerPayload(ev.Payload) {
		return d.pick(ctx, ev)
	}
	if _, ok := d.pickers.get(ev.Identity); ok {
		if !d.sessions.Active(ctx, ev.Identity) {
			return d.pick(ctx, ev)
		}
		// Input for the open entry session abandons the picker.
		d.pickers.clear(ev.Identity)
	}
	return d.advance(ctx, ev)
}

// parseCommand splits "/report@flotta_bot 3 2024" into "report" and "3 2024".
func parseCommand(text string) (cmd, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	cmd, args, _ = strings.Cut(text[1:], " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(args), cmd != ""
}

func (d *Dispatcher) command(ctx context.Context, ev Event, cmd, args string) error {
	d.logger.DebugContext(ctx, "Command received",
		log.FieldIdentity, ev.Identity,
		log.FieldUsername, ev.Username,
		"command", cmd)

	switch cmd {
	case "start", "help":
		return d.transport.SendText(ctx, ev.Identity, helpText)
	case "nuovo", "new":
		return d.startEntry(ctx, ev)
	case "report":
		return d.startReport(ctx, ev, args)
	case "cancel", "annulla":
		return d.cancel(ctx, ev)
	default:
		return d.transport.SendText(ctx, ev.Identity, msgUnknownCommand)
	}
}

func (d *Dispatcher) startEntry(ctx context.Context, ev Event) error {
	if !d.authorized(ev.Identity) {
		return d.deny(ctx, ev, log.OpStart)
	}
	d.pickers.clear(ev.Identity)

	plates, err := d.plates.FetchDistinctPlates(ctx)
	if err != nil {
		return d.fail(ctx, ev, log.OpPlates, err)
	}
	prompt, err := d.sessions.Start(ctx, ev.Identity, plates)
	if err != nil {
		return d.fail(ctx, ev, log.OpStart, err)
	}
	return d.sendPrompt(ctx, ev.Identity, "", prompt)
}

func (d *Dispatcher) startReport(ctx context.Context, ev Event, args string) error {
	if d.reportAuth && !d.authorized(ev.Identity) {
		return d.deny(ctx, ev, log.OpReport)
	}

	month, year, ok, err := report.ParsePeriod(args, d.now().In(d.loc))
	if err != nil {
		return d.fail(ctx, ev, log.OpReport, err)
	}
	if ok {
		d.pickers.clear(ev.Identity)
		return d.runReport(ctx, ev, month, year)
	}

	d.pickers.set(ev.Identity, pickerState{})
	return d.transport.SendChoice(ctx, ev.Identity, msgSelectYear, yearOptions(d.now().In(d.loc)))
}

// pick advances the report picker.
func (d *Dispatcher) pick(ctx context.Context, ev Event) error {
	st, ok := d.pickers.get(ev.Identity)
	if !ok {
		// A button from an old picker message.
		return d.transport.SendText(ctx, ev.Identity, msgNoSession)
	}
	now := d.now().In(d.loc)

	if st.Year == 0 {
		year, valid := 0, false
		if ev.Kind == EventChoice && strings.HasPrefix(ev.Payload, YearPrefix) {
			year, valid = parseYear(ev.Payload, now)
		}
		if !valid {
			d.logRejected(ctx, ev, "select_year")
			return d.transport.SendChoice(ctx, ev.Identity, msgUseButtons+"\n\n"+msgSelectYear, yearOptions(now))
		}
		d.pickers.set(ev.Identity, pickerState{Year: year})
		return d.transport.SendChoice(ctx, ev.Identity, fmt.Sprintf(msgSelectMonth, year), monthOptions())
	}

	month, valid := 0, false
	if ev.Kind == EventChoice && strings.HasPrefix(ev.Payload, MonthPrefix) {
		month, valid = parseMonth(ev.Payload)
	}
	if !valid {
		d.logRejected(ctx, ev, "select_month")
		return d.transport.SendChoice(ctx, ev.Identity, msgUseButtons+"\n\n"+fmt.Sprintf(msgSelectMonth, st.Year), monthOptions())
	}
	d.pickers.clear(ev.Identity)
	return d.runReport(ctx, ev, month, st.Year)
}

func (d *Dispatcher) runReport(ctx context.Context, ev Event, month, year int) error {
	rep, err := d.reports.Generate(ctx, month, year)
	if err != nil {
		d.logger.WarnContext(ctx, "Report failed", log.NewFields().
			WithSession(ev.Identity, "").
			WithOperation(log.OpReport).
			WithPeriod(month, year).
			WithError(err).
			ToSlice()...)
		return d.transport.SendText(ctx, ev.Identity, userMessage(err, month, year))
	}
	fields := log.NewFields().WithSession(ev.Identity, "").WithPeriod(month, year)
	fields["groups"] = len(rep.Groups)
	fields[log.FieldDropped] = rep.Dropped
	d.logger.InfoContext(ctx, "Report sent", fields.ToSlice()...)
	return d.transport.SendText(ctx, ev.Identity, reportFooter(rep))
}

// cancel closes the most recent flow: the report picker when one is open,
// otherwise the entry session.
func (d *Dispatcher) cancel(ctx context.Context, ev Event) error {
	if d.pickers.clear(ev.Identity) {
		if d.sessions.Active(ctx, ev.Identity) {
			return d.transport.SendText(ctx, ev.Identity, msgReportCancelled)
		}
		return d.transport.SendText(ctx, ev.Identity, msgCancelled)
	}
	hadSession, err := d.sessions.Cancel(ctx, ev.Identity)
	if err != nil {
		return d.fail(ctx, ev, log.OpCancel, err)
	}
	if !hadSession {
		return d.transport.SendText(ctx, ev.Identity, msgNothingToCancel)
	}
	return d.transport.SendText(ctx, ev.Identity, msgCancelled)
}

func (d *Dispatcher) advance(ctx context.Context, ev Event) error {
	out, err := d.sessions.Advance(ctx, ev.Identity, session.Input{
		Kind:    session.InputKind(ev.Kind),
		Payload: ev.Payload,
	})
	if errors.Is(err, core.ErrValidation) {
		// Rejection is already logged by the session manager.
		return d.sendPrompt(ctx, ev.Identity, msgInvalidInput, out.Prompt)
	}
	if err != nil {
		return d.fail(ctx, ev, log.OpAdvance, err)
	}

	if out.State == session.StateCompleted && out.Record != nil {
		return d.save(ctx, ev, *out.Record)
	}
	return d.sendPrompt(ctx, ev.Identity, "", out.Prompt)
}

func (d *Dispatcher) save(ctx context.Context, ev Event, rec core.VehicleUsageRecord) error {
	ref, err := d.writer.AppendRecord(ctx, rec)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to append usage record",
			log.FieldIdentity, ev.Identity,
			log.FieldOperation, log.OpAppend,
			log.FieldPlate, rec.Plate,
			log.FieldDriver, rec.Driver,
			log.FieldError, err)
		return d.transport.SendText(ctx, ev.Identity, userMessage(err, 0, 0))
	}
	if inv, ok := d.plates.(invalidator); ok {
		inv.Invalidate()
	}
	d.logger.InfoContext(ctx, "Usage record saved",
		log.FieldIdentity, ev.Identity,
		log.FieldPlate, rec.Plate,
		log.FieldDriver, rec.Driver,
		log.FieldRowRef, ref)
	return d.transport.SendText(ctx, ev.Identity, confirmation(rec))
}

func (d *Dispatcher) sendPrompt(ctx context.Context, identity int64, lead string, p session.Prompt) error {
	text := p.Text
	if lead != "" {
		text = lead + "\n\n" + text
	}
	if len(p.Options) == 0 {
		return d.transport.SendText(ctx, identity, text)
	}
	return d.transport.SendChoice(ctx, identity, text, p.Options)
}

func (d *Dispatcher) authorized(identity int64) bool {
	return d.auth != nil && d.auth.Authorize(identity)
}

func (d *Dispatcher) deny(ctx context.Context, ev Event, op string) error {
	metrics.AccessDenied.Inc()
	d.logger.WarnContext(ctx, "Access denied",
		log.FieldIdentity, ev.Identity,
		log.FieldUsername, ev.Username,
		log.FieldOperation, op)
	return d.transport.SendText(ctx, ev.Identity, msgAccessDenied)
}

// fail answers err in chat and logs it with the originating input.
func (d *Dispatcher) fail(ctx context.Context, ev Event, op string, err error) error {
	level := d.logger.WarnContext
	if errors.Is(err, core.ErrStoreUnavailable) || userMessage(err, 0, 0) == msgSystemError {
		level = d.logger.ErrorContext
	}
	level(ctx, "Operation failed", log.NewFields().
		WithSession(ev.Identity, "").
		WithOperation(op).
		WithInput(ev.Payload).
		WithError(err).
		ToSlice()...)
	return d.transport.SendText(ctx, ev.Identity, userMessage(err, 0, 0))
}

func (d *Dispatcher) logRejected(ctx context.Context, ev Event, state string) {
	d.logger.InfoContext(ctx, "Report picker input rejected",
		log.NewFields().WithSession(ev.Identity, state).WithInput(ev.Payload).ToSlice()...)
}
