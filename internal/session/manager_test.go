package session

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"flotta/internal/access"
	"flotta/internal/cache"
	"flotta/internal/core"
	"flotta/internal/log"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T) (*Manager, *MemoryStore, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2024, 3, 12, 9, 30, 0, 0, time.UTC)}
	store := NewMemoryStore(2*time.Hour, 100, cache.WithClock(clk.Now))
	m := NewManager(access.New([]int64{1, 2}), store, Config{
		IdleTimeout: 30 * time.Minute,
		Now:         clk.Now,
		Logger:      log.New(log.Config{Output: io.Discard}),
	})
	return m, store, clk
}

func text(s string) Input   { return Input{Kind: InputText, Payload: s} }
func choice(s string) Input { return Input{Kind: InputChoice, Payload: s} }

func TestFullFlow(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()

	prompt, err := m.Start(ctx, 1, []string{"ab 123 cd", "XY999ZZ", "AB123CD", " "})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	wantValues := []string{"plate:AB123CD", "plate:XY999ZZ", ChoiceCancel}
	var gotValues []string
	for _, o := range prompt.Options {
		gotValues = append(gotValues, o.Value)
	}
	if !reflect.DeepEqual(gotValues, wantValues) {
		t.Fatalf("options %v, want %v", gotValues, wantValues)
	}

	steps := []struct {
		in   Input
		want State
	}{
		{choice("plate:AB123CD"), StateCollectDriver},
		{text("mario"), StateCollectOdometer},
		{choice(ChoiceSkip), StateCollectNotes},
	}
	for _, st := range steps {
		out, err := m.Advance(ctx, 1, st.in)
		if err != nil {
			t.Fatalf("Advance(%v): %v", st.in, err)
		}
		if out.State != st.want || out.Record != nil {
			t.Fatalf("Advance(%v) = %+v, want state %s", st.in, out, st.want)
		}
	}

	out, err := m.Advance(ctx, 1, choice(ChoiceSkip))
	if err != nil {
		t.Fatalf("final Advance: %v", err)
	}
	if out.State != StateCompleted || out.Record == nil {
		t.Fatalf("expected completed record, got %+v", out)
	}
	want := core.VehicleUsageRecord{
		Date:   time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
		Driver: "MARIO",
		Plate:  "AB123CD",
	}
	if !reflect.DeepEqual(*out.Record, want) {
		t.Fatalf("record %+v, want %+v", *out.Record, want)
	}
	if m.Active(ctx, 1) || store.Len() != 0 {
		t.Fatal("session should be destroyed after completion")
	}
	if _, err := m.Advance(ctx, 1, text("again")); !errors.Is(err, core.ErrNoSession) {
		t.Fatalf("expected ErrNoSession after completion, got %v", err)
	}
}

func TestFlowWithTypedValues(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Start(ctx, 2, []string{"AB123CD"}); err != nil {
		t.Fatal(err)
	}
	for _, in := range []Input{text("ab123cd"), text(" Luca Bianchi "), text("12.345 km")} {
		if _, err := m.Advance(ctx, 2, in); err != nil {
			t.Fatalf("Advance(%v): %v", in, err)
		}
	}
	out, err := m.Advance(ctx, 2, text("  graffio sul paraurti "))
	if err != nil {
		t.Fatal(err)
	}
	rec := out.Record
	if rec.Driver != "LUCA BIANCHI" || rec.Odometer == nil || *rec.Odometer != 12345 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Notes == nil || *rec.Notes != "graffio sul paraurti" {
		t.Fatalf("notes = %v", rec.Notes)
	}
}

func TestSkipWords(t *testing.T) {
	for _, word := range []string{"skip", "SALTA", "-"} {
		m, _, _ := newTestManager(t)
		ctx := context.Background()
		if _, err := m.Start(ctx, 1, []string{"AB123CD"}); err != nil {
			t.Fatal(err)
		}
		m.Advance(ctx, 1, choice("plate:AB123CD"))
		m.Advance(ctx, 1, text("MARIO"))
		if _, err := m.Advance(ctx, 1, text(word)); err != nil {
			t.Fatalf("odometer skip %q: %v", word, err)
		}
		out, err := m.Advance(ctx, 1, text(word))
		if err != nil {
			t.Fatalf("notes skip %q: %v", word, err)
		}
		if out.Record.Odometer != nil || out.Record.Notes != nil {
			t.Fatalf("skip %q should leave optional fields empty: %+v", word, out.Record)
		}
	}
}

func TestStartAccessDenied(t *testing.T) {
	m, store, _ := newTestManager(t)
	_, err := m.Start(context.Background(), 99, []string{"AB123CD"})
	if !errors.Is(err, core.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatal("no session should be created for a denied identity")
	}
}

func TestStartWithoutPlates(t *testing.T) {
	m, store, _ := newTestManager(t)
	_, err := m.Start(context.Background(), 1, []string{"", "  "})
	if !errors.Is(err, core.ErrNoPlates) {
		t.Fatalf("expected ErrNoPlates, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatal("no session should be created without plates")
	}
}

func TestStartReplacesActiveSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	m.Start(ctx, 1, []string{"AB123CD"})
	m.Advance(ctx, 1, choice("plate:AB123CD"))
	first, _ := m.Current(ctx, 1)

	if _, err := m.Start(ctx, 1, []string{"XY999ZZ"}); err != nil {
		t.Fatal(err)
	}
	second, err := m.Current(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID == first.ID || second.State != StateSelectVehicle || second.Plate != "" {
		t.Fatalf("session not replaced: %+v", second)
	}
}

func TestCancelFromEveryState(t *testing.T) {
	inputs := []Input{choice("plate:AB123CD"), text("MARIO"), text("100")}
	for depth := 0; depth <= len(inputs); depth++ {
		for _, cancel := range []Input{{Kind: InputCancel}, choice(ChoiceCancel)} {
			m, store, _ := newTestManager(t)
			ctx := context.Background()
			m.Start(ctx, 1, []string{"AB123CD"})
			for _, in := range inputs[:depth] {
				if _, err := m.Advance(ctx, 1, in); err != nil {
					t.Fatal(err)
				}
			}

			out, err := m.Advance(ctx, 1, cancel)
			if err != nil {
				t.Fatalf("cancel at depth %d: %v", depth, err)
			}
			if out.State != StateCancelled || out.Record != nil {
				t.Fatalf("cancel at depth %d produced %+v", depth, out)
			}
			if store.Len() != 0 || m.Active(ctx, 1) {
				t.Fatalf("session survived cancel at depth %d", depth)
			}
		}
	}
}

func TestCancelWithoutSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	existed, err := m.Cancel(context.Background(), 1)
	if err != nil || existed {
		t.Fatalf("Cancel = %v, %v", existed, err)
	}
	if _, err := m.Advance(context.Background(), 1, Input{Kind: InputCancel}); !errors.Is(err, core.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestInvalidInputKeepsState(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	m.Start(ctx, 1, []string{"AB123CD"})

	cases := []struct {
		setup []Input
		bad   Input
		state State
	}{
		{nil, choice("plate:ZZ000ZZ"), StateSelectVehicle},
		{nil, text("not a plate"), StateSelectVehicle},
		{[]Input{choice("plate:AB123CD")}, text("   "), StateCollectDriver},
		{nil, choice(ChoiceSkip), StateCollectDriver},
		{nil, text(strings.Repeat("x", 101)), StateCollectDriver},
		{[]Input{text("MARIO")}, text("-5"), StateCollectOdometer},
		{nil, text("dodici"), StateCollectOdometer},
		{[]Input{text("100")}, text(strings.Repeat("n", 501)), StateCollectNotes},
		{nil, choice("plate:AB123CD"), StateCollectNotes},
	}
	for i, tc := range cases {
		for _, in := range tc.setup {
			if _, err := m.Advance(ctx, 1, in); err != nil {
				t.Fatalf("case %d setup: %v", i, err)
			}
		}
		before, _ := m.Current(ctx, 1)

		out, err := m.Advance(ctx, 1, tc.bad)
		var ve *core.ValidationError
		if !errors.As(err, &ve) || !errors.Is(err, core.ErrValidation) {
			t.Fatalf("case %d: expected ValidationError, got %v", i, err)
		}
		if ve.State != tc.state.String() {
			t.Fatalf("case %d: error state %s, want %s", i, ve.State, tc.state)
		}
		if out.State != tc.state || out.Prompt.Text == "" {
			t.Fatalf("case %d: outcome %+v", i, out)
		}

		after, _ := m.Current(ctx, 1)
		if !reflect.DeepEqual(before, after) {
			t.Fatalf("case %d: session changed on invalid input\nbefore %+v\nafter  %+v", i, before, after)
		}
	}
}

func TestCollectedFieldsFollowState(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	m.Start(ctx, 1, []string{"AB123CD"})

	check := func(wantState State, plate, driver bool, odo bool) {
		t.Helper()
		s, err := m.Current(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if s.State != wantState || (s.Plate != "") != plate || (s.Driver != "") != driver || (s.Odometer != nil) != odo {
			t.Fatalf("fields out of step with state: %+v", s)
		}
	}

	check(StateSelectVehicle, false, false, false)
	m.Advance(ctx, 1, choice("plate:AB123CD"))
	check(StateCollectDriver, true, false, false)
	m.Advance(ctx, 1, text("MARIO"))
	check(StateCollectOdometer, true, true, false)
	m.Advance(ctx, 1, text("42"))
	check(StateCollectNotes, true, true, true)
}

func TestIdleExpiry(t *testing.T) {
	m, store, clk := newTestManager(t)
	ctx := context.Background()
	m.Start(ctx, 1, []string{"AB123CD"})

	clk.Advance(29 * time.Minute)
	if _, err := m.Advance(ctx, 1, choice("plate:AB123CD")); err != nil {
		t.Fatalf("advance before timeout: %v", err)
	}

	clk.Advance(31 * time.Minute)
	if _, err := m.Advance(ctx, 1, text("MARIO")); !errors.Is(err, core.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatal("expired session should be deleted")
	}
	if _, err := m.Advance(ctx, 1, text("MARIO")); !errors.Is(err, core.ErrNoSession) {
		t.Fatalf("expected ErrNoSession after expiry, got %v", err)
	}
}

func TestRecordDateUsesLocation(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	clk := &clock{t: time.Date(2024, 3, 4, 23, 30, 0, 0, time.UTC)}
	m := NewManager(access.New([]int64{1}), NewMemoryStore(time.Hour, 10), Config{
		Location: rome,
		Now:      clk.Now,
		Logger:   log.New(log.Config{Output: io.Discard}),
	})
	ctx := context.Background()
	m.Start(ctx, 1, []string{"AB123CD"})
	for _, in := range []Input{choice("plate:AB123CD"), text("MARIO"), choice(ChoiceSkip)} {
		m.Advance(ctx, 1, in)
	}
	out, err := m.Advance(ctx, 1, choice(ChoiceSkip))
	if err != nil {
		t.Fatal(err)
	}
	if out.Record.Date.Day() != 5 {
		t.Fatalf("record date %v, want March 5th", out.Record.Date)
	}
}

func TestTransitionTable(t *testing.T) {
	legal := [][2]State{
		{StateSelectVehicle, StateCollectDriver},
		{StateCollectDriver, StateCollectOdometer},
		{StateCollectOdometer, StateCollectNotes},
		{StateCollectNotes, StateCompleted},
	}
	for _, p := range legal {
		if err := checkTransition(p[0], p[1]); err != nil {
			t.Errorf("%s -> %s rejected: %v", p[0], p[1], err)
		}
	}
	for _, s := range []State{StateSelectVehicle, StateCollectDriver, StateCollectOdometer, StateCollectNotes} {
		if err := checkTransition(s, StateCancelled); err != nil {
			t.Errorf("%s -> Cancelled rejected", s)
		}
	}

	illegal := [][2]State{
		{StateSelectVehicle, StateCollectNotes},
		{StateCollectDriver, StateSelectVehicle},
		{StateCompleted, StateCancelled},
		{StateCancelled, StateSelectVehicle},
	}
	for _, p := range illegal {
		if err := checkTransition(p[0], p[1]); !errors.Is(err, core.ErrInvalidTransition) {
			t.Errorf("%s -> %s should be rejected, got %v", p[0], p[1], err)
		}
	}
	if !StateCompleted.Terminal() || StateCollectNotes.Terminal() {
		t.Error("Terminal mismatch")
	}
}

func TestStateText(t *testing.T) {
	b, err := StateCollectOdometer.MarshalText()
	if err != nil || string(b) != "CollectOdometer" {
		t.Fatalf("MarshalText = %q, %v", b, err)
	}
	var s State
	if err := s.UnmarshalText([]byte("CollectNotes")); err != nil || s != StateCollectNotes {
		t.Fatalf("UnmarshalText = %v, %v", s, err)
	}
	if err := s.UnmarshalText([]byte("Bogus")); err == nil {
		t.Fatal("expected error for unknown state")
	}
}
