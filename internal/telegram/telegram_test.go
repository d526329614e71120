package telegram

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flotta/internal/bot"
	"flotta/internal/log"
	"flotta/internal/session"
)

type fakeAPI struct {
	mu        sync.Mutex
	sent      []tgbotapi.MessageConfig
	callbacks []string
	updates   chan tgbotapi.Update
	stopped   bool
	sendErr   error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, c.(tgbotapi.CallbackConfig).CallbackQueryID)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

type recordingHandler struct {
	mu     sync.Mutex
	events []bot.Event
}

func (h *recordingHandler) Handle(_ context.Context, ev bot.Event) error {
	time.Sleep(time.Millisecond)
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	return nil
}

func quietLogger() *log.Logger { return log.New(log.Config{Output: io.Discard}) }

func textUpdate(user int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: user, UserName: "u"},
		Chat: &tgbotapi.Chat{ID: user, Type: "private"},
		Text: text,
	}}
}

func callbackUpdate(user int64, id, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   id,
		From: &tgbotapi.User{ID: user},
		Data: data,
	}}
}

func TestRunDeliversEventsInOrder(t *testing.T) {
	api := &fakeAPI{updates: make(chan tgbotapi.Update, 16)}
	b := NewWithAPI(api, quietLogger())
	h := &recordingHandler{}

	api.updates <- textUpdate(1, "/nuovo")
	api.updates <- callbackUpdate(1, "cb1", "plate:AB123CD")
	api.updates <- textUpdate(2, "/help")
	api.updates <- textUpdate(1, "mario")
	api.updates <- callbackUpdate(1, "cb2", session.ChoiceCancel)
	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 3},
		Chat: &tgbotapi.Chat{ID: -100, Type: "group"},
		Text: "/report",
	}}
	close(api.updates)

	if err := b.Run(context.Background(), h); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var user1 []string
	for _, ev := range h.events {
		if ev.Identity == 1 {
			user1 = append(user1, string(ev.Kind)+" "+ev.Payload)
		}
		if ev.Identity == 3 {
			t.Fatal("group message was dispatched")
		}
	}
	want := []string{"text /nuovo", "choice plate:AB123CD", "text mario", "cancel cancel"}
	if strings.Join(user1, "|") != strings.Join(want, "|") {
		t.Fatalf("identity 1 events = %v", user1)
	}
	if len(h.events) != 5 {
		t.Fatalf("got %d events, want 5", len(h.events))
	}
	if strings.Join(api.callbacks, ",") != "cb1,cb2" {
		t.Fatalf("answered callbacks = %v", api.callbacks)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	api := &fakeAPI{updates: make(chan tgbotapi.Update)}
	b := NewWithAPI(api, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, &recordingHandler{}) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !api.stopped {
		t.Fatal("updates not stopped")
	}
}

func TestSendChoiceKeyboard(t *testing.T) {
	api := &fakeAPI{}
	b := NewWithAPI(api, quietLogger())

	opts := []session.Option{{Label: "🚗 AB123CD", Value: "plate:AB123CD"}, {Label: "❌ Annulla", Value: "cancel"}}
	if err := b.SendChoice(context.Background(), 42, "Seleziona", opts); err != nil {
		t.Fatalf("SendChoice: %v", err)
	}
	msg := api.sent[0]
	if msg.ChatID != 42 || msg.Text != "Seleziona" {
		t.Fatalf("message = %+v", msg)
	}
	kb := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if len(kb.InlineKeyboard) != 2 || len(kb.InlineKeyboard[0]) != 1 {
		t.Fatalf("keyboard layout = %+v", kb.InlineKeyboard)
	}
	if data := kb.InlineKeyboard[0][0].CallbackData; data == nil || *data != "plate:AB123CD" {
		t.Fatalf("callback data = %v", data)
	}
}

func TestSendTextError(t *testing.T) {
	api := &fakeAPI{sendErr: errors.New("bot was blocked by the user")}
	b := NewWithAPI(api, quietLogger())
	if err := b.SendText(context.Background(), 1, "ciao"); err == nil {
		t.Fatal("expected send error")
	}
}

func TestSplitMessage(t *testing.T) {
	short := "📊 Report"
	if got := splitMessage(short, 10); len(got) != 1 || got[0] != short {
		t.Fatalf("short text split: %q", got)
	}

	text := strings.Repeat("riga di prova\n", 10)
	chunks := splitMessage(text, 30)
	for _, c := range chunks {
		if utf16Len(c) > 30 {
			t.Fatalf("chunk too long: %q", c)
		}
	}
	if strings.Count(strings.Join(chunks, "\n"), "riga di prova") != 10 {
		t.Fatalf("lines lost: %q", chunks)
	}

	long := strings.Repeat("è", 25)
	chunks = splitMessage(long, 10)
	if len(chunks) != 3 || utf16Len(chunks[2]) != 5 {
		t.Fatalf("long line chunks = %q", chunks)
	}
}

func TestSplitMessageCountsUTF16(t *testing.T) {
	// Each emoji is one rune but two UTF-16 units.
	if n := utf16Len("🚗 AB123CD"); n != 10 {
		t.Fatalf("utf16Len = %d, want 10", n)
	}

	lines := strings.Repeat("🚗🚗🚗 MARIO\n", 6) // 13 units per line, newline included
	chunks := splitMessage(lines, 30)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3: %q", len(chunks), chunks)
	}

	cars := strings.Repeat("🚗", 6)
	chunks = splitMessage(cars, 5)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3: %q", len(chunks), chunks)
	}
	for _, c := range chunks {
		if utf16Len(c) > 5 || c != "🚗🚗" {
			t.Fatalf("chunk %q splits a surrogate pair or exceeds the limit", c)
		}
	}
}
