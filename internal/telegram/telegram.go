// Package telegram connects the dispatcher to the Telegram Bot API using long
// polling.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"flotta/internal/bot"
	"flotta/internal/log"
	"flotta/internal/session"
)

const (
	// maxMessageLen is the Bot API limit for one text message.
	maxMessageLen = 4096

	defaultPollTimeout   = 60
	defaultHandleTimeout = 30 * time.Second

	// Telegram allows about 30 messages per second per bot.
	sendRate  = 25
	sendBurst = 5
)

// API is the subset of *tgbotapi.BotAPI the transport uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Handler consumes inbound events.
type Handler interface {
	Handle(ctx context.Context, ev bot.Event) error
}

// Bot is the Telegram transport.
type Bot struct {
	api           API
	limiter       *rate.Limiter
	logger        *log.Logger
	pollTimeout   int
	handleTimeout time.Duration
}

var _ bot.Transport = (*Bot)(nil)

// New authenticates token against the Bot API.
func New(token string, logger *log.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	b := NewWithAPI(api, logger)
	_ = tgbotapi.SetLogger(botLogger{b.logger})
	b.logger.Info("Telegram bot authorized", log.FieldUsername, api.Self.UserName)
	return b, nil
}

func NewWithAPI(api API, logger *log.Logger) *Bot {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Bot{
		api:           api,
		limiter:       rate.NewLimiter(rate.Limit(sendRate), sendBurst),
		logger:        logger.WithComponent(log.ComponentTelegram),
		pollTimeout:   defaultPollTimeout,
		handleTimeout: defaultHandleTimeout,
	}
}

// Run polls updates and feeds them to h until ctx is cancelled. Events already
// received are handled before Run returns.
func (b *Bot) Run(ctx context.Context, h Handler) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = b.pollTimeout
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	updates := b.api.GetUpdatesChan(cfg)

	// Handlers outlive ctx so a shutdown does not cut a store write in half.
	base := context.WithoutCancel(ctx)
	q := newDispatchQueue(func(ev bot.Event) {
		hctx, cancel := context.WithTimeout(base, b.handleTimeout)
		defer cancel()
		if err := h.Handle(hctx, ev); err != nil {
			b.logger.ErrorContext(hctx, "Failed to handle update",
				log.FieldIdentity, ev.Identity,
				log.FieldInput, ev.Payload,
				log.FieldError, err)
		}
	})

	b.logger.Info("Polling for updates", "timeout_s", b.pollTimeout)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			q.wait()
			b.logger.Info("Stopped polling")
			return nil
		case u, ok := <-updates:
			if !ok {
				q.wait()
				return nil
			}
			ev, ok := b.toEvent(ctx, u)
			if ok {
				q.push(ev)
			}
		}
	}
}

// toEvent converts an update. Callback queries are answered here so the
// client stops its spinner even if handling is slow.
func (b *Bot) toEvent(ctx context.Context, u tgbotapi.Update) (bot.Event, bool) {
	switch {
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		cq := u.CallbackQuery
		if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			b.logger.WarnContext(ctx, "Failed to answer callback", log.FieldIdentity, cq.From.ID, log.FieldError, err)
		}
		kind := bot.EventChoice
		if cq.Data == session.ChoiceCancel {
			kind = bot.EventCancel
		}
		return bot.Event{Identity: cq.From.ID, Username: cq.From.UserName, Kind: kind, Payload: cq.Data}, true

	case u.Message != nil && u.Message.From != nil:
		m := u.Message
		if m.Chat != nil && !m.Chat.IsPrivate() {
			b.logger.DebugContext(ctx, "Ignoring non-private chat", "chat_id", m.Chat.ID)
			return bot.Event{}, false
		}
		if strings.TrimSpace(m.Text) == "" {
			return bot.Event{}, false
		}
		return bot.Event{Identity: m.From.ID, Username: m.From.UserName, Kind: bot.EventText, Payload: m.Text}, true
	}
	return bot.Event{}, false
}

// SendText sends text, split into several messages when longer than the API
// allows.
func (b *Bot) SendText(ctx context.Context, identity int64, text string) error {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if err := b.send(ctx, tgbotapi.NewMessage(identity, chunk)); err != nil {
			return err
		}
	}
	return nil
}

// SendChoice sends text with an inline keyboard, one button per row.
func (b *Bot) SendChoice(ctx context.Context, identity int64, text string, options []session.Option) error {
	msg := tgbotapi.NewMessage(identity, text)
	msg.ReplyMarkup = keyboard(options)
	return b.send(ctx, msg)
}

func (b *Bot) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send to %d: %w", msg.ChatID, err)
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send to %d: %w", msg.ChatID, err)
	}
	return nil
}

func keyboard(options []session.Option) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(options))
	for _, o := range options {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(o.Label, o.Value)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// splitMessage cuts text into chunks of at most limit UTF-16 code units,
// the unit the Bot API counts, preferring line breaks.
func splitMessage(text string, limit int) []string {
	if utf16Len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
			curLen = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf16Len(line)
		if curLen+n > limit {
			flush()
		}
		for n > limit {
			head, rest := cutUTF16(line, limit)
			chunks = append(chunks, head)
			line = rest
			n = utf16Len(line)
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return chunks
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

func runeUnits(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

// cutUTF16 splits s at the last rune boundary within limit units. The head
// holds at least one rune.
func cutUTF16(s string, limit int) (head, rest string) {
	units := 0
	for i, r := range s {
		u := runeUnits(r)
		if units+u > limit && i > 0 {
			return s[:i], s[i:]
		}
		units += u
	}
	return s, ""
}

// botLogger routes library output to the debug level.
type botLogger struct{ l *log.Logger }

func (b botLogger) Println(v ...any) { b.l.Debug(strings.TrimSpace(fmt.Sprintln(v...))) }

func (b botLogger) Printf(format string, v ...any) { b.l.Debug(fmt.Sprintf(format, v...)) }
