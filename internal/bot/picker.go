package bot

import (
	"strconv"
	"strings"
	"time"

	"flotta/internal/cache"
	"flotta/internal/report"
	"flotta/internal/session"
)

// Choice payload prefixes of the report picker.
const (
	YearPrefix  = "year:"
	MonthPrefix = "month:"
)

// yearsOffered is how many years the picker lists, current year included.
const yearsOffered = 3

// pickerState tracks a /report without arguments. Year is zero while the
// user still has to pick one.
type pickerState struct {
	Year int
}

// pickers holds report picker state per identity. Entries expire with the
// same idle timeout as entry sessions.
type pickers struct {
	cache *cache.LRUCache[pickerState]
}

func newPickers(maxSize int, ttl time.Duration, opts ...cache.Option) *pickers {
	return &pickers{cache: cache.NewLRUCache[pickerState](maxSize, ttl, opts...)}
}

func pickerKey(identity int64) string {
	return strconv.FormatInt(identity, 10)
}

func (p *pickers) get(identity int64) (pickerState, bool) {
	return p.cache.Get(pickerKey(identity))
}

func (p *pickers) set(identity int64, st pickerState) {
	p.cache.Set(pickerKey(identity), st)
}

func (p *pickers) clear(identity int64) bool {
	return p.cache.Delete(pickerKey(identity))
}

func yearOptions(now time.Time) []session.Option {
	opts := make([]session.Option, 0, yearsOffered+1)
	for y := now.Year(); y > now.Year()-yearsOffered; y-- {
		s := strconv.Itoa(y)
		opts = append(opts, session.Option{Label: s, Value: YearPrefix + s})
	}
	return append(opts, session.Option{Label: "❌ Annulla", Value: session.ChoiceCancel})
}

func monthOptions() []session.Option {
	opts := make([]session.Option, 0, 13)
	for m := 1; m <= 12; m++ {
		opts = append(opts, session.Option{Label: report.MonthName(m), Value: MonthPrefix + strconv.Itoa(m)})
	}
	return append(opts, session.Option{Label: "❌ Annulla", Value: session.ChoiceCancel})
}

// parseYear accepts a year choice within the offered range.
func parseYear(payload string, now time.Time) (int, bool) {
	y, err := strconv.Atoi(strings.TrimPrefix(payload, YearPrefix))
	if err != nil || y > now.Year() || y <= now.Year()-yearsOffered {
		return 0, false
	}
	return y, true
}

func parseMonth(payload string) (int, bool) {
	m, err := strconv.Atoi(strings.TrimPrefix(payload, MonthPrefix))
	if err != nil || m < 1 || m > 12 {
		return 0, false
	}
	return m, true
}

func isPickerPayload(payload string) bool {
	return strings.HasPrefix(payload, YearPrefix) || strings.HasPrefix(payload, MonthPrefix)
}
