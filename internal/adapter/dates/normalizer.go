// Package dates приводит строковые даты лент и API к единому формату.
package dates

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// layouts - форматы RSS, которые проверяются до свободного разбора.
var layouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339Nano,
	time.RFC3339,
}

// Normalizer разбирает даты и подставляет текущее время при неудаче.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer создает нормализатор с заданными часами. nil означает time.Now.
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Parse пытается разобрать строку. ok=false, если ни один способ не подошел.
func Parse(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Normalize возвращает разобранную дату или текущее время.
// Ошибка разбора наружу не выходит.
func (n *Normalizer) Normalize(raw string) time.Time {
	t, _ := n.NormalizeChecked(raw)
	return t
}

// NormalizeChecked - то же, что Normalize, но сообщает, была ли подставлена текущая дата.
func (n *Normalizer) NormalizeChecked(raw string) (time.Time, bool) {
	if t, ok := Parse(raw); ok {
		return t, true
	}
	return n.now(), false
}

// Normalize использует системные часы.
func Normalize(raw string) time.Time {
	return NewNormalizer(nil).Normalize(raw)
}

// FormatTimestamp возвращает представление, которое пишется в published_at.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}
