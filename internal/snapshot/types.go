package snapshot

import (
	"sort"
	"time"
)

// Category tags a context record with its source stream.
type Category string

const (
	CategoryCalendar Category = "calendar"
	CategoryMessage  Category = "message"
	CategoryActivity Category = "activity"
	CategoryMedia    Category = "media"
)

// Categories lists every stream a snapshot carries, in snapshot order.
var Categories = []Category{CategoryCalendar, CategoryMessage, CategoryActivity, CategoryMedia}

// ContextRecord is one observation from a source stream: a timestamped piece
// of free-form text with optional numeric attributes (priority, intensity,
// heart rate and the like).
type ContextRecord struct {
	Timestamp  time.Time
	Category   Category
	Text       string
	Attributes map[string]float64
}

// ContextSnapshot bundles everything known about the user's day at the moment
// a nudge is requested. It is created once by the snapshot source and treated
// as read-only for the rest of the request.
type ContextSnapshot struct {
	ID       string
	TakenAt  time.Time
	Calendar []ContextRecord
	Messages []ContextRecord
	Activity []ContextRecord
	Media    []ContextRecord
}

// Records returns the four streams flattened into a single slice, calendar
// first, matching the order of Categories.
func (s *ContextSnapshot) Records() []ContextRecord {
	out := make([]ContextRecord, 0, len(s.Calendar)+len(s.Messages)+len(s.Activity)+len(s.Media))
	out = append(out, s.Calendar...)
	out = append(out, s.Messages...)
	out = append(out, s.Activity...)
	out = append(out, s.Media...)
	return out
}

// ByCategory returns the stream for one category.
func (s *ContextSnapshot) ByCategory(c Category) []ContextRecord {
	switch c {
	case CategoryCalendar:
		return s.Calendar
	case CategoryMessage:
		return s.Messages
	case CategoryActivity:
		return s.Activity
	case CategoryMedia:
		return s.Media
	}
	return nil
}

// Empty reports whether the snapshot holds no records in any category.
func (s *ContextSnapshot) Empty() bool {
	return len(s.Calendar) == 0 && len(s.Messages) == 0 && len(s.Activity) == 0 && len(s.Media) == 0
}

// Recent returns up to n records across all categories, newest first.
func (s *ContextSnapshot) Recent(n int) []ContextRecord {
	all := s.Records()
	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}
