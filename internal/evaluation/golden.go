package evaluation

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/proactive-assistant/backend/internal/snapshot"
)

// GoldenExample pairs a context snapshot with the nudge a careful human would
// want for it. Examples are immutable once loaded.
type GoldenExample struct {
	ID       string
	Snapshot *snapshot.ContextSnapshot
	Expected string
}

type goldenFileExample struct {
	ID       string             `json:"id"`
	Expected string             `json:"expected_nudge"`
	Records  []goldenFileRecord `json:"records"`
}

type goldenFileRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	Text      string    `json:"text"`
}

// LoadGoldenSet reads a golden dataset from a JSON file.
func LoadGoldenSet(path string) ([]GoldenExample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read golden set: %w", err)
	}

	var fileExamples []goldenFileExample
	if err := json.Unmarshal(data, &fileExamples); err != nil {
		return nil, fmt.Errorf("failed to parse golden set: %w", err)
	}

	examples := make([]GoldenExample, 0, len(fileExamples))
	for i, fe := range fileExamples {
		if fe.Expected == "" {
			return nil, fmt.Errorf("golden example %d has no expected nudge", i)
		}

		snap := &snapshot.ContextSnapshot{ID: uuid.New().String()}
		for _, rec := range fe.Records {
			record := snapshot.ContextRecord{
				Timestamp: rec.Timestamp,
				Category:  snapshot.Category(rec.Category),
				Text:      rec.Text,
			}
			switch record.Category {
			case snapshot.CategoryCalendar:
				snap.Calendar = append(snap.Calendar, record)
			case snapshot.CategoryMessage:
				snap.Messages = append(snap.Messages, record)
			case snapshot.CategoryActivity:
				snap.Activity = append(snap.Activity, record)
			case snapshot.CategoryMedia:
				snap.Media = append(snap.Media, record)
			default:
				return nil, fmt.Errorf("golden example %d has unknown category %q", i, rec.Category)
			}
			if record.Timestamp.After(snap.TakenAt) {
				snap.TakenAt = record.Timestamp
			}
		}

		id := fe.ID
		if id == "" {
			id = fmt.Sprintf("example_%d", i)
		}
		examples = append(examples, GoldenExample{ID: id, Snapshot: snap, Expected: fe.Expected})
	}

	return examples, nil
}

type goldenScenario struct {
	name     string
	expected string
	messages []string
	calendar []string
	activity []string
	media    []string
}

var goldenScenarios = []goldenScenario{
	{
		name:     "post_workout_stress",
		expected: "You've been working hard! Take a moment to breathe and hydrate after your workout. The deadline stress is understandable, so consider breaking it into smaller tasks.",
		messages: []string{"Urgent update: feeling stressed about the deadline"},
		activity: []string{"Just finished a workout, heart rate elevated"},
	},
	{
		name:     "pre_meeting_positive",
		expected: "Great to hear things are on track! Your upbeat music suggests positive energy, perfect for your upcoming meeting.",
		calendar: []string{"Meeting at 3pm"},
		messages: []string{"Everything is on track for the release"},
		media:    []string{"Playing upbeat tracks"},
	},
	{
		name:     "low_energy_day",
		expected: "It's okay to have slower days. Your body might need rest. Consider a gentle walk or stretching to boost energy naturally.",
		messages: []string{"Feeling tired today"},
		activity: []string{"Low step count today, around 2000 steps"},
		media:    []string{"Calm, relaxing tracks playing"},
	},
	{
		name:     "social_opportunity",
		expected: "Perfect timing for a team lunch! Social connection can boost your mood and energy for the rest of the day.",
		calendar: []string{"Lunch break"},
		messages: []string{"Team lunch invitation for today"},
		activity: []string{"Good activity levels this morning"},
	},
	{
		name:     "sedentary_deadline",
		expected: "I notice you haven't moved much today. A quick 10-minute walk could help clear your mind and boost focus for your deadline work.",
		messages: []string{"Deadline approaching at the end of the week"},
		activity: []string{"No recorded activity today"},
		media:    []string{"Motivational tracks playing"},
	},
}

// DefaultGoldenSet builds the built-in synthetic dataset: each scenario is
// repeated variations times with distinct example IDs and snapshot IDs.
func DefaultGoldenSet(now time.Time, variations int) []GoldenExample {
	if variations <= 0 {
		variations = 1
	}

	examples := make([]GoldenExample, 0, len(goldenScenarios)*variations)
	for _, scenario := range goldenScenarios {
		for v := 0; v < variations; v++ {
			examples = append(examples, GoldenExample{
				ID:       fmt.Sprintf("%s_%d", scenario.name, v),
				Snapshot: scenario.buildSnapshot(now),
				Expected: scenario.expected,
			})
		}
	}
	return examples
}

func (g goldenScenario) buildSnapshot(now time.Time) *snapshot.ContextSnapshot {
	snap := &snapshot.ContextSnapshot{
		ID:      uuid.New().String(),
		TakenAt: now,
	}

	add := func(dst *[]snapshot.ContextRecord, category snapshot.Category, texts []string) {
		for i, text := range texts {
			*dst = append(*dst, snapshot.ContextRecord{
				Timestamp: now.Add(-time.Duration(len(texts)-i) * 15 * time.Minute),
				Category:  category,
				Text:      text,
			})
		}
	}

	add(&snap.Calendar, snapshot.CategoryCalendar, g.calendar)
	add(&snap.Messages, snapshot.CategoryMessage, g.messages)
	add(&snap.Activity, snapshot.CategoryActivity, g.activity)
	add(&snap.Media, snapshot.CategoryMedia, g.media)
	return snap
}
