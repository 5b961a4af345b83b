package snapshot

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Generator produces synthetic day snapshots. It stands in for real calendar,
// messaging, wearable and media integrations, which are out of scope.
type Generator struct {
	rng *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

type calendarTemplate struct {
	title       string
	description string
	durationMin int
}

type messageTemplate struct {
	subject  string
	body     string
	sender   string
	priority float64
}

var calendarTemplates = []calendarTemplate{
	{"Meeting", "Project deadline discussion", 60},
	{"Standup", "Daily team sync", 30},
	{"Lunch", "Team lunch at restaurant", 60},
	{"Review", "Code review session", 45},
	{"Presentation", "Client demo preparation", 90},
	{"Break", "Coffee break", 15},
	{"Workout", "Gym session", 60},
	{"Dinner", "Family dinner", 90},
}

var messageTemplates = []messageTemplate{
	{"Urgent update", "I'm feeling stressed about the deadline. Can we discuss?", "colleague@company.com", 3},
	{"Project status", "Everything is on track. Great work team!", "manager@company.com", 2},
	{"Meeting reminder", "Don't forget about our meeting at 3pm", "assistant@company.com", 2},
	{"Wellness check", "How are you doing? Haven't heard from you in a while.", "friend@email.com", 1},
	{"Newsletter", "Weekly tech updates and industry news", "newsletter@tech.com", 1},
}

var (
	activities  = []string{"walking", "running", "cycling", "gym", "yoga", "rest"}
	mediaGenres = []string{"pop", "rock", "electronic", "jazz", "classical", "hip-hop"}
	mediaMoods  = []string{"upbeat", "calm", "energetic", "relaxing", "focused", "motivational"}
	trackNames  = []string{
		"Midnight Dreams", "Electric Pulse", "Ocean Waves", "City Lights",
		"Mountain Peak", "Desert Wind", "Starlight", "Thunderstorm",
	}
	artists = []string{
		"The Beats", "Sound Waves", "Digital Dreams", "Acoustic Soul",
		"Neon Nights", "Crystal Clear", "Echo Valley", "Sky High",
	}
)

// GenerateDay builds a full synthetic snapshot anchored at now.
func (g *Generator) GenerateDay(now time.Time) *ContextSnapshot {
	return &ContextSnapshot{
		ID:       uuid.New().String(),
		TakenAt:  now,
		Calendar: g.generateCalendar(now, 5),
		Messages: g.generateMessages(now, 8),
		Activity: g.generateActivity(now, 6),
		Media:    g.generateMedia(now, 10),
	}
}

func (g *Generator) generateCalendar(now time.Time, n int) []ContextRecord {
	day := now.Truncate(24 * time.Hour)
	current := day.Add(9 * time.Hour)

	records := make([]ContextRecord, 0, n)
	for i := 0; i < n; i++ {
		tpl := calendarTemplates[g.rng.Intn(len(calendarTemplates))]
		records = append(records, ContextRecord{
			Timestamp: current,
			Category:  CategoryCalendar,
			Text:      fmt.Sprintf("Calendar: %s at %s. %s", tpl.title, current.Format("15:04"), tpl.description),
			Attributes: map[string]float64{
				"duration_minutes": float64(tpl.durationMin),
			},
		})
		current = current.Add(time.Duration(tpl.durationMin+15+g.rng.Intn(45)) * time.Minute)
	}
	return records
}

func (g *Generator) generateMessages(now time.Time, n int) []ContextRecord {
	current := now.Truncate(24 * time.Hour).Add(8 * time.Hour)

	records := make([]ContextRecord, 0, n)
	for i := 0; i < n; i++ {
		tpl := messageTemplates[g.rng.Intn(len(messageTemplates))]
		records = append(records, ContextRecord{
			Timestamp: current,
			Category:  CategoryMessage,
			Text:      fmt.Sprintf("Message from %s: %s. %s", tpl.sender, tpl.subject, tpl.body),
			Attributes: map[string]float64{
				"priority": tpl.priority,
			},
		})
		current = current.Add(time.Duration(g.rng.Intn(3)+1)*time.Hour + time.Duration(g.rng.Intn(60))*time.Minute)
	}
	return records
}

func (g *Generator) generateActivity(now time.Time, n int) []ContextRecord {
	current := now.Truncate(24 * time.Hour).Add(7 * time.Hour)
	steps := 0

	records := make([]ContextRecord, 0, n)
	for i := 0; i < n; i++ {
		activity := activities[g.rng.Intn(len(activities))]

		heartRate := 60 + g.rng.Intn(20)
		if activity != "rest" {
			steps += 500 + g.rng.Intn(2500)
			heartRate = 60 + g.rng.Intn(120)
		} else {
			steps += g.rng.Intn(500)
		}

		records = append(records, ContextRecord{
			Timestamp: current,
			Category:  CategoryActivity,
			Text:      fmt.Sprintf("Activity: %s at %s. Steps: %d, HR: %d", activity, current.Format("15:04"), steps, heartRate),
			Attributes: map[string]float64{
				"steps":      float64(steps),
				"heart_rate": float64(heartRate),
				"intensity":  float64(heartRate-60) / 120.0,
			},
		})
		current = current.Add(time.Duration(g.rng.Intn(3)+2) * time.Hour)
	}
	return records
}

func (g *Generator) generateMedia(now time.Time, n int) []ContextRecord {
	current := now.Truncate(24 * time.Hour).Add(6 * time.Hour)

	records := make([]ContextRecord, 0, n)
	for i := 0; i < n; i++ {
		track := trackNames[g.rng.Intn(len(trackNames))]
		artist := artists[g.rng.Intn(len(artists))]
		genre := mediaGenres[g.rng.Intn(len(mediaGenres))]
		mood := mediaMoods[g.rng.Intn(len(mediaMoods))]

		records = append(records, ContextRecord{
			Timestamp: current,
			Category:  CategoryMedia,
			Text:      fmt.Sprintf("Media: %s by %s (%s, %s)", track, artist, genre, mood),
		})
		current = current.Add(time.Duration(g.rng.Intn(105)+15) * time.Minute)
	}
	return records
}
