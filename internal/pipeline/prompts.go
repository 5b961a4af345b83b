package pipeline

import (
	"fmt"
	"strings"

	"github.com/proactive-assistant/backend/internal/retrieval"
	"github.com/proactive-assistant/backend/internal/snapshot"
)

const assessSystemPrompt = `You are an assistant that assesses a person's current state from ` +
	`fragments of their day. Respond with a single JSON object with fields ` +
	`"mood" (one short phrase), "confidence" (0.0 to 1.0) and "rationale" ` +
	`(one sentence). No other text.`

const nudgeSystemPrompt = `You are a gentle, supportive daily assistant. Given an assessment of ` +
	`the person's state and context from their day, write one short proactive ` +
	`suggestion (at most two sentences). Be specific to their context, never ` +
	`generic. Plain text only.`

// buildAssessPrompt summarizes the snapshot plus the retrieved records into
// the Assess stage prompt.
func buildAssessPrompt(snap *snapshot.ContextSnapshot, retrieved retrieval.Result) string {
	var b strings.Builder

	b.WriteString("Today's context snapshot:\n")
	writeCategory(&b, "Calendar", snap.Calendar)
	writeCategory(&b, "Messages", snap.Messages)
	writeCategory(&b, "Activity", snap.Activity)

	b.WriteString("\nMost relevant context items:\n")
	writeRetrieved(&b, retrieved)

	b.WriteString("\nAssess the person's current mood and what they might need right now.")
	return b.String()
}

// buildNudgePrompt folds the assessment, the retrieved context and the
// snapshot's media history into the Generate stage prompt. Media preferences
// personalize the suggestion's tone.
func buildNudgePrompt(snap *snapshot.ContextSnapshot, retrieved retrieval.Result, assessment Assessment) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Assessment: mood=%s, confidence=%.2f. %s\n",
		assessment.Mood, assessment.Confidence, assessment.Rationale)

	b.WriteString("\nRelevant context:\n")
	writeRetrieved(&b, retrieved)

	if len(snap.Media) > 0 {
		b.WriteString("\nRecent media they enjoyed:\n")
		for _, rec := range lastN(snap.Media, 3) {
			fmt.Fprintf(&b, "- %s\n", rec.Text)
		}
	}

	b.WriteString("\nWrite one proactive nudge for this person.")
	return b.String()
}

func writeCategory(b *strings.Builder, label string, records []snapshot.ContextRecord) {
	if len(records) == 0 {
		fmt.Fprintf(b, "%s: (none)\n", label)
		return
	}

	fmt.Fprintf(b, "%s:\n", label)
	for _, rec := range lastN(records, 5) {
		fmt.Fprintf(b, "- [%s] %s\n", rec.Timestamp.Format("15:04"), rec.Text)
	}
}

func writeRetrieved(b *strings.Builder, retrieved retrieval.Result) {
	if len(retrieved) == 0 {
		b.WriteString("(no additional context available)\n")
		return
	}

	for _, scored := range retrieved {
		fmt.Fprintf(b, "- (%s, score %.2f) %s\n",
			scored.Record.Category, scored.Score, scored.Record.Text)
	}
}

func lastN(records []snapshot.ContextRecord, n int) []snapshot.ContextRecord {
	if len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}
