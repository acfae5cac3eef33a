package conversation

import (
	"fmt"
	"strings"

	"github.com/tdcoflosgatos/studio-assistant/internal/classes"
)

// studioContext is the background knowledge the concierge answers from. It is
// embedded so the assistant keeps working when the sheet is unreachable.
const studioContext = `
Dance Season:
- 2025-2026: Sept 8 to June 15 (10-month)
- Registration fee: $65 at sign-up
- Location: 540 N Santa Cruz Ave, Los Gatos, CA 95030, USA
- Phone number: (408) 204-6849
- Email: admin@tdcoflosgatos.com

Monthly Tuition (Sept-June):
- Drop-in: $35
- 1 class/week: $100
- 2 classes/week: $195
- 3 classes/week: $285
- 4 classes/week: $365
- 5 classes/week: $445
- 6-8 classes/week: $515
- 9+ classes: add $25 per class
- Family (6-8 classes each): 2 dancers -> $700; 3 dancers -> $975
- Competition Solo/Duo/Trio: $50

Billing & Payments:
- Monthly fixed rate, regardless of number of classes per month
- Auto credit-card only; no cash/check
- Due 1st; delinquent if not paid by 6 pm on 5th
- $15 late charge if payment declined and not updated before 5th
- Billing inquiries: admin@tdcoflosgatos.com

Refunds & Class Changes:
- No refunds after first class
- Class changes via email; transfer if space; new class starts next week
- Full withdrawal: email two weeks before month end; otherwise tuition continues
- Re-registration fee: $25 if re-enrolling in the same dance season
- Class cancellation (<4 dancers): full refund if no alternative available

Attendance & Studio Rules:
- Regular attendance required
- Dress code: hair in bun for ballet; ponytail for others
- Arrive 10 min early; >15 min late may affect participation
- No food/drinks/gum in studio/lobby (water OK)
- No make-ups; teacher-canceled class gets a make-up scheduled later

Showcase (mid-June):
- All enrolled dancers participate
- Costume charges in early March; no costume refunds after the March deadline

Recital & Observation:
- Recital is optional but common; costumes ordered in February
- Closed-door policy: parents observe first week each month via lobby windows
`

// formatClassesForPrompt renders the catalog grouped by day so the model can
// quote real names, times, and instructors.
func formatClassesForPrompt(all []classes.Class) string {
	if len(all) == 0 {
		return "No classes currently available."
	}

	byDay := map[string][]classes.Class{}
	var dayOrder []string
	for _, c := range all {
		if _, seen := byDay[c.Day]; !seen {
			dayOrder = append(dayOrder, c.Day)
		}
		byDay[c.Day] = append(byDay[c.Day], c)
	}

	var b strings.Builder
	b.WriteString("AVAILABLE CLASSES:\n")
	for _, day := range dayOrder {
		fmt.Fprintf(&b, "\n%s:\n", day)
		for _, c := range byDay[day] {
			fmt.Fprintf(&b, "- %s (Ages %s) at %s", c.Name, c.AgeRange, c.Time)
			if c.Instructor != "" {
				fmt.Fprintf(&b, " with %s", c.Instructor)
			}
			if c.Level != "" {
				fmt.Fprintf(&b, " [%s]", c.Level)
			}
			if c.Description != "" {
				fmt.Fprintf(&b, " - %s", c.Description)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// buildSystemPrompt assembles the concierge instructions, studio knowledge,
// class catalog, and the preferences gathered so far.
func buildSystemPrompt(catalog []classes.Class, prefs Preferences) string {
	var b strings.Builder

	b.WriteString("You are a friendly concierge for a dance studio. Be warm, conversational, and helpful.\n\n")
	b.WriteString("STUDIO CONTEXT:\n")
	b.WriteString(studioContext)
	b.WriteString("\n")
	b.WriteString(formatClassesForPrompt(catalog))
	b.WriteString(`
Your role:
- Answer questions using the studio context and class information above
- Help families find the right dance class for their child
- Start by asking about the child's age, preferred dance style, and what days work best
- Be concise and always end with ONE clear question to keep the conversation flowing
- When suggesting classes, use the exact names, times, ages, and instructors listed above
- After recommending classes, offer to schedule a callback with the studio owner
- Only use the schedule_call action when the user explicitly says YES to a callback

RESPONSE FORMAT:
Return JSON with:
{
  "message": "Your response to the user",
  "action": "continue|schedule_call",
  "preferences": {
    "age": number or null,
    "style": "string or null",
    "dayPreference": "string or null"
  },
  "recommendedClasses": ["class names that match their preferences"]
}

ACTIONS:
- "continue": regular conversation, answering questions, offering callbacks
- "schedule_call": ONLY when the user explicitly agrees to schedule a callback
- When using schedule_call, do not ask for contact details in the message; the booking form collects them
`)

	fmt.Fprintf(&b, "\nCurrent user preferences: age=%s style=%s dayPreference=%s\n",
		orUnknown(prefs.AgeString()), orUnknown(prefs.Style), orUnknown(prefs.DayPreference))

	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
