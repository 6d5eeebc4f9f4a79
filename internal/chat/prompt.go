package chat

import (
	"fmt"
	"strings"

	"github.com/pawfound/sighting-wizard/internal/draft"
)

const turnPromptHeader = `You are a friendly assistant collecting a lost or found pet report.
Talk to the user in short, warm messages and extract report fields from what they say.

Respond with ONLY a JSON object in this exact format:
{
  "message": "your reply to the user",
  "data": [{"field": "field name", "value": "field value"}]
}

Recognized fields: report_kind (lost_own or found_stray), pet_name, species, breed,
colors, gender, age, size (small, medium, large), features, collar_presence
(yes_collar or no), collar_description, behavior (friendly, scared, aggressive,
injured), location_text, latitude, longitude, last_seen (RFC 3339 timestamp),
notes, contact_name, contact_phone, contact_country.

Control fields:
- When every required detail is collected (report kind, species, colors, a
  location, a time, and a contact phone) include {"field": "complete", "value": "true"}.
- If the user is abusive, off-topic after warnings, or clearly trolling, include
  {"field": "offenseCounter", "value": "<count>"} where count increases by one
  each offending turn.

Only include fields the user actually stated this turn. Never invent values.`

// buildTurnPrompt assembles the prompt for one user turn: the standing
// instructions, the fields collected so far, and the new message.
func buildTurnPrompt(d draft.Draft, text string) string {
	var b strings.Builder
	b.WriteString(turnPromptHeader)
	b.WriteString("\n\nFields collected so far:\n")
	b.WriteString(collectedFields(d))
	b.WriteString("\nUser message:\n")
	b.WriteString(text)
	return b.String()
}

func collectedFields(d draft.Draft) string {
	var b strings.Builder
	add := func(f draft.Field, v string) {
		if v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", f, v)
		}
	}
	add(draft.FieldReportKind, string(d.Kind))
	add(draft.FieldPetName, d.PetName)
	add(draft.FieldSpecies, d.Species)
	add(draft.FieldBreed, d.Breed)
	add(draft.FieldColors, d.Colors)
	add(draft.FieldGender, d.Gender)
	add(draft.FieldAge, d.Age)
	add(draft.FieldSize, string(d.Size))
	add(draft.FieldFeatures, d.Features)
	add(draft.FieldCollarPresence, string(d.CollarPresence))
	add(draft.FieldCollarDescription, d.CollarDescription)
	add(draft.FieldBehavior, string(d.Behavior))
	add(draft.FieldLocationText, d.LocationText)
	if d.HasCoordinates() {
		fmt.Fprintf(&b, "- %s: %f\n- %s: %f\n", draft.FieldLatitude, *d.Latitude, draft.FieldLongitude, *d.Longitude)
	}
	if d.LastSeen != nil {
		fmt.Fprintf(&b, "- %s: %s\n", draft.FieldLastSeen, d.LastSeen.Format("2006-01-02T15:04:05Z07:00"))
	}
	add(draft.FieldNotes, d.Notes)
	add(draft.FieldContactName, d.ContactName)
	add(draft.FieldContactPhone, d.ContactPhone)
	add(draft.FieldContactCountry, d.ContactCountry)
	if b.Len() == 0 {
		return "(none yet)\n"
	}
	return b.String()
}
