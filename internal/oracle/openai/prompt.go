package openai

import (
	"fmt"
	"strings"

	"github.com/a3tai/pdf-form-filler/internal/oracle"
)

// buildSystemPrompt renders the instruction prompt for one field decision.
func buildSystemPrompt(q oracle.FieldQuery) string {
	var b strings.Builder
	b.WriteString("You are a meticulous form-filling assistant. ")
	b.WriteString("Decide whether the form field below can be answered from the user's facts.\n\n")

	b.WriteString("Form field:\n")
	fmt.Fprintf(&b, "- name: %s\n", q.Field.Name)
	if q.Field.Label != "" {
		fmt.Fprintf(&b, "- label: %s\n", q.Field.Label)
	}
	fmt.Fprintf(&b, "- page: %d\n", q.Field.Page)
	if q.Field.MaxLength > 0 {
		fmt.Fprintf(&b, "- max length: %d characters\n", q.Field.MaxLength)
	}
	if q.Field.Required {
		b.WriteString("- required: yes\n")
	}

	b.WriteString("\nDocument summary:\n")
	if q.DocumentDescription != "" {
		b.WriteString(q.DocumentDescription)
	} else {
		b.WriteString("No document summary available.")
	}

	b.WriteString("\n\nAvailable facts:\n")
	if q.FactsText != "" {
		b.WriteString(q.FactsText)
	} else {
		b.WriteString("No supporting facts provided.")
	}

	b.WriteString("\n\nRespond with a single JSON object: ")
	b.WriteString(`{"action":"fill","value":"...","confidence":0.0-1.0,"reason":"..."} `)
	b.WriteString(`to fill the field, or {"action":"skip","reason":"..."} `)
	b.WriteString("when no applicable fact exists. Never invent values.")
	return b.String()
}
