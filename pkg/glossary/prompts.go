package glossary

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/glossforge/glossforge/pkg/llm"
	"github.com/glossforge/glossforge/pkg/models"
)

// Document content is interpolated under this tag; EscapePromptContent
// neutralizes the tag inside untrusted text.
const contextTag = "context"

// classifySchema validates the single-term classification response.
var classifySchema = llm.MustSchema(`{
	"type": "object",
	"properties": {
		"category": {
			"type": "string",
			"enum": ["person_name", "place_name", "organization", "work_name", "technical", "coined", "common_noun"]
		}
	},
	"required": ["category"]
}`)

// entrySchema validates generation and refinement responses.
var entrySchema = llm.MustSchema(`{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"definition": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"aliases": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["name", "definition", "confidence"]
}`)

// reviewSchema validates the reviewer response.
var reviewSchema = llm.MustSchema(`{
	"type": "object",
	"properties": {
		"issues": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"term_name": {"type": "string"},
					"issue_type": {"type": "string"},
					"description": {"type": "string"},
					"severity": {"type": "string"}
				},
				"required": ["term_name", "issue_type", "description"]
			}
		}
	},
	"required": ["issues"]
}`)

func classifyPrompt(term string) string {
	var b strings.Builder
	b.WriteString("You classify terms found in a document corpus into exactly one category.\n")
	b.WriteString("Categories: person_name, place_name, organization, work_name, technical, coined, common_noun.\n")
	b.WriteString("Respond with JSON only: {\"category\": \"...\"}\n\n")
	b.WriteString("## Example\n")
	b.WriteString("用語: 東京タワー\n")
	b.WriteString(`{"category": "place_name"}` + "\n\n")
	b.WriteString("## Example\n")
	b.WriteString("用語: プロトコル\n")
	b.WriteString(`{"category": "common_noun"}` + "\n\n")
	b.WriteString("## 今回の用語:\n")
	b.WriteString(llm.EscapePromptContent(term, contextTag))
	b.WriteString("\n")
	return b.String()
}

func generatePrompt(term Term, snippets []string) string {
	var b strings.Builder
	b.WriteString("Write a glossary entry for the term below, grounded only in the provided context.\n")
	b.WriteString("Respond with JSON only, matching this schema:\n")
	b.WriteString(entrySchema.Raw())
	b.WriteString("\n\nContext excerpts:\n")
	for _, s := range snippets {
		b.WriteString(llm.WrapPromptContent(s, contextTag))
		b.WriteString("\n")
	}
	b.WriteString("\n## 今回の用語:\n")
	b.WriteString(llm.EscapePromptContent(term.Text, contextTag))
	fmt.Fprintf(&b, " (category: %s)\n", term.Category)
	return b.String()
}

func reviewPrompt(entries []models.GlossaryEntry) string {
	payload, _ := json.Marshal(entries)
	var b strings.Builder
	b.WriteString("Review the glossary entries below for defects: factual errors, vague definitions,\n")
	b.WriteString("duplicated meanings, and inconsistent naming. Report zero or more issues.\n")
	b.WriteString("Respond with JSON only, matching this schema:\n")
	b.WriteString(reviewSchema.Raw())
	b.WriteString("\n\nEntries:\n")
	b.WriteString(llm.WrapPromptContent(string(payload), contextTag))
	b.WriteString("\n")
	return b.String()
}

func refinePrompt(entry models.GlossaryEntry, issues []models.Issue, snippets []string) string {
	payload, _ := json.Marshal(entry)
	issuePayload, _ := json.Marshal(issues)
	var b strings.Builder
	b.WriteString("Rewrite the glossary entry below to resolve the listed issues. Keep the name\n")
	b.WriteString("unless an issue explicitly concerns it.\n")
	b.WriteString("Respond with JSON only, matching this schema:\n")
	b.WriteString(entrySchema.Raw())
	b.WriteString("\n\nEntry:\n")
	b.WriteString(llm.WrapPromptContent(string(payload), contextTag))
	b.WriteString("\n\nIssues:\n")
	b.WriteString(llm.WrapPromptContent(string(issuePayload), contextTag))
	if len(snippets) > 0 {
		b.WriteString("\n\nContext excerpts:\n")
		for _, s := range snippets {
			b.WriteString(llm.WrapPromptContent(s, contextTag))
			b.WriteString("\n")
		}
	}
	return b.String()
}
