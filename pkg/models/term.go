package models

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// TermCategory classifies an extracted term.
type TermCategory string

// Term categories assigned by LLM classification.
const (
	CategoryPersonName   TermCategory = "person_name"
	CategoryPlaceName    TermCategory = "place_name"
	CategoryOrganization TermCategory = "organization"
	CategoryWorkName     TermCategory = "work_name"
	CategoryTechnical    TermCategory = "technical"
	CategoryCoined       TermCategory = "coined"
	CategoryCommonNoun   TermCategory = "common_noun"
)

// Valid reports whether c is one of the seven known categories.
func (c TermCategory) Valid() bool {
	switch c {
	case CategoryPersonName, CategoryPlaceName, CategoryOrganization,
		CategoryWorkName, CategoryTechnical, CategoryCoined, CategoryCommonNoun:
		return true
	}
	return false
}

// TermSource records how an excluded/required term entered the list.
type TermSource string

// Term sources.
const (
	TermSourceAuto   TermSource = "auto"
	TermSourceManual TermSource = "manual"
)

// ExtractedTerm is a candidate term produced by the extraction stage.
type ExtractedTerm struct {
	ID       int64        `json:"id"`
	TermText string       `json:"term_text"`
	Category TermCategory `json:"category,omitempty"`
}

// ExcludedTerm must not appear in the glossary unless also required.
type ExcludedTerm struct {
	ID        int64      `json:"id"`
	TermText  string     `json:"term_text"`
	Source    TermSource `json:"source"`
	CreatedAt time.Time  `json:"created_at"`
}

// RequiredTerm must appear in the glossary regardless of heuristic filters.
type RequiredTerm struct {
	ID        int64      `json:"id"`
	TermText  string     `json:"term_text"`
	Source    TermSource `json:"source"`
	CreatedAt time.Time  `json:"created_at"`
}

// NormalizeTermText applies NFC normalization and trims surrounding
// whitespace. All excluded/required term texts are stored in this form.
func NormalizeTermText(text string) string {
	return strings.TrimSpace(norm.NFC.String(text))
}
