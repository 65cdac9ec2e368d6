package models

import "time"

// GlossaryEntry is a single glossary item. Provisional and refined entries
// share this shape; they live in separate tables.
type GlossaryEntry struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	Definition string   `json:"definition"`
	Confidence float64  `json:"confidence"`
	Aliases    []string `json:"aliases"`
}

// Issue is a reviewer-identified defect attached to a provisional entry.
type Issue struct {
	ID          int64  `json:"id"`
	TermName    string `json:"term_name"`
	IssueType   string `json:"issue_type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// SynonymGroup is an equivalence class of surface forms with one designated
// primary. Invariant: PrimaryTermText is always a member.
type SynonymGroup struct {
	ID              int64    `json:"id"`
	PrimaryTermText string   `json:"primary_term_text"`
	Members         []string `json:"members"`
}

// ContainsPrimary reports whether the primary term is among the members.
func (g SynonymGroup) ContainsPrimary() bool {
	for _, m := range g.Members {
		if m == g.PrimaryTermText {
			return true
		}
	}
	return false
}

// Project is a catalog entry. Name doubles as the directory segment holding
// the per-project database file.
type Project struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	DocRoot    string    `json:"doc_root"`
	LLMProvider string   `json:"llm_provider"`
	LLMModel   string    `json:"llm_model"`
	LLMBaseURL string    `json:"llm_base_url"`
	CreatedAt  time.Time `json:"created_at"`
}
