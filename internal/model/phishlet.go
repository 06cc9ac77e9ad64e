package model

import "time"

// Phishlet is a cloned page plus the metadata needed to serve and
// instrument it. HTML is never edited in place.
type Phishlet struct {
	ID                 int           `db:"id" json:"id"`
	Handle             string        `db:"handle" json:"handle"`
	Name               string        `db:"name" json:"name"`
	Description        string        `db:"description" json:"description,omitempty"`
	OriginalURL        string        `db:"original_url" json:"original_url"`
	HTML               string        `db:"html_content" json:"html_content,omitempty"`
	FormFields         []FormField   `db:"form_fields" json:"form_fields"`
	CaptureCredentials bool          `db:"capture_credentials" json:"capture_credentials"`
	CaptureOtherData   bool          `db:"capture_other_data" json:"capture_other_data"`
	RedirectURL        string        `db:"redirect_url" json:"redirect_url,omitempty"`
	TriggerRules       []TriggerRule `db:"trigger_rules" json:"trigger_rules,omitempty"`
	IsActive           bool          `db:"is_active" json:"is_active"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// Servable is false for pages the public endpoint must 404.
func (p *Phishlet) Servable() bool {
	return p != nil && p.IsActive && p.HTML != ""
}

// FormField describes one interactive element found inside a <form>.
type FormField struct {
	Tag         string `json:"tag"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	ID          string `json:"id"`
	Placeholder string `json:"placeholder"`
	Required    bool   `json:"required"`
	FormAction  string `json:"form_action"`
	FormMethod  string `json:"form_method"`
}

// TriggerRule wires a capture call to every element matching Selector via
// the inline handler attribute named by Event (onclick, onsubmit, ...).
type TriggerRule struct {
	Selector string `json:"selector" yaml:"selector"`
	Event    string `json:"event" yaml:"event"`
}

// DefaultTriggerRules is used when a phishlet does not carry its own policy.
var DefaultTriggerRules = []TriggerRule{
	{Selector: "button", Event: "onclick"},
	{Selector: "a", Event: "onclick"},
	{Selector: "h1", Event: "onclick"},
}
