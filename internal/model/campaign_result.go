// internal/model/campaign_result.go
package model

import (
	"encoding/json"
	"time"
)

// Signal is one observable recipient action.
type Signal string

const (
	SignalSent      Signal = "sent"
	SignalOpened    Signal = "opened"
	SignalClicked   Signal = "clicked"
	SignalSubmitted Signal = "submitted"
)

// Merge is a single field-level update applied to a CampaignResult.
type Merge struct {
	Signal    Signal
	At        time.Time
	Payload   json.RawMessage
	IPAddress string
	UserAgent string
}

// CampaignResult is the per (campaign, target) funnel row.
type CampaignResult struct {
	ID                  int               `db:"id" json:"id"`
	CampaignID          int               `db:"campaign_id" json:"campaign_id"`
	TargetID            int               `db:"target_id" json:"target_id"`
	EmailSent           bool              `db:"email_sent" json:"email_sent"`
	EmailSentAt         *time.Time        `db:"email_sent_at" json:"email_sent_at,omitempty"`
	EmailOpened         bool              `db:"email_opened" json:"email_opened"`
	EmailOpenedAt       *time.Time        `db:"email_opened_at" json:"email_opened_at,omitempty"`
	LinkClicked         bool              `db:"link_clicked" json:"link_clicked"`
	LinkClickedAt       *time.Time        `db:"link_clicked_at" json:"link_clicked_at,omitempty"`
	FormSubmitted       bool              `db:"form_submitted" json:"form_submitted"`
	FormSubmittedAt     *time.Time        `db:"form_submitted_at" json:"form_submitted_at,omitempty"`
	CredentialsCaptured bool              `db:"credentials_captured" json:"credentials_captured"`
	CapturedData        []json.RawMessage `db:"captured_data" json:"captured_data"`
	IPAddress           string            `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent           string            `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt           time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time         `db:"updated_at" json:"updated_at"`
}

// Apply merges m into r. Booleans only ever turn on, timestamps are set
// once, and the opened -> clicked -> submitted funnel cascades backwards so
// a later stage always implies the earlier ones. Sent never cascades.
//
// The SQL repository expresses the same rules as a single UPDATE; this is
// the in-process version used by the embedded store.
func (r *CampaignResult) Apply(m Merge) {
	at := m.At
	setOnce := func(flag *bool, ts **time.Time) {
		*flag = true
		if *ts == nil {
			t := at
			*ts = &t
		}
	}

	switch m.Signal {
	case SignalSent:
		setOnce(&r.EmailSent, &r.EmailSentAt)
	case SignalOpened:
		setOnce(&r.EmailOpened, &r.EmailOpenedAt)
	case SignalClicked:
		setOnce(&r.EmailOpened, &r.EmailOpenedAt)
		setOnce(&r.LinkClicked, &r.LinkClickedAt)
	case SignalSubmitted:
		setOnce(&r.EmailOpened, &r.EmailOpenedAt)
		setOnce(&r.LinkClicked, &r.LinkClickedAt)
		setOnce(&r.FormSubmitted, &r.FormSubmittedAt)
		r.CredentialsCaptured = true
		if len(m.Payload) > 0 {
			r.CapturedData = append(r.CapturedData, append(json.RawMessage(nil), m.Payload...))
		}
	}

	if r.IPAddress == "" {
		r.IPAddress = m.IPAddress
	}
	if r.UserAgent == "" {
		r.UserAgent = m.UserAgent
	}
	if at.After(r.UpdatedAt) {
		r.UpdatedAt = at
	}
}

// CampaignStats summarises the funnel for one campaign.
type CampaignStats struct {
	Total     int `json:"total"`
	Sent      int `json:"sent"`
	Opened    int `json:"opened"`
	Clicked   int `json:"clicked"`
	Submitted int `json:"submitted"`
	Captured  int `json:"captured"`
}

// Tally adds one result row to the stats.
func (s *CampaignStats) Tally(r *CampaignResult) {
	s.Total++
	if r.EmailSent {
		s.Sent++
	}
	if r.EmailOpened {
		s.Opened++
	}
	if r.LinkClicked {
		s.Clicked++
	}
	if r.FormSubmitted {
		s.Submitted++
	}
	if r.CredentialsCaptured {
		s.Captured++
	}
}
