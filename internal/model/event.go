package model

import (
	"encoding/json"
	"time"
)

// EmailEvent is one append-only audit entry. Opened (pixel) and clicked
// (page visit) are recorded as separate event types.
type EmailEvent struct {
	ID         int             `db:"id" json:"id"`
	CampaignID int             `db:"campaign_id" json:"campaign_id"`
	TargetID   int             `db:"target_id" json:"target_id"`
	EventType  Signal          `db:"event_type" json:"event_type"`
	EventData  json.RawMessage `db:"event_data" json:"event_data,omitempty"`
	IPAddress  string          `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent  string          `db:"user_agent" json:"user_agent,omitempty"`
	Timestamp  time.Time       `db:"timestamp" json:"timestamp"`
}
