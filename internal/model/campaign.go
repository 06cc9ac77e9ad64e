// internal/model/campaign.go
package model

import (
	"time"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
)

const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusRunning   = "running"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
	CampaignStatusCancelled = "cancelled"
)

const (
	TargetTypeGroup      = "group"
	TargetTypeIndividual = "individual"
)

type Campaign struct {
	ID                int        `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	Description       string     `db:"description" json:"description,omitempty"`
	SenderProfileID   int        `db:"sender_profile_id" json:"sender_profile_id"`
	EmailTemplateID   int        `db:"email_template_id" json:"email_template_id"`
	PhishletID        *int       `db:"phishlet_id" json:"phishlet_id,omitempty"`
	AttachmentID      *int       `db:"attachment_id" json:"attachment_id,omitempty"`
	TargetType        string     `db:"target_type" json:"target_type"`
	TargetGroupID     *int       `db:"target_group_id" json:"target_group_id,omitempty"`
	TargetIndividuals []int      `db:"target_individuals" json:"target_individuals,omitempty"`
	Status            string     `db:"status" json:"status"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	ScheduledAt       *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	DispatchStartedAt *time.Time `db:"dispatch_started_at" json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Validate checks the two structural invariants: exactly one payload
// (phishlet or attachment) and exactly one target selection mode.
func (c *Campaign) Validate() error {
	if c.SenderProfileID <= 0 {
		return appErrors.NewInvalid("sender profile is required")
	}
	if c.EmailTemplateID <= 0 {
		return appErrors.NewInvalid("email template is required")
	}

	hasPhishlet := c.PhishletID != nil && *c.PhishletID > 0
	hasAttachment := c.AttachmentID != nil && *c.AttachmentID > 0
	if hasPhishlet == hasAttachment {
		return appErrors.NewInvalid("exactly one of phishlet or attachment is required")
	}

	return c.ValidateTargets()
}

func (c *Campaign) ValidateTargets() error {
	switch c.TargetType {
	case TargetTypeGroup:
		if c.TargetGroupID == nil || *c.TargetGroupID <= 0 {
			return appErrors.NewInvalid("target group is required for group campaigns")
		}
		if len(c.TargetIndividuals) > 0 {
			return appErrors.NewInvalid("group campaigns cannot also list individual targets")
		}
	case TargetTypeIndividual:
		if len(c.TargetIndividuals) == 0 {
			return appErrors.NewInvalid("individual campaigns need at least one target id")
		}
		if c.TargetGroupID != nil {
			return appErrors.NewInvalid("individual campaigns cannot also reference a group")
		}
		for _, id := range c.TargetIndividuals {
			if id <= 0 {
				return appErrors.NewInvalid("invalid target id %d", id)
			}
		}
	default:
		return appErrors.NewInvalid("target_type must be %q or %q", TargetTypeGroup, TargetTypeIndividual)
	}
	return nil
}

// Dispatchable reports whether a send may start from the current status.
func (c *Campaign) Dispatchable() bool {
	switch c.Status {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusRunning:
		return true
	}
	return false
}

// DispatchableStatuses is the status set a dispatch lease may be taken from.
var DispatchableStatuses = []string{CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusRunning}
