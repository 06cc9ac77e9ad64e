package repository

import (
	"database/sql"

	"github.com/unclebandit/phishsim-backend/internal/model"
)

type EventRepositoryInterface interface {
	Record(e *model.EmailEvent) error
	ListByCampaign(campaignID int) ([]*model.EmailEvent, error)
}

type EventRepository struct {
	DB *sql.DB
}

var _ EventRepositoryInterface = (*EventRepository)(nil)

func (r *EventRepository) Record(e *model.EmailEvent) error {
	var data interface{}
	if len(e.EventData) > 0 {
		data = string(e.EventData)
	}
	return r.DB.QueryRow(`
		INSERT INTO email_events (campaign_id, target_id, event_type, event_data, ip_address, user_agent, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, e.CampaignID, e.TargetID, e.EventType, data, e.IPAddress, e.UserAgent, e.Timestamp).Scan(&e.ID)
}

func (r *EventRepository) ListByCampaign(campaignID int) ([]*model.EmailEvent, error) {
	rows, err := r.DB.Query(`
		SELECT id, campaign_id, target_id, event_type, event_data, ip_address, user_agent, timestamp
		FROM email_events WHERE campaign_id=$1 ORDER BY timestamp, id
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*model.EmailEvent{}
	for rows.Next() {
		var (
			e    model.EmailEvent
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.TargetID, &e.EventType, &data, &e.IPAddress, &e.UserAgent, &e.Timestamp); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			e.EventData = data
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
