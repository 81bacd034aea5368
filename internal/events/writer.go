// Package events appends to the campaign audit log.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	CampaignCreate  = "campaign.create"
	CampaignConfig  = "campaign.config"
	HarvestComplete = "harvest.complete"
	DrawComplete    = "draw.complete"
	DrawRejected    = "draw.rejected"
)

// Entity kinds.
const (
	EntityCampaign = "campaign"
	EntityHarvest  = "harvest"
	EntityDraw     = "draw"
)

var knownTypes = map[string]string{
	CampaignCreate:  EntityCampaign,
	CampaignConfig:  EntityCampaign,
	HarvestComplete: EntityHarvest,
	DrawComplete:    EntityDraw,
	DrawRejected:    EntityDraw,
}

// Types lists every event type the log can hold.
func Types() []string {
	return []string{CampaignCreate, CampaignConfig, HarvestComplete, DrawComplete, DrawRejected}
}

type EventPayload map[string]any

// Record is one log entry before it is stored. EntityKind defaults to the
// kind implied by Type.
type Record struct {
	Type       string
	CampaignID string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    EventPayload
}

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append records rec inside tx so it commits with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, rec Record) error {
	entity, ok := knownTypes[rec.Type]
	if !ok {
		return fmt.Errorf("unknown event type %q", rec.Type)
	}
	if rec.EntityKind == "" {
		rec.EntityKind = entity
	}
	if rec.Payload == nil {
		rec.Payload = EventPayload{}
	}
	data, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", rec.Type, err)
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,campaign_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), rec.Type, nullable(rec.CampaignID), rec.EntityKind, nullable(rec.EntityID), rec.ActorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
