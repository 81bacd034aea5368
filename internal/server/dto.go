package server

import (
	"encoding/json"
	"time"

	"giveaway/internal/config"
	"giveaway/internal/domain"
	"giveaway/internal/engine"
)

type FilterRequest struct {
	RequireRetweet bool     `json:"require_retweet,omitempty"`
	RequireLike    bool     `json:"require_like,omitempty"`
	RequireFollow  bool     `json:"require_follow,omitempty"`
	Exclude        []string `json:"exclude,omitempty"`
	Include        []string `json:"include,omitempty"`
}

func (f FilterRequest) filterSpec() domain.FilterSpec {
	return domain.FilterSpec(f)
}

type LotteryRequest struct {
	Winners         int    `json:"winners" example:"3"`
	Weighted        bool   `json:"weighted,omitempty"`
	Seed            *int64 `json:"seed,omitempty" example:"42"`
	AllowDuplicates bool   `json:"allow_duplicates,omitempty"`
}

func (l LotteryRequest) config(now func() time.Time) domain.LotteryConfig {
	seed := clockSeed(now)
	if l.Seed != nil {
		seed = *l.Seed
	}
	return domain.LotteryConfig{
		Seed:            seed,
		Weighted:        l.Weighted,
		Winners:         l.Winners,
		AllowDuplicates: l.AllowDuplicates,
	}
}

type DrawListsRequest struct {
	// Lists maps an interaction kind (retweet, like, follower) to identifiers.
	Lists   map[string][]string `json:"lists"`
	Filters FilterRequest       `json:"filters,omitempty"`
	Lottery LotteryRequest      `json:"lottery"`
}

func (r DrawListsRequest) kindLists() (map[domain.InteractionKind][]string, error) {
	out := make(map[domain.InteractionKind][]string, len(r.Lists))
	for name, ids := range r.Lists {
		kind, err := domain.ParseKind(name)
		if err != nil {
			return nil, err
		}
		out[kind] = append(out[kind], ids...)
	}
	return out, nil
}

type DrawListsResponse struct {
	Result       domain.DrawResult       `json:"result"`
	Statistics   domain.Statistics       `json:"statistics"`
	Participants []domain.Participant    `json:"participants"`
	Validation   domain.ValidationReport `json:"validation"`
}

func drawListsResponse(o engine.Outcome) DrawListsResponse {
	resp := DrawListsResponse(o)
	if resp.Participants == nil {
		resp.Participants = []domain.Participant{}
	}
	return resp
}

// CampaignDrawRequest overrides the campaign's lottery settings. Zero fields
// fall back to the stored config.
type CampaignDrawRequest struct {
	Winners         int    `json:"winners,omitempty"`
	Weighted        *bool  `json:"weighted,omitempty"`
	Seed            *int64 `json:"seed,omitempty"`
	AllowDuplicates *bool  `json:"allow_duplicates,omitempty"`
}

func (r CampaignDrawRequest) config(cfg *config.Config, now func() time.Time) domain.LotteryConfig {
	lc := cfg.LotteryConfig(clockSeed(now))
	if r.Winners != 0 {
		lc.Winners = r.Winners
	}
	if r.Weighted != nil {
		lc.Weighted = *r.Weighted
	}
	if r.Seed != nil {
		lc.Seed = *r.Seed
	}
	if r.AllowDuplicates != nil {
		lc.AllowDuplicates = *r.AllowDuplicates
	}
	return lc
}

type CampaignResponse struct {
	domain.Campaign
	Filters *domain.FilterSpec   `json:"filters,omitempty"`
	Lottery *config.LotteryConfig `json:"lottery,omitempty"`
	Sources map[string]string    `json:"sources,omitempty"`
}

func campaignResponse(c domain.Campaign, cfg *config.Config) CampaignResponse {
	resp := CampaignResponse{Campaign: c}
	if cfg != nil {
		filters := cfg.FilterSpec()
		lottery := cfg.Lottery
		resp.Filters = &filters
		resp.Lottery = &lottery
		resp.Sources = cfg.Sources
	}
	return resp
}

type ParticipantsResponse struct {
	Items      []domain.Participant `json:"items"`
	Statistics domain.Statistics    `json:"statistics"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	CampaignID string         `json:"campaign_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		CampaignID: e.CampaignID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}
