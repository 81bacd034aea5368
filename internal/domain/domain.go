package domain

import (
	"fmt"
	"strings"
	"time"
)

// InteractionKind is a qualifying action category.
type InteractionKind string

const (
	KindRetweet  InteractionKind = "retweet"
	KindLike     InteractionKind = "like"
	KindFollower InteractionKind = "follower"
)

// Kinds returns the closed set of interaction kinds in canonical processing order.
func Kinds() []InteractionKind {
	return []InteractionKind{KindRetweet, KindLike, KindFollower}
}

// ParseKind accepts the canonical names plus the plural forms used on the command line.
func ParseKind(s string) (InteractionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "retweet", "retweets", "retweeter", "retweeters":
		return KindRetweet, nil
	case "like", "likes", "liker", "likers":
		return KindLike, nil
	case "follower", "followers", "follow":
		return KindFollower, nil
	}
	return "", Errorf(ErrConfiguration, "unknown interaction kind %q", s)
}

func (k InteractionKind) Valid() bool {
	switch k {
	case KindRetweet, KindLike, KindFollower:
		return true
	}
	return false
}

// Participant is one eligible identity. Kinds is never empty.
type Participant struct {
	Identifier string            `json:"username"`
	Kinds      []InteractionKind `json:"types"`
	Weight     int               `json:"weight"`
}

// Has reports whether the participant was observed with kind k.
func (p Participant) Has(k InteractionKind) bool {
	for _, have := range p.Kinds {
		if have == k {
			return true
		}
	}
	return false
}

// FilterSpec holds eligibility rules. Required kinds combine conjunctively.
// Include is considered present only when it has at least one entry.
type FilterSpec struct {
	RequireRetweet bool     `json:"require_retweet" yaml:"require_retweet"`
	RequireLike    bool     `json:"require_like" yaml:"require_like"`
	RequireFollow  bool     `json:"require_follow" yaml:"require_follow"`
	Exclude        []string `json:"exclude,omitempty" yaml:"exclude"`
	Include        []string `json:"include,omitempty" yaml:"include"`
}

// RequiredKinds lists the kinds whose flags are set, in canonical order.
func (f FilterSpec) RequiredKinds() []InteractionKind {
	var kinds []InteractionKind
	if f.RequireRetweet {
		kinds = append(kinds, KindRetweet)
	}
	if f.RequireLike {
		kinds = append(kinds, KindLike)
	}
	if f.RequireFollow {
		kinds = append(kinds, KindFollower)
	}
	return kinds
}

// LotteryConfig parameterizes one draw.
type LotteryConfig struct {
	Seed            int64 `json:"seed" yaml:"seed"`
	Weighted        bool  `json:"weighted" yaml:"weighted"`
	Winners         int   `json:"winners" yaml:"winners"`
	AllowDuplicates bool  `json:"allow_duplicates" yaml:"allow_duplicates"`
}

func (c LotteryConfig) Validate() error {
	if c.Winners <= 0 {
		return Errorf(ErrConfiguration, "number of winners must be positive, got %d", c.Winners)
	}
	return nil
}

type Winner struct {
	Rank       int               `json:"rank"`
	Identifier string            `json:"username"`
	Kinds      []InteractionKind `json:"types"`
	Weight     int               `json:"weight,omitempty"`
	DrawnAt    time.Time         `json:"draw_time"`
}

type DrawResult struct {
	Winners          []Winner `json:"winners"`
	Method           string   `json:"draw_method" enum:"random,weighted"`
	Seed             int64    `json:"seed"`
	ParticipantCount int      `json:"total_participants"`
}

type ValidationReport struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

type Statistics struct {
	Total     int                     `json:"total"`
	PerKind   map[InteractionKind]int `json:"per_kind"`
	MultiKind int                     `json:"multiple_actions"`
}

type Campaign struct {
	ID          string `json:"id"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Harvest struct {
	CampaignID string          `json:"campaign_id"`
	Kind       InteractionKind `json:"kind"`
	Identifier string          `json:"identifier"`
	Position   int             `json:"position"`
}

// Draw is a stored lottery run, valid or rejected.
type Draw struct {
	ID         string     `json:"id"`
	CampaignID string     `json:"campaign_id"`
	Requested  int        `json:"requested"`
	Result     DrawResult `json:"result"`
	Valid      bool       `json:"valid"`
	Reason     string     `json:"reason,omitempty"`
	ActorID    string     `json:"actor_id"`
	CreatedAt  string     `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	CampaignID string `json:"campaign_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func (w Winner) String() string {
	return fmt.Sprintf("#%d @%s", w.Rank, w.Identifier)
}
