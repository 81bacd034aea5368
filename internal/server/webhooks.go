package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"giveaway/internal/config"
	"giveaway/internal/domain"
	"giveaway/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	webhookBatch           = 100
	signatureHeader        = "X-Giveaway-Signature"
)

// Draw outcomes are delivered when a hook names no events.
var defaultWebhookEvents = []string{"draw.*"}

// hookTarget is one enabled webhook with its own client and cursor.
type hookTarget struct {
	cfg    config.WebhookConfig
	filter eventFilter
	client *resty.Client
	// cursor is the last event id handled; -1 until first poll.
	cursor int64
}

type webhookDispatcher struct {
	repo     repo.Repo
	targets  []*hookTarget
	log      zerolog.Logger
	interval time.Duration
}

// StartWebhooks polls the event log and delivers matching events to each
// enabled hook until ctx is done. Delivery starts after the events that
// already exist; a failed delivery is retried on the next tick.
func StartWebhooks(ctx context.Context, r repo.Repo, hooks []config.WebhookConfig, log zerolog.Logger) {
	d := newWebhookDispatcher(r, hooks, log)
	if len(d.targets) == 0 {
		return
	}
	go d.run(ctx)
}

func newWebhookDispatcher(r repo.Repo, hooks []config.WebhookConfig, log zerolog.Logger) *webhookDispatcher {
	d := &webhookDispatcher{
		repo:     r,
		log:      log.With().Str("component", "webhooks").Logger(),
		interval: defaultWebhookInterval,
	}
	for _, h := range hooks {
		if (h.Enabled != nil && !*h.Enabled) || strings.TrimSpace(h.URL) == "" {
			continue
		}
		timeout := defaultWebhookTimeout
		if h.TimeoutSeconds > 0 {
			timeout = time.Duration(h.TimeoutSeconds) * time.Second
		}
		client := resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("User-Agent", "giveaway-webhooks")
		d.targets = append(d.targets, &hookTarget{
			cfg:    h,
			filter: newEventFilter(h.Events),
			client: client,
			cursor: -1,
		})
	}
	return d
}

func (d *webhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// dispatchAll is called from one goroutine only.
func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for _, t := range d.targets {
		if ctx.Err() != nil {
			return
		}
		d.dispatch(ctx, t)
	}
}

func (d *webhookDispatcher) dispatch(ctx context.Context, t *hookTarget) {
	if t.cursor < 0 {
		latest, err := d.repo.LatestEventID(ctx, "")
		if err != nil {
			d.log.Error().Err(err).Msg("init cursor failed")
			return
		}
		t.cursor = latest
	}
	evts, err := d.repo.EventsAfter(ctx, webhookBatch, t.cursor, "")
	if err != nil {
		d.log.Error().Err(err).Msg("fetch events failed")
		return
	}
	for _, evt := range evts {
		if t.filter.match(evt.Type) {
			if err := d.deliver(ctx, t, evt); err != nil {
				d.log.Warn().Err(err).Str("url", t.cfg.URL).Int64("event", evt.ID).Msg("delivery failed")
				return
			}
			d.log.Debug().Str("url", t.cfg.URL).Str("type", evt.Type).Int64("event", evt.ID).Msg("delivered")
		}
		t.cursor = evt.ID
	}
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	CampaignID string          `json:"campaign_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (d *webhookDispatcher) deliver(ctx context.Context, t *hookTarget, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	body, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		CampaignID: evt.CampaignID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	req := t.client.R().
		SetContext(ctx).
		SetHeader("X-Giveaway-Event", evt.Type).
		SetHeader("X-Giveaway-Delivery", strconv.FormatInt(evt.ID, 10)).
		SetBody(body)
	if evt.CampaignID != "" {
		req.SetHeader("X-Giveaway-Campaign", evt.CampaignID)
	}
	if secret := strings.TrimSpace(t.cfg.Secret); secret != "" {
		req.SetHeader(signatureHeader, Sign(secret, body))
	}
	res, err := req.Post(t.cfg.URL)
	if err != nil {
		return err
	}
	if res.IsError() {
		snippet := strings.TrimSpace(string(res.Body()))
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return fmt.Errorf("status %d: %s", res.StatusCode(), snippet)
	}
	return nil
}

// Sign returns the signature header value for a webhook body:
// "sha256=" followed by the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// eventFilter matches exact event types and "prefix.*" wildcards.
type eventFilter struct {
	exact    map[string]bool
	prefixes []string
}

func newEventFilter(events []string) eventFilter {
	f := eventFilter{exact: make(map[string]bool)}
	for _, evt := range events {
		switch key := strings.TrimSpace(evt); {
		case key == "":
		case key == "*":
			f.prefixes = append(f.prefixes, "")
		case strings.HasSuffix(key, ".*"):
			f.prefixes = append(f.prefixes, strings.TrimSuffix(key, "*"))
		default:
			f.exact[key] = true
		}
	}
	if len(f.exact) == 0 && len(f.prefixes) == 0 {
		return newEventFilter(defaultWebhookEvents)
	}
	return f
}

func (f eventFilter) match(evt string) bool {
	if f.exact[evt] {
		return true
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(evt, p) {
			return true
		}
	}
	return false
}
