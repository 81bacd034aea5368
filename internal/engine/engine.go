package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"giveaway/internal/config"
	"giveaway/internal/domain"
	"giveaway/internal/events"
	"giveaway/internal/extract"
	"giveaway/internal/logging"
	"giveaway/internal/lottery"
	"giveaway/internal/metrics"
	"giveaway/internal/participants"
	"giveaway/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Logger: zerolog.Nop(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// appendEvent stamps events with the engine clock unless the writer has its own.
func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, rec events.Record) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, rec)
}

func (e Engine) config(campaignID string) *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default(campaignID)
}

// CreateCampaign registers a campaign and stores its config. The engine's
// config is used when loaded, otherwise defaults.
func (e Engine) CreateCampaign(ctx context.Context, id, url, description, actorID string) (domain.Campaign, error) {
	if id == "" {
		return domain.Campaign{}, domain.Errorf(domain.ErrConfiguration, "campaign id is required")
	}
	cfg := *e.config(id)
	if url == "" {
		url = cfg.Campaign.URL
	}
	if description == "" {
		description = cfg.Campaign.Description
	}
	cfg.Campaign.URL = url
	cfg.Campaign.Description = description

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Campaign{}, err
	}
	defer tx.Rollback()

	c := domain.Campaign{
		ID:          id,
		URL:         url,
		Description: description,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertCampaign(ctx, tx, c); err != nil {
		return domain.Campaign{}, fmt.Errorf("insert campaign: %w", err)
	}
	if err := e.Repo.UpsertCampaignConfig(ctx, tx, id, &cfg); err != nil {
		return domain.Campaign{}, fmt.Errorf("insert campaign config: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.Record{Type: events.CampaignCreate, CampaignID: id, EntityID: id, ActorID: actorID, Payload: events.EventPayload{"url": url}}); err != nil {
		return domain.Campaign{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Campaign{}, err
	}
	return c, nil
}

// ImportConfig replaces the stored config of an existing campaign.
func (e Engine) ImportConfig(ctx context.Context, campaignID string, cfg *config.Config, actorID string) error {
	if _, err := e.campaign(ctx, campaignID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertCampaignConfig(ctx, tx, campaignID, cfg); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, events.Record{Type: events.CampaignConfig, CampaignID: campaignID, EntityID: campaignID, ActorID: actorID}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) campaign(ctx context.Context, id string) (domain.Campaign, error) {
	c, err := e.Repo.GetCampaign(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return c, fmt.Errorf("campaign %s: %w", id, err)
		}
		return c, err
	}
	return c, nil
}

// HarvestReport summarizes one kind's extraction.
type HarvestReport struct {
	Kind        domain.InteractionKind `json:"kind"`
	Identifiers []string               `json:"identifiers"`
	Iterations  int                    `json:"iterations"`
	Reason      extract.StopReason     `json:"reason"`
	Skipped     int                    `json:"skipped"`
	Attempts    int                    `json:"attempts"`
}

// Harvest runs one extraction per provider concurrently and replaces the
// stored list of each kind. Navigation failures are retried with the
// configured delay; any other failure aborts the harvest and nothing is
// stored. A canceled ctx still stores what was collected so far.
func (e Engine) Harvest(ctx context.Context, campaignID string, providers map[domain.InteractionKind]extract.Provider, actorID string) ([]HarvestReport, error) {
	if _, err := e.campaign(ctx, campaignID); err != nil {
		return nil, err
	}
	for kind, p := range providers {
		if !kind.Valid() {
			return nil, domain.Errorf(domain.ErrConfiguration, "unknown interaction kind %q", kind)
		}
		if p == nil {
			return nil, domain.Errorf(domain.ErrConfiguration, "no provider for %s", kind)
		}
	}
	if len(providers) == 0 {
		return nil, domain.Errorf(domain.ErrConfiguration, "no sources configured")
	}
	cfg := e.config(campaignID)

	var (
		mu      sync.Mutex
		reports = make(map[domain.InteractionKind]HarvestReport)
	)
	g, gctx := errgroup.WithContext(ctx)
	for kind, p := range providers {
		g.Go(func() error {
			rep, err := e.harvestKind(gctx, cfg, kind, p)
			if err != nil {
				return fmt.Errorf("harvest %s: %w", kind, err)
			}
			mu.Lock()
			reports[kind] = rep
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var ordered []HarvestReport
	for _, kind := range domain.Kinds() {
		if rep, ok := reports[kind]; ok {
			ordered = append(ordered, rep)
		}
	}

	// Partial harvests survive cancellation.
	storeCtx := context.WithoutCancel(ctx)
	tx, err := e.DB.BeginTx(storeCtx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	harvestedAt := e.now().UTC().Format(time.RFC3339)
	for _, rep := range ordered {
		if err := e.Repo.ReplaceHarvest(storeCtx, tx, campaignID, rep.Kind, rep.Identifiers, harvestedAt); err != nil {
			return nil, fmt.Errorf("store %s harvest: %w", rep.Kind, err)
		}
		if err := e.appendEvent(storeCtx, tx, events.Record{
			Type:       events.HarvestComplete,
			CampaignID: campaignID,
			EntityID:   string(rep.Kind),
			ActorID:    actorID,
			Payload: events.EventPayload{
				"kind":       rep.Kind,
				"count":      len(rep.Identifiers),
				"iterations": rep.Iterations,
				"reason":     rep.Reason,
				"skipped":    rep.Skipped,
			},
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ordered, nil
}

func (e Engine) harvestKind(ctx context.Context, cfg *config.Config, kind domain.InteractionKind, p extract.Provider) (HarvestReport, error) {
	log := e.Logger.With().Str("kind", string(kind)).Logger()
	opts := extract.Options{
		MaxIterations: cfg.Extraction.MaxIterations,
		StallLimit:    cfg.Extraction.StallLimit,
		Observer:      extract.Observers{logging.Observer(e.Logger, kind), e.Metrics.Observer(kind)},
		Now:           e.Now,
	}
	delay := time.Duration(cfg.Browser.RetryDelayMS) * time.Millisecond
	var b backoff.BackOff = backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(cfg.Browser.Retry))
	b = backoff.WithContext(b, ctx)

	rep := HarvestReport{Kind: kind}
	var res extract.Result
	err := backoff.RetryNotify(func() error {
		rep.Attempts++
		var err error
		res, err = extract.Run(ctx, p, opts)
		if err != nil && !domain.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", rep.Attempts).Dur("retry_in", wait).Msg("navigation failed, retrying")
	})
	if err != nil {
		return rep, err
	}
	e.Metrics.ObserveExtraction(kind, res)
	rep.Identifiers = res.Identifiers
	rep.Iterations = res.Iterations
	rep.Reason = res.Reason
	rep.Skipped = len(res.ItemErrors)
	log.Info().Int("count", len(res.Identifiers)).Str("reason", string(res.Reason)).Msg("harvest complete")
	return rep, nil
}

// Participants merges the stored harvest of a campaign and applies its filters.
func (e Engine) Participants(ctx context.Context, campaignID string) ([]domain.Participant, domain.Statistics, error) {
	if _, err := e.campaign(ctx, campaignID); err != nil {
		return nil, domain.Statistics{}, err
	}
	lists, err := e.Repo.HarvestLists(ctx, campaignID)
	if err != nil {
		return nil, domain.Statistics{}, err
	}
	cfg := e.config(campaignID)
	return e.pool(lists, cfg.FilterSpec(), cfg.MergeOptions())
}

func (e Engine) pool(lists map[domain.InteractionKind][]string, filter domain.FilterSpec, opts participants.MergeOptions) ([]domain.Participant, domain.Statistics, error) {
	merged, err := participants.Merge(lists, opts)
	if err != nil {
		return nil, domain.Statistics{}, err
	}
	eligible := participants.ApplyFilters(merged, filter)
	return eligible, participants.Stats(eligible), nil
}

// Draw runs the lottery over a campaign's eligible participants and stores
// the outcome. A result that fails validation is stored as rejected and
// returned together with an integrity error.
func (e Engine) Draw(ctx context.Context, campaignID string, cfg domain.LotteryConfig, actorID string) (domain.Draw, error) {
	ps, _, err := e.Participants(ctx, campaignID)
	if err != nil {
		return domain.Draw{}, err
	}
	lot := lottery.Engine{Config: cfg, Now: e.Now}
	result, err := lot.Draw(ps)
	if err != nil {
		e.Metrics.IncrementFailure(err)
		return domain.Draw{}, err
	}
	report := lot.Validate(result, ps)

	d := domain.Draw{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		Requested:  cfg.Winners,
		Result:     result,
		Valid:      report.Valid,
		Reason:     report.Reason,
		ActorID:    actorID,
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Draw{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDraw(ctx, tx, d); err != nil {
		return domain.Draw{}, fmt.Errorf("insert draw: %w", err)
	}
	evtType := events.DrawComplete
	payload := events.EventPayload{
		"method":  result.Method,
		"seed":    result.Seed,
		"winners": winnerIDs(result.Winners),
	}
	if !report.Valid {
		evtType = events.DrawRejected
		payload["reason"] = report.Reason
	}
	if err := e.appendEvent(ctx, tx, events.Record{Type: evtType, CampaignID: campaignID, EntityID: d.ID, ActorID: actorID, Payload: payload}); err != nil {
		return domain.Draw{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Draw{}, err
	}

	if err := lottery.Check(report); err != nil {
		e.Metrics.IncrementFailure(err)
		e.Logger.Error().Str("draw", d.ID).Str("reason", report.Reason).Msg("draw rejected")
		return d, err
	}
	e.Metrics.IncrementDraw(result.Method)
	e.Logger.Info().Str("draw", d.ID).Int("winners", len(result.Winners)).Int64("seed", result.Seed).Msg("draw complete")
	return d, nil
}

// Outcome is the full result of a stateless draw.
type Outcome struct {
	Result       domain.DrawResult       `json:"result"`
	Statistics   domain.Statistics       `json:"statistics"`
	Participants []domain.Participant    `json:"participants"`
	Validation   domain.ValidationReport `json:"validation"`
}

// DrawLists runs merge, filter, draw and validation over lists without
// touching storage. Lists are always merged one participant per identifier.
func (e Engine) DrawLists(lists map[domain.InteractionKind][]string, filter domain.FilterSpec, cfg domain.LotteryConfig) (Outcome, error) {
	ps, stats, err := e.pool(lists, filter, participants.MergeOptions{})
	if err != nil {
		return Outcome{}, err
	}
	lot := lottery.Engine{Config: cfg, Now: e.Now}
	result, err := lot.Draw(ps)
	if err != nil {
		e.Metrics.IncrementFailure(err)
		return Outcome{Statistics: stats, Participants: ps}, err
	}
	out := Outcome{Result: result, Statistics: stats, Participants: ps, Validation: lot.Validate(result, ps)}
	if err := lottery.Check(out.Validation); err != nil {
		e.Metrics.IncrementFailure(err)
		return out, err
	}
	e.Metrics.IncrementDraw(result.Method)
	return out, nil
}

func winnerIDs(ws []domain.Winner) []string {
	ids := make([]string, 0, len(ws))
	for _, w := range ws {
		ids = append(ids, w.Identifier)
	}
	return ids
}
