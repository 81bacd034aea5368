package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"giveaway/internal/config"
	"giveaway/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r Repo) execer(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.DB
}

func (r Repo) InsertCampaign(ctx context.Context, tx *sql.Tx, c domain.Campaign) error {
	_, err := r.execer(tx).ExecContext(ctx, `INSERT INTO campaigns(id,url,description,created_at) VALUES (?,?,?,?)`,
		c.ID, nullable(c.URL), nullable(c.Description), c.CreatedAt)
	return err
}

func (r Repo) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	var c domain.Campaign
	err := r.DB.QueryRowContext(ctx, `SELECT id,COALESCE(url,''),COALESCE(description,''),created_at FROM campaigns WHERE id=?`, id).
		Scan(&c.ID, &c.URL, &c.Description, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,COALESCE(url,''),COALESCE(description,''),created_at FROM campaigns ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(&c.ID, &c.URL, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// SingleCampaign returns the only campaign in the workspace.
func (r Repo) SingleCampaign(ctx context.Context) (domain.Campaign, error) {
	campaigns, err := r.ListCampaigns(ctx)
	if err != nil {
		return domain.Campaign{}, err
	}
	if len(campaigns) == 0 {
		return domain.Campaign{}, ErrNotFound
	}
	if len(campaigns) > 1 {
		return domain.Campaign{}, fmt.Errorf("multiple campaigns exist; specify --campaign")
	}
	return campaigns[0], nil
}

func (r Repo) UpsertCampaignConfig(ctx context.Context, tx *sql.Tx, campaignID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Campaign.ID = campaignID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.execer(tx).ExecContext(ctx, `INSERT INTO campaign_configs(campaign_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(campaign_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, campaignID, string(payload), now, now)
	return err
}

func (r Repo) GetCampaignConfig(ctx context.Context, campaignID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM campaign_configs WHERE campaign_id=?`, campaignID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Campaign.ID == "" {
		cfg.Campaign.ID = campaignID
	}
	return &cfg, cfg.Validate()
}

// ReplaceHarvest overwrites the stored list for one campaign and kind.
func (r Repo) ReplaceHarvest(ctx context.Context, tx *sql.Tx, campaignID string, kind domain.InteractionKind, ids []string, harvestedAt string) error {
	ex := r.execer(tx)
	if _, err := ex.ExecContext(ctx, `DELETE FROM harvests WHERE campaign_id=? AND kind=?`, campaignID, string(kind)); err != nil {
		return err
	}
	for i, id := range ids {
		if _, err := ex.ExecContext(ctx, `INSERT INTO harvests(campaign_id,kind,position,identifier,harvested_at) VALUES (?,?,?,?,?)`,
			campaignID, string(kind), i, id, harvestedAt); err != nil {
			return err
		}
	}
	return nil
}

// HarvestLists returns every stored list of a campaign keyed by kind, each in
// harvest order.
func (r Repo) HarvestLists(ctx context.Context, campaignID string) (map[domain.InteractionKind][]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT kind,identifier FROM harvests WHERE campaign_id=? ORDER BY kind, position`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make(map[domain.InteractionKind][]string)
	for rows.Next() {
		var kind, id string
		if err := rows.Scan(&kind, &id); err != nil {
			return nil, err
		}
		k := domain.InteractionKind(kind)
		res[k] = append(res[k], id)
	}
	return res, rows.Err()
}

// InsertDraw stores a draw and its winners.
func (r Repo) InsertDraw(ctx context.Context, tx *sql.Tx, d domain.Draw) error {
	ex := r.execer(tx)
	_, err := ex.ExecContext(ctx, `INSERT INTO draws(id,campaign_id,requested,method,seed,total_participants,valid,reason,actor_id,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.CampaignID, d.Requested, d.Result.Method, d.Result.Seed, d.Result.ParticipantCount, d.Valid, nullable(d.Reason), d.ActorID, d.CreatedAt)
	if err != nil {
		return err
	}
	for _, w := range d.Result.Winners {
		kinds, err := json.Marshal(w.Kinds)
		if err != nil {
			return err
		}
		if _, err := ex.ExecContext(ctx, `INSERT INTO winners(draw_id,rank,identifier,kinds_json,weight,drawn_at) VALUES (?,?,?,?,?,?)`,
			d.ID, w.Rank, w.Identifier, string(kinds), w.Weight, w.DrawnAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	return nil
}

const drawColumns = `id,campaign_id,requested,method,seed,total_participants,valid,COALESCE(reason,''),actor_id,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraw(row rowScanner) (domain.Draw, error) {
	var d domain.Draw
	err := row.Scan(&d.ID, &d.CampaignID, &d.Requested, &d.Result.Method, &d.Result.Seed,
		&d.Result.ParticipantCount, &d.Valid, &d.Reason, &d.ActorID, &d.CreatedAt)
	return d, err
}

func (r Repo) GetDraw(ctx context.Context, id string) (domain.Draw, error) {
	d, err := scanDraw(r.DB.QueryRowContext(ctx, `SELECT `+drawColumns+` FROM draws WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.Result.Winners, err = r.listWinners(ctx, d.ID)
	return d, err
}

// ListDraws returns a campaign's draws, newest first.
func (r Repo) ListDraws(ctx context.Context, campaignID string, limit int) ([]domain.Draw, error) {
	clauses := []string{"1=1"}
	var args []any
	if campaignID != "" {
		clauses = append(clauses, "campaign_id=?")
		args = append(args, campaignID)
	}
	query := `SELECT ` + drawColumns + ` FROM draws WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Draw
	for rows.Next() {
		d, err := scanDraw(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range res {
		if res[i].Result.Winners, err = r.listWinners(ctx, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) listWinners(ctx context.Context, drawID string) ([]domain.Winner, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT rank,identifier,kinds_json,weight,drawn_at FROM winners WHERE draw_id=? ORDER BY rank`, drawID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Winner
	for rows.Next() {
		var w domain.Winner
		var kinds, drawnAt string
		if err := rows.Scan(&w.Rank, &w.Identifier, &kinds, &w.Weight, &drawnAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(kinds), &w.Kinds); err != nil {
			return nil, fmt.Errorf("winner %d kinds: %w", w.Rank, err)
		}
		if w.DrawnAt, err = time.Parse(time.RFC3339Nano, drawnAt); err != nil {
			return nil, fmt.Errorf("winner %d drawn_at: %w", w.Rank, err)
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

const eventColumns = `id,ts,type,COALESCE(campaign_id,''),entity_kind,COALESCE(entity_id,''),actor_id,COALESCE(payload_json,'')`

func (r Repo) LatestEvents(ctx context.Context, limit int, campaignID, evtType string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, campaignID, evtType)
}

// LatestEventsFrom pages backwards from cursor, newest first.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, campaignID, evtType string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if campaignID != "" {
		clauses = append(clauses, "campaign_id=?")
		args = append(args, campaignID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id DESC LIMIT ?`, eventColumns, strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with id > cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, campaignID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if campaignID != "" {
		clauses = append(clauses, "campaign_id=?")
		args = append(args, campaignID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id ASC LIMIT ?`, eventColumns, strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.CampaignID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID, optionally for one campaign.
func (r Repo) LatestEventID(ctx context.Context, campaignID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if campaignID != "" {
		query += ` WHERE campaign_id=?`
		args = append(args, campaignID)
	}
	var id int64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
