package repo_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giveaway/internal/config"
	"giveaway/internal/db"
	"giveaway/internal/domain"
	"giveaway/internal/events"
	"giveaway/internal/migrate"
	"giveaway/internal/repo"
)

func openRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}
}

func seedCampaign(t *testing.T, r repo.Repo, id string) {
	t.Helper()
	require.NoError(t, r.InsertCampaign(context.Background(), nil, domain.Campaign{
		ID: id, URL: "https://x.com/acme/status/1", CreatedAt: "2024-05-01T10:00:00Z",
	}))
}

func TestCampaigns(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()

	_, err := r.SingleCampaign(ctx)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	seedCampaign(t, r, "spring")
	c, err := r.SingleCampaign(ctx)
	require.NoError(t, err)
	assert.Equal(t, "spring", c.ID)
	assert.Equal(t, "", c.Description)

	seedCampaign(t, r, "summer")
	_, err = r.SingleCampaign(ctx)
	require.Error(t, err)

	_, err = r.GetCampaign(ctx, "winter")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	list, err := r.ListCampaigns(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCampaignConfigUpsert(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()
	seedCampaign(t, r, "spring")

	_, err := r.GetCampaignConfig(ctx, "spring")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	cfg := config.Default("ignored")
	cfg.Lottery.Winners = 3
	require.NoError(t, r.UpsertCampaignConfig(ctx, nil, "spring", cfg))
	cfg.Lottery.Winners = 4
	require.NoError(t, r.UpsertCampaignConfig(ctx, nil, "spring", cfg))

	got, err := r.GetCampaignConfig(ctx, "spring")
	require.NoError(t, err)
	assert.Equal(t, "spring", got.Campaign.ID)
	assert.Equal(t, 4, got.Lottery.Winners)
}

func TestReplaceHarvest(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()
	seedCampaign(t, r, "spring")

	require.NoError(t, r.ReplaceHarvest(ctx, nil, "spring", domain.KindLike, []string{"b", "a"}, "t1"))
	require.NoError(t, r.ReplaceHarvest(ctx, nil, "spring", domain.KindRetweet, []string{"x"}, "t1"))
	require.NoError(t, r.ReplaceHarvest(ctx, nil, "spring", domain.KindLike, []string{"c", "b", "a"}, "t2"))

	lists, err := r.HarvestLists(ctx, "spring")
	require.NoError(t, err)
	want := map[domain.InteractionKind][]string{
		domain.KindLike:    {"c", "b", "a"},
		domain.KindRetweet: {"x"},
	}
	if diff := cmp.Diff(want, lists); diff != "" {
		t.Fatalf("harvest lists mismatch (-want +got):\n%s", diff)
	}
}

func TestDrawRoundTrip(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()
	seedCampaign(t, r, "spring")

	drawnAt := time.Date(2024, 5, 1, 12, 0, 0, 123, time.UTC)
	d := domain.Draw{
		ID: "draw-1", CampaignID: "spring", Requested: 2, Valid: true, ActorID: "host",
		CreatedAt: "2024-05-01T12:00:00Z",
		Result: domain.DrawResult{
			Method: "weighted", Seed: 42, ParticipantCount: 5,
			Winners: []domain.Winner{
				{Rank: 1, Identifier: "alice", Kinds: []domain.InteractionKind{domain.KindRetweet, domain.KindLike}, Weight: 2, DrawnAt: drawnAt},
				{Rank: 2, Identifier: "bob", Kinds: []domain.InteractionKind{domain.KindFollower}, Weight: 1, DrawnAt: drawnAt},
			},
		},
	}
	require.NoError(t, r.InsertDraw(ctx, nil, d))
	rejected := domain.Draw{
		ID: "draw-2", CampaignID: "spring", Requested: 1, Valid: false, Reason: "duplicate winners found",
		ActorID: "host", CreatedAt: "2024-05-01T12:05:00Z",
		Result: domain.DrawResult{Method: "random", Seed: 7, ParticipantCount: 5},
	}
	require.NoError(t, r.InsertDraw(ctx, nil, rejected))

	got, err := r.GetDraw(ctx, "draw-1")
	require.NoError(t, err)
	if diff := cmp.Diff(d, got); diff != "" {
		t.Fatalf("draw mismatch (-want +got):\n%s", diff)
	}

	list, err := r.ListDraws(ctx, "spring", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "draw-2", list[0].ID)
	assert.False(t, list[0].Valid)
	assert.Equal(t, "duplicate winners found", list[0].Reason)
	assert.Len(t, list[1].Result.Winners, 2)

	_, err = r.GetDraw(ctx, "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestEventsCursor(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()
	seedCampaign(t, r, "spring")
	w := events.Writer{DB: r.DB}

	appendEvent := func(typ, campaign string) {
		tx, err := r.DB.BeginTx(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, w.Append(ctx, tx, events.Record{Type: typ, CampaignID: campaign, ActorID: "host", Payload: events.EventPayload{"n": 1}}))
		require.NoError(t, tx.Commit())
	}
	appendEvent(events.HarvestComplete, "spring")
	appendEvent(events.DrawComplete, "spring")
	appendEvent(events.DrawComplete, "")

	latest, err := r.LatestEventID(ctx, "spring")
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest)

	after, err := r.EventsAfter(ctx, 10, 1, "spring")
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, events.DrawComplete, after[0].Type)
	assert.Equal(t, "", after[0].EntityID)
	assert.JSONEq(t, `{"n":1}`, after[0].Payload)

	drawsOnly, err := r.LatestEvents(ctx, 10, "", events.DrawComplete)
	require.NoError(t, err)
	require.Len(t, drawsOnly, 2)
	assert.Equal(t, int64(3), drawsOnly[0].ID)
	assert.Equal(t, "", drawsOnly[0].CampaignID)
}

func TestAPIKeys(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()
	hash := repo.HashAPIKey("  secret ")
	assert.Equal(t, repo.HashAPIKey("secret"), hash)

	require.NoError(t, r.InsertAPIKey(ctx, nil, domain.APIKey{ID: "k1", ActorID: "host", KeyHash: hash}))
	require.Error(t, r.InsertAPIKey(ctx, nil, domain.APIKey{ID: "k2", ActorID: "host"}))

	key, err := r.GetAPIKeyByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "host", key.ActorID)

	keys, err := r.ListAPIKeys(ctx, "host")
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, r.DeleteAPIKey(ctx, "k1"))
	_, err = r.GetAPIKeyByHash(ctx, hash)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.ErrorIs(t, r.DeleteAPIKey(ctx, "k1"), repo.ErrNotFound)
}

func TestNewAPIKey(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	plain, rec, err := repo.NewAPIKey("host", "ci", now)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plain, "gw_"))
	assert.NotContains(t, rec.KeyHash, plain)
	assert.Equal(t, "2024-05-01T00:00:00Z", rec.CreatedAt)
	require.NoError(t, r.InsertAPIKey(ctx, nil, rec))

	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(plain))
	require.NoError(t, err)
	assert.Equal(t, "ci", got.Name)

	other, _, err := repo.NewAPIKey("host", "", now)
	require.NoError(t, err)
	assert.NotEqual(t, plain, other)

	_, _, err = repo.NewAPIKey(" ", "", now)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
