package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giveaway/internal/db"
	"giveaway/internal/events"
	"giveaway/internal/migrate"
)

func TestAppend(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, migrate.Migrate(conn))
	ctx := context.Background()

	w := events.Writer{DB: conn, Now: func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }}
	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, w.Append(ctx, tx, events.Record{Type: events.DrawComplete, EntityID: "d1", ActorID: "host"}))
	assert.ErrorContains(t, w.Append(ctx, tx, events.Record{Type: "draw.deleted"}), "unknown event type")
	require.NoError(t, tx.Commit())

	var ts, kind, payload string
	var campaign any
	require.NoError(t, conn.QueryRow(`SELECT ts, entity_kind, campaign_id, payload_json FROM events`).Scan(&ts, &kind, &campaign, &payload))
	assert.Equal(t, "2024-03-01T09:30:00Z", ts)
	assert.Equal(t, events.EntityDraw, kind)
	assert.Nil(t, campaign)
	assert.Equal(t, "{}", payload)
}

func TestTypes(t *testing.T) {
	assert.Contains(t, events.Types(), events.DrawRejected)
	assert.Len(t, events.Types(), 5)
}
