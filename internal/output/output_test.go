package output_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giveaway/internal/domain"
	"giveaway/internal/output"
)

var drawnAt = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func sampleReport(method string) output.Report {
	return output.Report{
		Result: domain.DrawResult{
			Method:           method,
			Seed:             42,
			ParticipantCount: 3,
			Winners: []domain.Winner{
				{Rank: 1, Identifier: "alice", Kinds: []domain.InteractionKind{domain.KindRetweet, domain.KindLike}, Weight: 2, DrawnAt: drawnAt},
				{Rank: 2, Identifier: "bob", Kinds: []domain.InteractionKind{domain.KindLike}, DrawnAt: drawnAt},
			},
		},
		Statistics: domain.Statistics{
			Total:     3,
			PerKind:   map[domain.InteractionKind]int{domain.KindRetweet: 1, domain.KindLike: 3, domain.KindFollower: 0},
			MultiKind: 1,
		},
		Participants: []domain.Participant{{Identifier: "alice"}, {Identifier: "bob"}, {Identifier: "carol"}},
		Validation:   domain.ValidationReport{Valid: true},
		Metadata:     output.Metadata{URL: "https://x.com/acme/status/1", Timestamp: drawnAt},
	}
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, output.Renderer{Format: "text", W: &buf}.Render(sampleReport("weighted")))
	out := buf.String()
	assert.Contains(t, out, "LOTTERY RESULTS")
	assert.Contains(t, out, "Total Participants: 3")
	assert.Contains(t, out, "Retweeters: 1")
	assert.Contains(t, out, "Likers: 3")
	assert.NotContains(t, out, "Followers:")
	assert.Contains(t, out, "Multiple Actions: 1")
	assert.Contains(t, out, "@alice")
	assert.Contains(t, out, "retweet, like")
	assert.Contains(t, out, "WEIGHT")
	assert.Contains(t, out, "Draw Method: weighted")
	assert.Contains(t, out, "Tweet: https://x.com/acme/status/1")
	assert.Contains(t, out, "Seed: 42")
}

func TestRenderTextRandomHidesWeight(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, output.Renderer{W: &buf}.Render(sampleReport("random")))
	assert.NotContains(t, buf.String(), "WEIGHT")
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, output.Renderer{Format: "JSON", W: &buf}.Render(sampleReport("random")))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	result := doc["result"].(map[string]any)
	assert.Equal(t, "random", result["draw_method"])
	assert.Equal(t, float64(3), result["total_participants"])
	winners := result["winners"].([]any)
	assert.Equal(t, "alice", winners[0].(map[string]any)["username"])
}

func TestRenderCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, output.Renderer{Format: "csv", W: &buf}.Render(sampleReport("weighted")))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Rank,Username,Participation Types,Weight,Draw Time", lines[0])
	assert.Equal(t, `1,alice,"retweet, like",2,2024-03-01T09:30:00Z`, lines[1])
	assert.Equal(t, "2,bob,like,1,2024-03-01T09:30:00Z", lines[2])

	err := output.Renderer{Format: "csv", W: &buf}.Render(output.Report{})
	assert.True(t, errors.Is(err, domain.ErrEmptyInput))
}

func TestRenderUnknownFormat(t *testing.T) {
	err := output.Renderer{Format: "xml", W: &bytes.Buffer{}}.Render(sampleReport("random"))
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, output.WriteFile(path, sampleReport("random")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"winners": ["alice", "bob"],
		"participants": ["alice", "bob", "carol"],
		"seed": 42,
		"timestamp": "2024-03-01T09:30:00Z"
	}`, string(data))
}

func TestRenderError(t *testing.T) {
	var buf bytes.Buffer
	output.RenderError(&buf, domain.Errorf(domain.ErrInsufficientParticipants, "cannot select 5 winners from 2 participants"))
	assert.Equal(t, "ERROR [insufficient_participants]: cannot select 5 winners from 2 participants\n", buf.String())

	buf.Reset()
	output.RenderError(&buf, errors.New("disk full"))
	assert.Equal(t, "ERROR [internal_error]: disk full\n", buf.String())
}
