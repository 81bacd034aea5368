package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giveaway/internal/domain"
	"giveaway/internal/extract"
	"giveaway/internal/logging"
)

func TestObserverLogsIterations(t *testing.T) {
	var buf bytes.Buffer
	obs := logging.Observer(logging.JSON(&buf, false), domain.KindLike)
	obs.IdentifierFound(extract.IdentifierEvent{Identifier: "alice", Total: 1})
	obs.IterationDone(extract.IterationEvent{Iteration: 4, New: 1, Total: 4, Elapsed: time.Second})
	obs.IterationDone(extract.IterationEvent{Iteration: 5, New: 1, Total: 5, Elapsed: time.Second})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "only every fifth iteration is logged at info")
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "like", rec["kind"])
	assert.Equal(t, float64(5), rec["iteration"])
	assert.Equal(t, float64(5), rec["total"])
	assert.Equal(t, "extraction progress", rec["message"])
}

func TestVerboseIncludesIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	obs := logging.Observer(logging.New(&buf, true), domain.KindRetweet)
	obs.IdentifierFound(extract.IdentifierEvent{Identifier: "bob", Total: 3})
	assert.Contains(t, buf.String(), "identifier found")
	assert.Contains(t, buf.String(), "identifier=bob")
}
