package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giveaway/internal/config"
	"giveaway/internal/domain"
	"giveaway/internal/extract"
	"giveaway/internal/source"
)

func TestHarvestKinds(t *testing.T) {
	cfg := config.Default("c")
	kinds, err := harvestKinds(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.InteractionKind{domain.KindRetweet}, kinds)

	cfg.Filters.RequireLike = true
	cfg.Filters.RequireFollow = true
	kinds, err = harvestKinds(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.InteractionKind{domain.KindLike, domain.KindFollower}, kinds)

	kinds, err = harvestKinds(cfg, []string{"likes", "like", "retweets"})
	require.NoError(t, err)
	assert.Equal(t, []domain.InteractionKind{domain.KindLike, domain.KindRetweet}, kinds)

	_, err = harvestKinds(cfg, []string{"quotes"})
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestBuildProvidersResolvesWorkspaceFiles(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "rts.txt"), []byte("# retweeters\n@alice\nbob\n"), 0o644))
	cfg := config.Default("c")
	cfg.Sources = map[string]string{
		"retweets": "rts.txt",
		"like":     "https://example.com/likes",
	}

	ps, err := buildProviders(ws, cfg, []domain.InteractionKind{domain.KindRetweet, domain.KindLike}, sessionTokens{AuthToken: "tok"})
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.IsType(t, &source.List{}, ps[domain.KindRetweet])
	assert.IsType(t, &source.HTMLPager{}, ps[domain.KindLike])

	res, err := extract.Run(context.Background(), ps[domain.KindRetweet], extract.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, res.Identifiers)
}

func TestBuildProvidersErrors(t *testing.T) {
	cfg := config.Default("c")
	_, err := buildProviders(t.TempDir(), cfg, []domain.InteractionKind{domain.KindFollower}, sessionTokens{})
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	cfg.Sources = map[string]string{"retweet": "missing.txt"}
	_, err = buildProviders(t.TempDir(), cfg, []domain.InteractionKind{domain.KindRetweet}, sessionTokens{})
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}
