package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giveaway/internal/config"
	"giveaway/internal/db"
	"giveaway/internal/domain"
	"giveaway/internal/output"
	"giveaway/internal/repo"
)

func TestTokenRequiresSecret(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := tokenCmd()
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestLotteryFlagsOverlay(t *testing.T) {
	var flags lotteryFlags
	cmd := &cobra.Command{Use: "draw"}
	flags.register(cmd)

	cfg := config.Default("c")
	lc, derived := flags.apply(cmd, cfg)
	assert.True(t, derived)
	assert.Equal(t, 1, lc.Winners)

	require.NoError(t, cmd.Flags().Parse([]string{"-n", "3", "--seed", "42", "--weighted"}))
	lc, derived = flags.apply(cmd, cfg)
	assert.False(t, derived)
	assert.Equal(t, domain.LotteryConfig{Seed: 42, Weighted: true, Winners: 3}, lc)
}

func numbered(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return ids
}

func writeIdentifiers(t *testing.T, dir, name string, ids []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(ids, "\n")+"\n"), 0o644))
	return path
}

func TestQuickDrawsFromWholeFile(t *testing.T) {
	var repeated []string
	repeated = append(repeated, numbered("a", 10)...)
	for range 100 {
		repeated = append(repeated, "same")
	}
	repeated = append(repeated, numbered("b", 10)...)

	cases := []struct {
		name     string
		ids      []string
		distinct int
	}{
		{name: "more lines than fifty pages of twenty", ids: numbered("user", 2000), distinct: 2000},
		{name: "block of repeated lines", ids: repeated, distinct: 21},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			dir := t.TempDir()
			rt := writeIdentifiers(t, dir, "rt.txt", tc.ids)
			out := filepath.Join(dir, "out.json")

			cmd := quickCmd()
			cmd.SetArgs([]string{"--retweets", rt, "--seed", "1", "--file", out, "-o", "csv"})
			require.NoError(t, cmd.ExecuteContext(context.Background()))

			data, err := os.ReadFile(out)
			require.NoError(t, err)
			var summary output.Summary
			require.NoError(t, json.Unmarshal(data, &summary))
			assert.Len(t, summary.Participants, tc.distinct)
			assert.Len(t, summary.Winners, 1)
			assert.Equal(t, int64(1), summary.Seed)
		})
	}
}

func TestHarvestCommandStoresWholeFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	ctx := context.Background()
	ws := t.TempDir()
	viper.Set("workspace", ws)
	viper.Set("actor-id", "tester")
	_, err := db.EnsureWorkspace(ws)
	require.NoError(t, err)

	writeIdentifiers(t, ws, "rt.txt", numbered("user", 1500))
	cfg := config.Default("c1")
	cfg.Sources = map[string]string{"retweet": "rt.txt"}
	data, err := cfg.ToYAML()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(config.Path(ws), data, 0o644))

	cmd := harvestCmd()
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.ExecuteContext(ctx))

	require.NoError(t, withRepo(ctx, func(ctx context.Context, r repo.Repo) error {
		stored, err := r.HarvestLists(ctx, "c1")
		if err != nil {
			return err
		}
		assert.Len(t, stored[domain.KindRetweet], 1500)
		return nil
	}))
}
