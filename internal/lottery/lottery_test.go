package lottery_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giveaway/internal/domain"
	"giveaway/internal/lottery"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newEngine(cfg domain.LotteryConfig) lottery.Engine {
	e := lottery.New(cfg)
	e.Now = func() time.Time { return fixedNow }
	return e
}

func pool(n int) []domain.Participant {
	ps := make([]domain.Participant, 0, n)
	for i := 1; i <= n; i++ {
		ps = append(ps, domain.Participant{
			Identifier: fmt.Sprintf("user%d", i),
			Kinds:      []domain.InteractionKind{domain.KindRetweet},
			Weight:     1,
		})
	}
	return ps
}

func identifiers(ws []domain.Winner) []string {
	ids := make([]string, 0, len(ws))
	for _, w := range ws {
		ids = append(ids, w.Identifier)
	}
	return ids
}

func participantIdentifiers(ps []domain.Participant) []string {
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.Identifier)
	}
	return ids
}

func TestDrawIsDeterministic(t *testing.T) {
	for _, weighted := range []bool{false, true} {
		t.Run(fmt.Sprintf("weighted=%v", weighted), func(t *testing.T) {
			cfg := domain.LotteryConfig{Seed: 12345, Winners: 4, Weighted: weighted}
			ps := pool(20)
			first, err := newEngine(cfg).Draw(ps)
			require.NoError(t, err)
			second, err := newEngine(cfg).Draw(ps)
			require.NoError(t, err)
			if diff := cmp.Diff(first, second); diff != "" {
				t.Fatalf("same seed produced different results (-first +second):\n%s", diff)
			}
		})
	}
}

func TestDifferentSeedsDiffer(t *testing.T) {
	ps := pool(50)
	distinct := map[string]struct{}{}
	for seed := int64(1); seed <= 10; seed++ {
		res, err := newEngine(domain.LotteryConfig{Seed: seed, Winners: 3}).Draw(ps)
		require.NoError(t, err)
		distinct[fmt.Sprint(identifiers(res.Winners))] = struct{}{}
	}
	assert.Greater(t, len(distinct), 1)
}

func TestRandomDrawThreeOfFive(t *testing.T) {
	ps := pool(5)
	for seed := int64(0); seed < 200; seed++ {
		res, err := newEngine(domain.LotteryConfig{Seed: seed, Winners: 3}).Draw(ps)
		require.NoError(t, err)
		require.Len(t, res.Winners, 3)
		seen := map[string]bool{}
		for i, w := range res.Winners {
			assert.Equal(t, i+1, w.Rank)
			assert.False(t, seen[w.Identifier], "duplicate winner %s", w.Identifier)
			seen[w.Identifier] = true
			assert.Zero(t, w.Weight)
			assert.Equal(t, fixedNow, w.DrawnAt)
		}
		assert.Equal(t, lottery.MethodRandom, res.Method)
		assert.Equal(t, seed, res.Seed)
		assert.Equal(t, 5, res.ParticipantCount)
		assert.True(t, lottery.Validate(res, ps, 3, false).Valid)
	}
}

func TestDrawEmptyInput(t *testing.T) {
	for _, weighted := range []bool{false, true} {
		_, err := newEngine(domain.LotteryConfig{Seed: 1, Winners: 1, Weighted: weighted}).Draw(nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrEmptyInput))
		assert.Equal(t, "empty_input", domain.KindName(err))
	}
}

func TestDrawInsufficientParticipants(t *testing.T) {
	_, err := newEngine(domain.LotteryConfig{Seed: 1, Winners: 5}).Draw(pool(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientParticipants))
}

func TestDrawClampsWhenDuplicatesAllowed(t *testing.T) {
	res, err := newEngine(domain.LotteryConfig{Seed: 1, Winners: 5, AllowDuplicates: true}).Draw(pool(2))
	require.NoError(t, err)
	assert.Len(t, res.Winners, 2)
}

func TestDrawRejectsNonPositiveWinners(t *testing.T) {
	for _, n := range []int{0, -3} {
		_, err := newEngine(domain.LotteryConfig{Seed: 1, Winners: n}).Draw(pool(3))
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrConfiguration))
	}
}

func TestWeightedDrawDistinctWinners(t *testing.T) {
	ps := pool(6)
	ps[0].Weight = 3
	ps[0].Kinds = []domain.InteractionKind{domain.KindRetweet, domain.KindLike, domain.KindFollower}
	for seed := int64(0); seed < 200; seed++ {
		res, err := newEngine(domain.LotteryConfig{Seed: seed, Winners: 6, Weighted: true}).Draw(ps)
		require.NoError(t, err)
		assert.Equal(t, lottery.MethodWeighted, res.Method)
		assert.ElementsMatch(t, participantIdentifiers(pool(6)), identifiers(res.Winners))
		for _, w := range res.Winners {
			assert.GreaterOrEqual(t, w.Weight, 1)
		}
		assert.True(t, lottery.Validate(res, ps, 6, false).Valid)
	}
}

func TestWeightedDrawAllowDuplicatesConsumesEveryPoolSlot(t *testing.T) {
	ps := []domain.Participant{{Identifier: "solo", Kinds: []domain.InteractionKind{domain.KindRetweet}, Weight: 3}}
	res, err := newEngine(domain.LotteryConfig{Seed: 9, Winners: 1, Weighted: true, AllowDuplicates: true}).Draw(ps)
	require.NoError(t, err)
	assert.Len(t, res.Winners, 1)
}

func TestWeightedDrawFavorsHeavierParticipants(t *testing.T) {
	ps := pool(5)
	ps[0].Weight = 3
	ps[1].Weight = 1
	wins := map[string]int{}
	for seed := int64(0); seed < 2000; seed++ {
		res, err := newEngine(domain.LotteryConfig{Seed: seed, Winners: 1, Weighted: true}).Draw(ps)
		require.NoError(t, err)
		wins[res.Winners[0].Identifier]++
	}
	assert.Greater(t, wins["user1"], wins["user2"])
}

func TestConcurrentDrawsShareNothing(t *testing.T) {
	ps := pool(30)
	cfg := domain.LotteryConfig{Seed: 77, Winners: 5, Weighted: true}
	want, err := newEngine(cfg).Draw(ps)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]domain.DrawResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = newEngine(cfg).Draw(ps)
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		assert.Equal(t, identifiers(want.Winners), identifiers(got.Winners))
	}
}

func TestValidate(t *testing.T) {
	ps := pool(3)
	winner := func(rank int, id string) domain.Winner {
		return domain.Winner{Rank: rank, Identifier: id}
	}
	tests := []struct {
		name      string
		winners   []domain.Winner
		requested int
		allowDup  bool
		valid     bool
		reason    string
	}{
		{name: "ok", winners: []domain.Winner{winner(1, "user1"), winner(2, "user3")}, requested: 2, valid: true},
		{name: "empty", winners: nil, requested: 2, reason: "no winners selected"},
		{name: "too many", winners: []domain.Winner{winner(1, "user1"), winner(2, "user2")}, requested: 1, reason: "too many winners selected"},
		{name: "duplicates", winners: []domain.Winner{winner(1, "user1"), winner(2, "USER1")}, requested: 2, reason: "duplicate winners found"},
		{name: "duplicates allowed", winners: []domain.Winner{winner(1, "user1"), winner(2, "user1")}, requested: 2, allowDup: true, valid: true},
		{name: "missing from pool", winners: []domain.Winner{winner(1, "ghost")}, requested: 1, reason: "winner ghost not in participant list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := lottery.Validate(domain.DrawResult{Winners: tt.winners}, ps, tt.requested, tt.allowDup)
			assert.Equal(t, tt.valid, report.Valid)
			assert.Equal(t, tt.reason, report.Reason)
		})
	}
}

func TestCheck(t *testing.T) {
	assert.NoError(t, lottery.Check(domain.ValidationReport{Valid: true}))
	err := lottery.Check(domain.ValidationReport{Reason: "winner ghost not in participant list"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrIntegrity))
	assert.Contains(t, domain.Reason(err), "not in participant list")
}
