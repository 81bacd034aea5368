// Package lottery draws winners from a participant set with a seeded
// generator and validates its own output.
//
// Every Draw call builds one PCG generator from the configured seed and
// advances it only through its own calls, so the same seed and participant
// ordering always produce the same winners. Engines hold no mutable state and
// may be used from several goroutines at once.
package lottery

import (
	"fmt"
	"math/rand/v2"
	"time"

	"giveaway/internal/domain"
	"giveaway/internal/participants"
)

const (
	MethodRandom   = "random"
	MethodWeighted = "weighted"
)

// pcgStream is the fixed second word of the PCG state; only the seed varies.
const pcgStream = 0x9e3779b97f4a7c15

type Engine struct {
	Config domain.LotteryConfig
	Now    func() time.Time
}

func New(cfg domain.LotteryConfig) Engine {
	return Engine{Config: cfg, Now: time.Now}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), pcgStream))
}

// Draw selects up to Config.Winners participants.
func (e Engine) Draw(ps []domain.Participant) (domain.DrawResult, error) {
	cfg := e.Config
	if err := cfg.Validate(); err != nil {
		return domain.DrawResult{}, err
	}
	if len(ps) == 0 {
		return domain.DrawResult{}, domain.Errorf(domain.ErrEmptyInput, "no participants available for lottery")
	}
	n := cfg.Winners
	if n > len(ps) {
		if !cfg.AllowDuplicates {
			return domain.DrawResult{}, domain.Errorf(domain.ErrInsufficientParticipants,
				"cannot select %d winners from %d participants", n, len(ps))
		}
		n = len(ps)
	}

	rng := newRand(cfg.Seed)
	drawnAt := e.now()
	var winners []domain.Winner
	method := MethodRandom
	if cfg.Weighted {
		method = MethodWeighted
		winners = weightedDraw(rng, ps, n, cfg.AllowDuplicates, drawnAt)
	} else {
		winners = randomDraw(rng, ps, n, drawnAt)
	}
	return domain.DrawResult{
		Winners:          winners,
		Method:           method,
		Seed:             cfg.Seed,
		ParticipantCount: len(ps),
	}, nil
}

func randomDraw(rng *rand.Rand, ps []domain.Participant, n int, at time.Time) []domain.Winner {
	shuffled := append([]domain.Participant(nil), ps...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	winners := make([]domain.Winner, 0, n)
	for i, p := range shuffled[:n] {
		winners = append(winners, domain.Winner{
			Rank:       i + 1,
			Identifier: p.Identifier,
			Kinds:      append([]domain.InteractionKind(nil), p.Kinds...),
			DrawnAt:    at,
		})
	}
	return winners
}

// weightedDraw replicates each participant index weight times, shuffles the
// pool, then consumes pool slots without replacement. Each step visits exactly
// one unvisited slot, so the loop ends after at most len(pool) steps even when
// fewer than n distinct winners exist.
func weightedDraw(rng *rand.Rand, ps []domain.Participant, n int, allowDuplicates bool, at time.Time) []domain.Winner {
	var pool []int
	for i, p := range ps {
		w := p.Weight
		if w < 1 {
			w = 1
		}
		for range w {
			pool = append(pool, i)
		}
	}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	unvisited := make([]int, len(pool))
	for i := range unvisited {
		unvisited[i] = i
	}
	chosen := make(map[string]struct{}, n)
	winners := make([]domain.Winner, 0, n)
	visited := 0
	for len(winners) < n && visited < len(pool) {
		j := rng.IntN(len(unvisited))
		slot := unvisited[j]
		unvisited[j] = unvisited[len(unvisited)-1]
		unvisited = unvisited[:len(unvisited)-1]
		visited++

		p := ps[pool[slot]]
		key := participants.Key(p.Identifier)
		if _, dup := chosen[key]; dup && !allowDuplicates {
			continue
		}
		chosen[key] = struct{}{}
		weight := p.Weight
		if weight < 1 {
			weight = 1
		}
		winners = append(winners, domain.Winner{
			Rank:       len(winners) + 1,
			Identifier: p.Identifier,
			Kinds:      append([]domain.InteractionKind(nil), p.Kinds...),
			Weight:     weight,
			DrawnAt:    at,
		})
	}
	return winners
}

// Validate checks a result against the engine's own configuration.
func (e Engine) Validate(result domain.DrawResult, ps []domain.Participant) domain.ValidationReport {
	return Validate(result, ps, e.Config.Winners, e.Config.AllowDuplicates)
}

// Validate checks the winner list of a finished draw.
func Validate(result domain.DrawResult, ps []domain.Participant, requested int, allowDuplicates bool) domain.ValidationReport {
	if len(result.Winners) == 0 {
		return domain.ValidationReport{Reason: "no winners selected"}
	}
	if len(result.Winners) > requested {
		return domain.ValidationReport{Reason: "too many winners selected"}
	}
	if !allowDuplicates {
		seen := make(map[string]struct{}, len(result.Winners))
		for _, w := range result.Winners {
			key := participants.Key(w.Identifier)
			if _, dup := seen[key]; dup {
				return domain.ValidationReport{Reason: "duplicate winners found"}
			}
			seen[key] = struct{}{}
		}
	}
	pool := make(map[string]struct{}, len(ps))
	for _, p := range ps {
		pool[participants.Key(p.Identifier)] = struct{}{}
	}
	for _, w := range result.Winners {
		if _, ok := pool[participants.Key(w.Identifier)]; !ok {
			return domain.ValidationReport{Reason: fmt.Sprintf("winner %s not in participant list", w.Identifier)}
		}
	}
	return domain.ValidationReport{Valid: true}
}

// Check turns an invalid report into an integrity error.
func Check(report domain.ValidationReport) error {
	if report.Valid {
		return nil
	}
	return domain.Errorf(domain.ErrIntegrity, "invalid lottery result: %s", report.Reason)
}
