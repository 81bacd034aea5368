// Package participants consolidates per-kind identifier lists into unique
// participants and applies eligibility rules.
//
// All identifier comparisons go through Key: surrounding whitespace and one
// leading "@" are dropped and the result is lowercased. Merging, exclude and
// include matching share that single policy.
package participants

import (
	"strings"

	"giveaway/internal/domain"
)

// Key returns the comparison key for an identifier.
func Key(id string) string {
	return strings.ToLower(Display(id))
}

// Display returns the trimmed spelling kept on a participant.
func Display(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "@")
	return strings.TrimSpace(id)
}

// MergeOptions adjusts Merge. The zero value is the default pipeline.
type MergeOptions struct {
	// KeepDuplicates emits one single-kind participant per raw entry.
	KeepDuplicates bool
	// WeightOverride maps an identifier key to an explicit weight. Values <= 0 are ignored.
	WeightOverride map[string]int
}

type entry struct {
	id   string
	kind domain.InteractionKind
}

// Merge concatenates (identifier, kind) pairs in canonical kind order and
// groups them by identifier. Blank identifiers are dropped.
func Merge(sources map[domain.InteractionKind][]string, opts MergeOptions) ([]domain.Participant, error) {
	for k := range sources {
		if !k.Valid() {
			return nil, domain.Errorf(domain.ErrConfiguration, "unknown interaction kind %q", k)
		}
	}
	var entries []entry
	for _, k := range domain.Kinds() {
		for _, raw := range sources[k] {
			id := Display(raw)
			if id == "" {
				continue
			}
			entries = append(entries, entry{id: id, kind: k})
		}
	}
	if opts.KeepDuplicates {
		out := make([]domain.Participant, 0, len(entries))
		for _, e := range entries {
			out = append(out, domain.Participant{
				Identifier: e.id,
				Kinds:      []domain.InteractionKind{e.kind},
				Weight:     weightFor(opts, e.id, 1),
			})
		}
		return out, nil
	}

	// table is keyed by identifier; order keeps first-seen positions.
	table := make(map[string]*domain.Participant, len(entries))
	var order []string
	for _, e := range entries {
		key := Key(e.id)
		p, ok := table[key]
		if !ok {
			table[key] = &domain.Participant{Identifier: e.id, Kinds: []domain.InteractionKind{e.kind}}
			order = append(order, key)
			continue
		}
		if !p.Has(e.kind) {
			p.Kinds = append(p.Kinds, e.kind)
		}
	}
	out := make([]domain.Participant, 0, len(order))
	for _, key := range order {
		p := table[key]
		p.Weight = weightFor(opts, p.Identifier, len(p.Kinds))
		out = append(out, *p)
	}
	return out, nil
}

func weightFor(opts MergeOptions, id string, derived int) int {
	if w, ok := opts.WeightOverride[Key(id)]; ok && w > 0 {
		return w
	}
	return derived
}

// ApplyFilters keeps participants that have every required kind, drops
// excluded identifiers, then keeps only included ones when an include list is
// given. Input order is preserved and participants are never modified.
func ApplyFilters(ps []domain.Participant, spec domain.FilterSpec) []domain.Participant {
	required := spec.RequiredKinds()
	exclude := keySet(spec.Exclude)
	include := keySet(spec.Include)

	out := make([]domain.Participant, 0, len(ps))
	for _, p := range ps {
		if !hasAll(p, required) {
			continue
		}
		key := Key(p.Identifier)
		if _, ok := exclude[key]; ok {
			continue
		}
		if len(include) > 0 {
			if _, ok := include[key]; !ok {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func hasAll(p domain.Participant, kinds []domain.InteractionKind) bool {
	for _, k := range kinds {
		if !p.Has(k) {
			return false
		}
	}
	return true
}

func keySet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		key := Key(id)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	return set
}

// Stats summarizes a participant set.
func Stats(ps []domain.Participant) domain.Statistics {
	st := domain.Statistics{
		Total:   len(ps),
		PerKind: make(map[domain.InteractionKind]int, len(domain.Kinds())),
	}
	for _, k := range domain.Kinds() {
		st.PerKind[k] = 0
	}
	for _, p := range ps {
		for _, k := range p.Kinds {
			st.PerKind[k]++
		}
		if len(p.Kinds) > 1 {
			st.MultiKind++
		}
	}
	return st
}

// CollectKinds returns the kinds worth harvesting for a filter: exactly the
// required ones, or retweets alone when nothing is required.
func CollectKinds(spec domain.FilterSpec) []domain.InteractionKind {
	kinds := spec.RequiredKinds()
	if len(kinds) == 0 {
		return []domain.InteractionKind{domain.KindRetweet}
	}
	return kinds
}
