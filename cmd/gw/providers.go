package main

import (
	"path/filepath"
	"strings"
	"time"

	"giveaway/internal/config"
	"giveaway/internal/domain"
	"giveaway/internal/extract"
	"giveaway/internal/participants"
	"giveaway/internal/source"
)

// sessionTokens are the optional cookies passed to HTML sources. They come
// from the environment and never from the stored config.
type sessionTokens struct {
	AuthToken string
	CSRFToken string
}

// harvestKinds returns the kinds to collect: the explicit list when given,
// otherwise the ones the filters require.
func harvestKinds(cfg *config.Config, explicit []string) ([]domain.InteractionKind, error) {
	if len(explicit) == 0 {
		return participants.CollectKinds(cfg.FilterSpec()), nil
	}
	seen := make(map[domain.InteractionKind]bool)
	var kinds []domain.InteractionKind
	for _, name := range explicit {
		k, err := domain.ParseKind(name)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// buildProviders opens one provider per kind from the configured sources.
// Relative file paths resolve against the workspace.
func buildProviders(workspace string, cfg *config.Config, kinds []domain.InteractionKind, tokens sessionTokens) (map[domain.InteractionKind]extract.Provider, error) {
	out := make(map[domain.InteractionKind]extract.Provider, len(kinds))
	for _, kind := range kinds {
		loc, ok := cfg.SourceFor(kind)
		if !ok {
			return nil, domain.Errorf(domain.ErrConfiguration, "no source configured for %s; set sources.%s in giveaway.yml", kind, kind)
		}
		p, err := openProvider(workspace, loc, cfg, tokens)
		if err != nil {
			return nil, err
		}
		out[kind] = p
	}
	return out, nil
}

func openProvider(workspace, loc string, cfg *config.Config, tokens sessionTokens) (extract.Provider, error) {
	lower := strings.ToLower(loc)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		if tokens.AuthToken == "" {
			tokens.AuthToken = cfg.Browser.AuthToken
		}
		if tokens.CSRFToken == "" {
			tokens.CSRFToken = cfg.Browser.CSRFToken
		}
		p, err := source.NewHTMLPager(loc, source.HTMLOptions{
			UserAgent:    cfg.Browser.UserAgent,
			Timeout:      time.Duration(cfg.Browser.TimeoutSeconds) * time.Second,
			ItemSelector: cfg.Browser.ItemSelector,
			NextSelector: cfg.Browser.NextSelector,
			AuthToken:    tokens.AuthToken,
			CSRFToken:    tokens.CSRFToken,
		})
		if err != nil {
			return nil, domain.Wrap(domain.ErrConfiguration, err, "invalid source url "+loc)
		}
		return p, nil
	}
	path := loc
	if !filepath.IsAbs(path) && workspace != "" {
		path = filepath.Join(workspace, path)
	}
	l, err := source.LoadFile(path, cfg.Extraction.BatchSize)
	if err != nil {
		return nil, domain.Wrap(domain.ErrConfiguration, err, "cannot read source "+loc)
	}
	return l, nil
}
