package app

import (
	"context"
	"errors"
	"fmt"

	"giveaway/internal/config"
	"giveaway/internal/domain"
	"giveaway/internal/repo"
)

// ResolveCampaignAndConfig picks the active campaign and returns its stored
// config, seeding one if missing. It prefers the override, then the only
// campaign in the workspace, then the workspace giveaway.yml. A campaign named
// by the override or by giveaway.yml that does not exist yet is created.
func ResolveCampaignAndConfig(ctx context.Context, workspace, campaignOverride, actorID string, create func(ctx context.Context, id string, cfg *config.Config) error, r repo.Repo) (string, *config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}
	campaignID := campaignOverride
	if campaignID == "" {
		if c, err := r.SingleCampaign(ctx); err == nil {
			campaignID = c.ID
		} else if fileCfg != nil {
			campaignID = fileCfg.Campaign.ID
		} else {
			return "", nil, domain.Errorf(domain.ErrConfiguration, "campaign not specified; use --campaign")
		}
	}
	seedCfg := fileCfg
	if seedCfg == nil || seedCfg.Campaign.ID != campaignID {
		seedCfg = config.Default(campaignID)
	}

	if _, err := r.GetCampaign(ctx, campaignID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if create == nil {
			return "", nil, fmt.Errorf("campaign %s: %w", campaignID, err)
		}
		if err := create(ctx, campaignID, seedCfg); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetCampaignConfig(ctx, campaignID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := r.UpsertCampaignConfig(ctx, nil, campaignID, seedCfg); err != nil {
			return "", nil, fmt.Errorf("seed campaign config: %w", err)
		}
		cfg = seedCfg
	}
	cfg.Campaign.ID = campaignID
	return campaignID, cfg, nil
}
