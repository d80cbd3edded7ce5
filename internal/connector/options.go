package connector

import (
	"fmt"

	"github.com/mrlokans/listenwise/internal/catalog/audible"
	"github.com/mrlokans/listenwise/internal/catalogsync"
	"github.com/mrlokans/listenwise/internal/config"
	"github.com/mrlokans/listenwise/internal/crypto"
	"github.com/mrlokans/listenwise/internal/database"
	"github.com/mrlokans/listenwise/internal/recommend"
	"github.com/mrlokans/listenwise/internal/retry"
	"github.com/mrlokans/listenwise/internal/session"
)

// OptionsFromConfig maps the environment configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	pageRetry := retry.DefaultPolicy()
	if cfg.Sync.PageRetries > 0 {
		pageRetry.MaxAttempts = cfg.Sync.PageRetries
	}

	return Options{
		Session: session.Config{
			MaxOTPAttempts: cfg.Session.OTPMaxAttempts,
			ChallengeTTL:   cfg.Session.OTPChallengeTTL,
		},
		Sync: catalogsync.Config{
			PageSize: cfg.Sync.PageSize,
			MaxPages: cfg.Sync.MaxPages,
			Retry:    pageRetry,
		},
		Recommend: recommend.Config{
			SearchResults:  cfg.Recommend.SearchResults,
			PriceThreshold: cfg.Recommend.PriceThreshold,
			Retry:          retry.DefaultPolicy(),
		},
		Limits: recommend.Limits{
			Authors:   cfg.Recommend.LimitAuthors,
			Narrators: cfg.Recommend.LimitNarrators,
			Series:    cfg.Recommend.LimitSeries,
		},
		StaleAfter: cfg.Runs.StaleAfter,
	}
}

// AudibleConfig maps the environment configuration onto the HTTP client config.
func AudibleConfig(cfg *config.Config) audible.Config {
	return audible.Config{
		APIBaseURL: cfg.Audible.APIURL,
		TokenURL:   cfg.Audible.TokenURL,
		AuthURL:    cfg.Audible.AuthURL,
		RateLimit:  cfg.Audible.RateLimit,
		RateBurst:  cfg.Audible.RateBurst,
		Timeout:    cfg.Audible.HTTPTimeout,
	}
}

// Open builds a Connector against the real marketplace client from cfg. The
// caller closes the returned database.
func Open(cfg *config.Config) (*Connector, *database.Database, error) {
	master, err := cfg.MasterKeyBytes()
	if err != nil {
		return nil, nil, err
	}
	box, err := crypto.NewSecretBox(master)
	if err != nil {
		return nil, nil, fmt.Errorf("create secret box: %w", err)
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}

	client := audible.New(AudibleConfig(cfg))
	return New(db.DB, box, client, client, OptionsFromConfig(cfg)), db, nil
}
