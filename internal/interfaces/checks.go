package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/listenwise/internal/audit"
	"github.com/mrlokans/listenwise/internal/catalog"
	"github.com/mrlokans/listenwise/internal/catalog/audible"
	"github.com/mrlokans/listenwise/internal/catalogsync"
	"github.com/mrlokans/listenwise/internal/connector"
	"github.com/mrlokans/listenwise/internal/database/challenges"
	"github.com/mrlokans/listenwise/internal/database/credentials"
	"github.com/mrlokans/listenwise/internal/database/library"
	"github.com/mrlokans/listenwise/internal/database/preferences"
	"github.com/mrlokans/listenwise/internal/database/recommendations"
	"github.com/mrlokans/listenwise/internal/database/runs"
	"github.com/mrlokans/listenwise/internal/http"
	"github.com/mrlokans/listenwise/internal/recommend"
	"github.com/mrlokans/listenwise/internal/retry"
	"github.com/mrlokans/listenwise/internal/scheduler"
	"github.com/mrlokans/listenwise/internal/session"
	"github.com/mrlokans/listenwise/internal/tasks"
	"github.com/mrlokans/listenwise/internal/vault"
)

// =============================================================================
// Remote Store
// =============================================================================

var _ catalog.AuthClient = (*audible.Client)(nil)
var _ catalog.CatalogClient = (*audible.Client)(nil)
var _ recommend.Searcher = (*audible.Client)(nil)
var _ retry.Hinted = (*catalog.RateLimitError)(nil)

// =============================================================================
// Sessions
// =============================================================================

var _ vault.Store = (*credentials.Repository)(nil)
var _ session.CredentialVault = (*vault.Vault)(nil)
var _ session.ChallengeStore = (*challenges.Repository)(nil)
var _ session.ExpiringLister = (*credentials.Repository)(nil)
var _ session.Auditor = (*audit.Service)(nil)

// =============================================================================
// Library Sync
// =============================================================================

var _ catalogsync.SessionSource = (*session.Manager)(nil)
var _ catalogsync.LibraryStore = (*library.Repository)(nil)
var _ catalogsync.RunClaimer = (*runs.Repository)(nil)
var _ catalogsync.PreferencesReader = (*preferences.Repository)(nil)
var _ catalogsync.Auditor = (*audit.Service)(nil)

// =============================================================================
// Recommendations
// =============================================================================

var _ recommend.SessionSource = (*session.Manager)(nil)
var _ recommend.LibraryReader = (*library.Repository)(nil)
var _ recommend.Store = (*recommendations.Repository)(nil)
var _ recommend.RunClaimer = (*runs.Repository)(nil)
var _ recommend.PreferencesReader = (*preferences.Repository)(nil)
var _ recommend.Auditor = (*audit.Service)(nil)

// =============================================================================
// Background Work
// =============================================================================

var _ tasks.LibrarySyncer = (*connector.Connector)(nil)
var _ tasks.RecommendationGenerator = (*connector.Connector)(nil)
var _ tasks.Enqueuer = (*tasks.Client)(nil)
var _ tasks.AuditEventCleaner = (*audit.Service)(nil)
var _ tasks.ChallengeCleaner = (*challenges.Repository)(nil)
var _ scheduler.OwnerLister = (*credentials.Repository)(nil)
var _ scheduler.Enqueuer = (*tasks.Client)(nil)

// =============================================================================
// Ops HTTP
// =============================================================================

var _ http.TaskStatusReader = (*tasks.Client)(nil)
var _ http.Pinger = (*tasks.Client)(nil)
var _ http.OwnerStatusReader = (*connector.Connector)(nil)
var _ http.LibraryReader = (*connector.Connector)(nil)
