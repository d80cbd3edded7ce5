// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go        # Connection setup and migrations
//	├── credentials/       # Encrypted session rows (stored_credentials)
//	├── challenges/        # In-flight OTP challenges
//	├── library/           # Books, contributors, series, library entries
//	├── recommendations/   # Recommendation upserts and listing
//	├── preferences/       # Per-owner preferences
//	├── runs/              # Per-owner run claims (sync / recommend exclusion)
//	└── audit/             # Audit trail
//
// # Using Sub-packages
//
// Each sub-package provides a Repository type with domain-specific operations:
//
//	db, err := database.NewDatabase("./listenwise.db")
//
//	libraryRepo := library.NewRepository(db.DB)
//	runsRepo := runs.NewRepository(db.DB, 30*time.Minute)
//
//	entries, err := libraryRepo.Entries(ownerID)
//
// # Interface Implementations
//
// Each sub-package implements the narrow interface its consumer declares:
//
//   - credentials.Repository: implements vault.Store, session.ExpiringLister and scheduler.OwnerLister
//   - challenges.Repository: implements session.ChallengeStore and tasks.ChallengeCleaner
//   - library.Repository: implements catalogsync.LibraryStore and recommend.LibraryReader
//   - recommendations.Repository: implements recommend.Store
//   - preferences.Repository: implements catalogsync.PreferencesReader and recommend.PreferencesReader
//   - runs.Repository: implements catalogsync.RunClaimer and recommend.RunClaimer
//
// The checks live in internal/interfaces.
//
// # Adding a New Domain
//
//  1. Create a new sub-package: internal/database/<domain>/
//  2. Define a Repository struct with a *gorm.DB field
//  3. Add NewRepository(db *gorm.DB) constructor
//  4. Add the model to Models in database.go
//  5. Add a compile-time interface check in internal/interfaces
package database
