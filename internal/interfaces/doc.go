// Package interfaces holds compile-time checks that the concrete types wired
// together in connector and entrypoint satisfy the narrow interfaces their
// consumers declare.
//
// Every consumer package declares the smallest interface it needs next to the
// code that uses it:
//
//   - vault.Store: sealed credential rows (internal/database/credentials)
//   - session.CredentialVault, session.ChallengeStore: the session manager's
//     storage (internal/vault, internal/database/challenges)
//   - catalogsync.LibraryStore, catalogsync.RunClaimer: library sync storage
//   - recommend.Searcher, recommend.Store: remote search and recommendation rows
//   - tasks.LibrarySyncer, tasks.RecommendationGenerator: queue processors
//   - scheduler.OwnerLister, scheduler.Enqueuer: periodic jobs
//
// # Adding a New Remote Store
//
//  1. Implement catalog.AuthClient and catalog.CatalogClient in a
//     sub-package of internal/catalog.
//
//  2. Add compile-time checks here:
//
//     var _ catalog.AuthClient = (*mystore.Client)(nil)
//     var _ catalog.CatalogClient = (*mystore.Client)(nil)
//
//  3. Pass the client to connector.New.
//
// # Adding a New Background Task
//
//  1. Define the task type and its Config in internal/tasks, with a
//     processor taking a narrow interface.
//  2. Register the queue in entrypoint.Run.
//  3. Add a check that the wired type satisfies the processor's interface.
package interfaces
