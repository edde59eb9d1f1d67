// Package core provides the business logic for CSV transaction imports.
//
// This package contains the import workflow independent of any UI or
// transport layer. It is used by the web server, the CLI and tests without
// modification. CSV parsing itself happens on the finance API; this package
// only decides which columns feed which transaction fields and when the
// remote services may be called.
//
// # Architecture
//
// The package is organized in three layers, leaves first:
//
//   - Column mapping: [ColumnMapping] associates each [LogicalField] with an
//     ordered set of source columns. [ToggleColumn], [IsComplete] and
//     [Serialize] are pure functions.
//   - Session: [Session] is the state machine
//     Idle → Inspecting → Mapping → Importing → Idle, with Error reachable
//     from both remote calls.
//   - Workflow: [Workflow] is the controller used by presentation code. It
//     calls the [Backend] ports and applies their results to the session.
//
// # Stale responses
//
// Every remote request is tagged with the session generation that issued it.
// A reset or a newer request bumps the generation, and completions carrying
// an older tag are discarded. Callers of the superseded request receive
// [ErrSuperseded].
//
// # Error Handling
//
// Local precondition failures ([ErrInvalidState], [IncompleteMappingError],
// [ErrNoFile], [ErrUnknownColumn]) are returned before any remote call.
// Remote failures ([InspectionError], [ImportError], [ServiceError]) move the
// session to Error, from which it can be retried or reset. [MapError] turns
// any of them into a user-facing message with a support code.
//
// # Sessions
//
// The web server keeps one workflow per browser session in a [Registry].
// Idle sessions are evicted by [Registry.StartSweeper], and an
// [ImportLimiter] caps concurrent imports across all sessions.
package core
