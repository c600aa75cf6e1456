// Package store provides SQLite-backed durable state for vedeploy.
//
// The database holds two independent record sets:
//
// Run journal:
//   - runs: one row per deploy/extend invocation (UUIDv7 id, status, failed step, final manifest)
//   - steps: one row per confirmed construction, in logical order within the run
//
// The journal is written as each step is confirmed, so a failed run still
// names every unit it left orphaned. The manifest file remains the only
// artifact other tooling reads; the journal is for operators.
//
// Simulated ledger:
//   - deployers: per-deployer construction nonce
//   - units: every simulated unit with its kind and storage slots
//   - unit_calls: entry point invocations recorded against units
//
// # Ordering
//
// All listings are ORDER BY seq ASC (or id ASC for calls). No timestamps are
// stored; two runs against the same inputs produce identical rows apart
// from run ids.
//
// # Database Configuration
//
//   - WAL mode
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
