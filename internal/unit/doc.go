// Package unit describes the remote components ("units") that vedeploy
// provisions and the boundary used to construct and inspect them.
//
// A Descriptor is the interface definition of one unit kind: its constructor
// parameters, the read accessors the orchestrator relies on, and the entry
// points it may call after construction. Descriptors are immutable and are
// loaded from the embedded catalog (see internal/catalog).
//
// The Backend interface is the Unit Factory Adapter boundary. Implementations
// block until a construction is confirmed; intermediate pending states are
// never observable. The only backend shipped with vedeploy is the simulated
// ledger in internal/simchain.
//
// This package imports nothing internal.
package unit
