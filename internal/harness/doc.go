// Package harness runs deployment scenarios against the simulated chain.
//
// A scenario seeds pre-existing units, optionally writes a starting
// manifest, runs full deploys and gauge extensions in order, then checks the
// final manifest and ledger.
//
// # Scenario Format
//
//	name: existing_escrow
//	description: "What this scenario validates"
//	network: testnet            # optional
//	reject: [Minter]            # unit kinds the chain refuses, optional
//	seed:
//	  - ref: legacy
//	    kind: VotingEscrow
//	    storage: { smart_wallet_checker: $checker }
//	manifest:                   # starting manifest, optional
//	  roles: { Minter: "0x..." }
//	  gauges: [{ id: usdc, address: "0x..." }]
//	steps:
//	  - deploy:
//	      base_token: "0x..."
//	      escrow: $legacy
//	      pools: [{ id: usdc, token: "0x..." }]
//	  - extend:
//	      token: "0x..."
//	      name: weth
//	      register: true
//	    expect:
//	      status: succeeded     # or failed, prerequisite_missing
//	assertions:
//	  - type: gauge_ids
//	    ids: [usdc, weth]
//
// Values of the form "$ref" name a seeded unit; "@Role" names the address
// recorded for a role in the final manifest.
//
// # Assertion Types
//
//   - role_set, role_unset: a role is (not) recorded
//   - role_equals: a role is recorded with the given address
//   - gauge_ids: the gauge list has exactly these ids, in order
//   - constructions: the deployer built count units (optionally of one kind)
//   - calls: an entry point was called count times on a role's unit
//   - read: an accessor on a role's unit returns the given value
//
// # Determinism
//
// Every scenario gets a fresh in-memory ledger and manifest directory, run
// IDs are "<name>-0001", "<name>-0002", ..., and addresses are derived from
// the deployer nonce. The final manifest is therefore stable and is
// compared byte for byte against golden/<name>.golden.
package harness
