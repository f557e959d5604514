// Package harness runs isolation scenarios and checks their outcomes.
//
// A scenario names a ledger to seed, one mutation (a concurrent
// read-modify-write experiment or a sequential transfer), a trial count,
// and assertions over what the trials observed.
//
// # Scenario Format
//
//	name: lost_update_protected
//	description: "FOR UPDATE serializes the increments"
//	seed:
//	  - { name: Alice, money: 1000 }
//	  - { name: Bob, money: 0 }
//	experiment:
//	  account: Alice
//	  concurrency: 30
//	  delta: 10
//	  lock: for_update
//	trials: 3
//	assertions:
//	  - type: final_balances
//	    expect: { Alice: 1300, Bob: 0 }
//	  - type: matches_serial
//	    value: true
//
// Files are checked against an embedded CUE schema (ValidateSchema) and then
// decoded strictly, so unknown keys are rejected.
//
// # Assertion Types
//
//   - final_balances: listed accounts hold the given amount on every trial
//   - matches_serial: every trial (true) or some trial (false) differs from the serial result
//   - lost_updates: min/max bound on the largest number of lost increments
//   - anomaly_rate: min/max bound on the fraction of anomalous trials
//   - distinct_workspaces: whether every trial ran in its own workspace
//
// # Deterministic Reports
//
// Run uses a fresh memory store, a fixed run id and a step clock, so the
// report snapshot compared against testdata/golden is identical across runs.
package harness
