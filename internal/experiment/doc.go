// Package experiment runs lost-update experiments against a store.
//
// One experiment flows strictly left to right:
//
//	AllocateWorkspace -> SeedBalances -> Runner.RunConcurrentIncrements -> ReadBalances/Verify
//
// AllocateWorkspace is itself the correct pattern: it reads the
// next_workspace_id counter FOR UPDATE and writes value+1 in the same
// transaction, so it never loses an allocation.
//
// The runner then deliberately does the opposite. Each of N units reads the
// target balance, adds delta, and writes the result back unconditionally. With
// store.LockNone two units can read the same value and one increment is
// silently lost; with store.LockForUpdate every reader after the first blocks
// on the row until the holder commits, and the final balance is exactly
// initial + N*delta.
//
// Units run in parallel on their own connections via an errgroup.Group. A
// failed unit never cancels its siblings and nothing is retried, since
// retries would hide the anomaly being measured.
//
// Because the unprotected outcome depends on scheduling, Experiment.Trials
// repeats a plan in fresh workspaces and reports an anomaly rate. The
// protected plan must match the serial result on every trial.
package experiment
