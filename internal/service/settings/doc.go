// Package settings reads the triage tuning knobs from the settings store.
//
// A Snapshot is taken fresh for every evaluation; nothing is cached in
// process memory so operators can retune a running engine.
package settings
