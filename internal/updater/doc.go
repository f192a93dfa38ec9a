// Package updater orchestrates one update cycle for the managed shared
// library: throttle decision, conditional feed fetch, version compare,
// platform asset selection, and install handoff. Every cycle ends in exactly
// one Outcome.
package updater
