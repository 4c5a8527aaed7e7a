// Package stores persists provisioning run history in SQLite: one row per
// run, one per executed step and an event log of retries and state
// transitions. The schema is managed with embedded golang-migrate
// migrations.
package stores
