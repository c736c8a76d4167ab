// Package store provides SQLite-backed persistence for uploaded models,
// slicing profiles, and slice jobs, including enforcement of the job
// lifecycle (queued -> running -> completed/failed) via conditional updates.
package store
