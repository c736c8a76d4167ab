// Package testsupport provides shared helpers for integration-style tests:
// temp-dir backed configs, seeded stores, and fixture files.
package testsupport
