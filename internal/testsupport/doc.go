// Package testsupport provides shared fixtures for package tests: a config
// seeded with per-test temp directories and helpers for opening a store and
// committing items.
package testsupport
