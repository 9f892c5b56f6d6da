// Package domain contains the core entities and decision rules of serially.
//
// This package is the innermost layer. It has no dependencies on
// infrastructure (SQLite, sockets, files, logging) and holds only pure logic.
//
// # Entities
//
//   - [Artifact]: a catalogued JAR and its candidate class names
//   - [ProbeAttempt]: one try of one class, discarded after classification
//   - [Outcome]: what happened to an attempt
//   - [RunSummary]: counters for a finished enumeration pass
//
// # Classification
//
// [Classify] maps an [Outcome] to a [Verdict] for the active [Mode]. It is
// total: every outcome kind has a verdict in every mode.
package domain
