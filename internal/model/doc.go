// Package model defines the declarative form of a decision-tree model:
// node definitions (decision, chance, terminal), branches, conditional
// overrides, and the validation rules that every spec must satisfy before
// a tree can be built from it.
//
// The package also provides canonical JSON serialization and
// content-addressed fingerprints, which the run store uses to key
// evaluation results to the exact model they were computed from.
package model
