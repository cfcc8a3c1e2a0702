// Package op implements first-class composable events: primitive
// operations plus choice, guard, wrap, negative-acknowledgement and
// abort combinators, performed through a compile-and-commit protocol.
//
// An Op describes a potentially-blocking operation without performing
// it. Performing compiles the tree to a flat list of primitive leaves,
// probes them in random order, and either commits immediately or parks
// the fiber on a single Suspension shared by every leaf. Exactly one
// leaf commits per performance; losing arms have their nack conditions
// signalled, which is what drives abort handlers and Bracket releases.
package op
