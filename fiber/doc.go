// Package fiber implements cooperatively-scheduled fibers: suspendable
// computations that hand control back and forth with the scheduler, and
// the one-shot Suspension rendezvous that resumes them.
//
// Exactly one fiber (or the scheduler itself) is active at any instant.
// A fiber is backed by a goroutine, but the goroutine only runs while it
// holds the baton; hand-off happens through an unbuffered channel pair,
// so there is no parallelism, only interleaving at suspension points.
package fiber
