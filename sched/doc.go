// Package sched provides the cooperative scheduler at the heart of the
// fibers runtime: a two-buffered ready queue, a hierarchical timer wheel,
// and pluggable task sources driven by a single-threaded main loop.
package sched
