// Package scope provides structured concurrency for the fibers
// runtime. Scopes form a supervision tree: each scope admits fibers and
// child scopes while running, cancels the whole subtree on the first
// failure, runs finalizers deterministically during join, and reports
// its outcome to the parent.
package scope
