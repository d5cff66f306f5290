// Package changespec defines the ChangeSpec record model and its on-disk
// text format.
//
// A ChangeSpec tracks one unit of work: its status, parent in the rebase
// DAG, commit history (accepted entries plus lettered proposals), hook,
// mentor, and comment status lines keyed by entry id, and the claims of
// currently running background jobs. The package owns parsing,
// serialization, and the proposal renumbering algorithm; everything that
// touches files or locks lives in specstore.
//
// Treat this package as the single source of truth for record semantics.
// When a new suffix kind or section is added, extend the parser and the
// serializer together so round-trips stay lossless.
package changespec
