// Package query implements the boolean filter language used to select
// which records a scheduling pass operates on.
//
// Leaves are quoted string literals matched as substrings against a
// flattened view of the record ("text" folds case, c"text" does not).
// NOT binds tighter than AND, which binds tighter than OR; parentheses
// override. Evaluation is pure: it reads a record snapshot and touches
// nothing.
package query
