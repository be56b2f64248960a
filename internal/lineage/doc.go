// Package lineage tracks the relationship between pro-rata rights and their
// exercise.
//
// A right is granted on an ordinary instrument (pro_rata_rights set) in some
// round. An allocation is a separate instrument in a strictly later round
// recording the holder's exercise of that right. The allocation's
// (pro_rata_type, pro_rata_percentage) is a cached projection of the most
// recent grant for the holder; only exercise_type and the partial bounds are
// chosen independently.
//
// All functions are pure: they take rounds by value and return new rounds.
// Business inconsistencies are reported as results, never as errors.
package lineage
