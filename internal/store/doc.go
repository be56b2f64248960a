// Package store holds the in-memory cap table aggregate: holders and rounds.
//
// The store is single-writer and synchronous. Every operation is a
// whole-value replacement checked for referential consistency before it is
// applied, so a failed operation leaves the aggregate unchanged:
//   - Instruments reference holders by name; a non-empty holder name must
//     name an existing holder.
//   - A round holds at most one pro-rata allocation per holder.
//   - Ordinary instruments match the round's calculation type.
//
// Renaming a holder updates every instrument in place, so pro-rata lineage
// (which is keyed by holder name) survives the rename.
//
// The store owns a lineage.GrantIndex which it invalidates on every mutation
// that can move or change a rights grant and rebuilds lazily in Grants.
//
// Business-rule validation is not performed here; see package validate.
package store
