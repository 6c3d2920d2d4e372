// Package core provides the business logic for dealer price imports.
//
// This package holds the import workflow independent of any transport. It
// is used by the HTTP server, the priceimport command and tests alike.
//
// # Pipeline
//
// An import runs four stages over one file:
//
//  1. decode: the file becomes a RawTable of text cells ([decode.Decode])
//  2. filter: per-column transforms and predicate chains drop or keep rows ([filter.Rows])
//  3. assemble: surviving rows become product records, resolving
//     manufacturers and price tiers ([assemble.Assembler])
//  4. replace: the dealer's products are deleted and the new records are
//     inserted in batches ([BulkReplacer])
//
// Decode, filter and assemble finish before anything is deleted, so every
// error up to that point leaves the dealer untouched. A failure during the
// replace stage is a [PartialCommitError].
//
// # Imports
//
// [Service.RunImport] runs an import synchronously. [Service.StartImport]
// runs it in the background; progress is broadcast to subscribers via
// [Service.SubscribeProgress] and the outcome is returned by
// [Service.GetImportResult]. Imports are serialized per dealer and bounded
// globally by an [ImportLimiter].
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a code for support reference:
//
//   - FILE001-FILE006: File errors (format, corruption, size, separator, codepage)
//   - MAP001-MAP003: Mapping errors
//   - IMP001-IMP006: Import errors (partial commit, busy, cancelled, timeout)
//   - DLR001: Dealer errors
//   - DB001-DB005: Database errors
//
// Row-level problems (records without a name, cells that are not
// integers, unknown currencies) never fail an import; they are counted in
// the [ImportResult].
package core
