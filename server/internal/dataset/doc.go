// Package dataset implements the Dataset Store: the ordered, in-memory
// collection of measurement records and its tabular text format.
//
// Store operations:
//   - Add / Update / Delete / UndoDelete address records by position and
//     return *types.ValidationError or *types.IndexError
//   - Import parses delimited text with a header row, in replace or append
//     mode; bad rows come back as types.RowError and never abort the batch
//   - Export writes fungus, isolate, inhibition_zone_mm, control_mm,
//     concentration_cfu_ml in that order, so Import(Export(x)) == x
//   - LoadFile / SaveFile bind the store to a file on disk (atomic save)
//
// OnChange callbacks let the server autosave and push updates to the UI
// without the store knowing about either.
package dataset
