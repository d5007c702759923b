// Package api implements the HTTP REST API for the pgilab server.
//
// New(store, opts) returns an http.Handler that serves:
//
//	GET    /api/v1/health              status, record count, dataset version
//	GET    /api/v1/records             all records with index and PGI (null when undefined)
//	POST   /api/v1/records             add one record; 201 with its index
//	GET    /api/v1/records/{i}         one record
//	PUT    /api/v1/records/{i}         replace one record
//	DELETE /api/v1/records/{i}         delete one record (undoable)
//	POST   /api/v1/records/undo        restore the last deleted record
//	GET    /api/v1/names               distinct isolates and fungi
//	POST   /api/v1/import?mode=        CSV body, append or replace; row errors in the response
//	GET    /api/v1/export              CSV download
//	GET    /api/v1/export.xlsx         workbook download
//	GET    /api/v1/pgi?group=          PGI table by isolate, fungus or pair
//	GET    /api/v1/pgi/matrix          isolate × fungus mean PGI
//	GET    /api/v1/pgi/effective?fungus=F    most effective isolate against F
//	GET    /api/v1/pgi/resistant?isolate=I   most resistant fungus to I
//	GET    /api/v1/summary             dataset summary with hints
//	GET    /api/v1/checks              configured rules and findings
//	GET    /api/v1/chart?group=&kind=&metric=&target=&format=   rendered chart
//	GET    /api/v1/report.pdf?group=   full PDF report
//
// JSON endpoints respond with Content-Type: application/json and return 405
// for unsupported methods. Validation errors map to 400, unknown indexes and
// names to 404; a record body must carry all three numeric fields. Insufficient
// data is not an error: ranking and chart endpoints answer 200 with
// "sufficient": false.
//
// RequestID is middleware that tags each request with an X-Request-ID.
// JSON types are defined in types.go. No external HTTP framework is used.
package api
