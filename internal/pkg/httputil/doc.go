// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Handlers use these helpers instead of writing raw http.ResponseWriter calls
// so that every endpoint emits the same JSON envelope. The dashboard contract
// is {"success": true, "data": ...} on success and
// {"success": false, "error": "..."} on failure.
package httputil
