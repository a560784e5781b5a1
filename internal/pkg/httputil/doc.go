// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Every response body uses the envelope {"status": "OK"|"ERROR", "data", "message"}
// that admin clients of the campaign service expect.
package httputil
