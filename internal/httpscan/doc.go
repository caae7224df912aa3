// Package httpscan extracts just enough from raw HTTP/1.x bytes to route a
// proxied request.
//
// It is a best-effort substring scanner, not an HTTP parser. Field names are
// matched case-sensitively, folded and duplicate headers are not handled, and
// message framing trusts Content-Length only; chunked transfer coding is not
// understood. Callers must tolerate empty results.
package httpscan
