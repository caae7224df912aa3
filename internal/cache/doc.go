// Package cache holds the proxy's shared response cache.
//
// A Store maps a request key (the absolute http:// target from the request
// line) to the raw response bytes relayed back to the first client that asked
// for it. Entries are never evicted or expired. The first successful Insert
// for a key wins; later inserts for the same key are ignored.
//
// A Store can be written to a directory at shutdown and read back at startup.
// The directory holds an index.txt file listing one key per line, and one
// file per key, named by the decimal FNV-1a 64-bit hash of the key, holding
// the response bytes verbatim.
package cache
