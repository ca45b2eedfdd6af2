// Package plancache caches backend-compiled query plans on the client side.
//
// A plan handle is only valid for the backend instance that issued it and
// can be invalidated at any time, so the cache is self healing: a handle
// the backend rejects as unknown is recompiled and the execution retried
// exactly once. The cache key covers name, version and a xxhash of the
// normalized statement text, so a changed statement always misses.
//
// Capacity is bounded; admission beyond MaxEntries evicts the oldest plans
// first.
package plancache
