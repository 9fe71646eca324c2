// Package cache provides the read-through block cache that sits in front
// of a chunk tree.
//
// Content is cached in fixed-size aligned blocks keyed by (version, block).
// Because the key carries the version, a block from a superseded version
// can never be served for the current one; InvalidateAll on every mutation
// only reclaims the memory. The cache is bounded by total bytes and evicts
// least recently used blocks first.
package cache
