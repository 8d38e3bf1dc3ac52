package qs

import "github.com/cespare/xxhash/v2"

// fingerprint returns the 64-bit hash of a SQL string used as the statement
// cache key. Two textually identical queries always share a cache entry;
// this is deliberately not a normalized/parsed fingerprint.
func fingerprint(sql string) uint64 {
	return xxhash.Sum64String(sql)
}
