package qs

import lru "github.com/hashicorp/golang-lru/v2"

// DefaultStatementCacheSize is the default number of server-side prepared
// statements a connection keeps named entries for.
const DefaultStatementCacheSize = 24

// statementCache maps a SQL fingerprint to the server-side prepared
// statement name holding its parsed plan. It is exclusively owned by one
// connection and never shared.
//
// Eviction on insertion overflow does not notify the server: the
// server-side statement is simply abandoned and reclaimed when the
// connection closes. On a long-lived connection with many distinct queries
// this leaks server-side plan memory until disconnect — see the open
// question recorded in DESIGN.md.
type statementCache struct {
	lru *lru.Cache[uint64, string]
}

func newStatementCache(size int) *statementCache {
	if size <= 0 {
		size = DefaultStatementCacheSize
	}

	c, err := lru.New[uint64, string](size)
	if err != nil {
		// Only returned for a non-positive size, which is guarded above.
		panic(err)
	}

	return &statementCache{lru: c}
}

func (c *statementCache) get(hash uint64) (string, bool) {
	return c.lru.Get(hash)
}

func (c *statementCache) add(hash uint64, name string) {
	c.lru.Add(hash, name)
}
