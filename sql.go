package qs

import "github.com/qspg/qs/errors"

// Once wraps a SQL string to mark it as non-persistent: the statement is
// always sent unnamed and the server is free to discard it once the portal
// is closed, instead of being kept in the per-connection prepared-statement
// cache.
//
// Persistence is a property of the SQL value passed to a query, not of the
// call site: a plain string is persistent by default; wrap it in Once to
// opt out.
type Once string

// sqlOf normalizes the accepted SQL argument types (plain string or Once)
// into text and a persistence flag.
func sqlOf(v any) (text string, persistent bool, err error) {
	switch s := v.(type) {
	case string:
		return s, true, nil
	case Once:
		return string(s), false, nil
	default:
		return "", false, errors.Newf(errors.Protocol, "unsupported SQL argument type %T", v)
	}
}
