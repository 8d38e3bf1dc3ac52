// Package codes enumerates the PostgreSQL server error codes (SQLSTATEs)
// that may appear in the Code field of a Database error.
// http://www.postgresql.org/docs/current/static/errcodes-appendix.html
package codes

// Code represents a Postgres SQLSTATE error code.
type Code string

const (
	SuccessfulCompletion Code = "00000"

	ConnectionException                     Code = "08000"
	ConnectionDoesNotExist                  Code = "08003"
	ConnectionFailure                       Code = "08006"
	SQLClientUnableToEstablishSQLConnection Code = "08001"
	ProtocolViolation                       Code = "08P01"

	InvalidPassword Code = "28P01"

	InvalidSQLStatementName    Code = "26000"
	DuplicatePreparedStatement Code = "42P05"
	UndefinedColumn            Code = "42703"
	SyntaxError                Code = "42601"

	InFailedSQLTransaction Code = "25P02"

	QueryCanceled Code = "57014"

	Uncategorized Code = "XX000"
	Internal      Code = "XX000"
)

// Class returns the two leftmost characters of the code, grouping related
// SQLSTATEs (e.g. all of Class 08, "Connection Exception").
func (c Code) Class() string {
	if len(c) < 2 {
		return string(c)
	}

	return string(c[:2])
}
