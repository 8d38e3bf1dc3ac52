package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qspg/qs/codes"
	"github.com/qspg/qs/errors"
)

func TestFromFields_PopulatesDatabaseError(t *testing.T) {
	err := errors.FromFields(map[byte]string{
		'S': "ERROR",
		'C': string(codes.UndefinedColumn),
		'M': "column \"missing\" does not exist",
		'D': "detail text",
		'H': "hint text",
	})

	require.Equal(t, errors.Database, err.Kind)
	require.Equal(t, codes.UndefinedColumn, err.Code)
	require.Contains(t, err.Error(), "does not exist")
	require.Contains(t, err.Error(), "detail text")
	require.Contains(t, err.Error(), "hint text")
}

func TestSentinel_MatchesByKindOnly(t *testing.T) {
	err := errors.Newf(errors.RowNotFound, "fetch_one found no rows for query %q", "SELECT 1")
	require.True(t, stderrors.Is(err, errors.Sentinel(errors.RowNotFound)))
	require.False(t, stderrors.Is(err, errors.Sentinel(errors.Protocol)))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := errors.Wrap(errors.Io, cause)
	require.Equal(t, errors.Io, err.Kind)
	require.True(t, stderrors.Is(err, cause))
}

func TestWrap_NilCauseReturnsNil(t *testing.T) {
	require.Nil(t, errors.Wrap(errors.Io, nil))
}

func TestGoString_MatchesError(t *testing.T) {
	err := errors.New(errors.Protocol, "unexpected message")
	require.Equal(t, `"`+err.Error()+`"`, err.GoString())
}
