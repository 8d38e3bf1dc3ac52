package qs

import (
	"fmt"
	"sync/atomic"
)

// statementCounter is a process-wide monotonically increasing counter used
// to mint unique prepared-statement names. 16-bit wrap-around is acceptable
// because a generated name only needs to be unique within the lifetime of
// the single connection that issued it.
var statementCounter atomic.Uint32

// nextStatementName mints a 6-byte ASCII statement identifier of the form
// "q" followed by five zero-padded decimal digits.
func nextStatementName() string {
	n := statementCounter.Add(1) - 1
	return fmt.Sprintf("q%05d", uint16(n))
}

// portalCounter is reserved for future named-portal support; only the
// unnamed portal ("") is used today.
var portalCounter atomic.Uint32

const unnamedStatement = ""
const unnamedPortal = ""
