// Package protocol implements the PostgreSQL frontend/backend wire protocol
// (major version 3.0): message encoding for the extended-query subset this
// client needs, and decoding of the closed set of backend messages into a
// discriminated union.
package protocol

// ProtocolVersion is the 32-bit integer advertised in the Startup message:
// major version 3, minor version 0.
const ProtocolVersion uint32 = 196608

// Frontend message tags.
const (
	TagBind        byte = 'B'
	TagClose       byte = 'C'
	TagDescribe    byte = 'D'
	TagExecute     byte = 'E'
	TagFlush       byte = 'H'
	TagParse       byte = 'P'
	TagPassword    byte = 'p'
	TagQuery       byte = 'Q'
	TagSync        byte = 'S'
	TagTerminate   byte = 'X'
)

// Backend message tags.
const (
	TagAuthentication          byte = 'R'
	TagBackendKeyData          byte = 'K'
	TagParameterStatus         byte = 'S'
	TagNoticeResponse          byte = 'N'
	TagErrorResponse           byte = 'E'
	TagRowDescription          byte = 'T'
	TagDataRow                 byte = 'D'
	TagCommandComplete         byte = 'C'
	TagReadyForQuery           byte = 'Z'
	TagParseComplete           byte = '1'
	TagBindComplete            byte = '2'
	TagCloseComplete           byte = '3'
	TagNoData                  byte = 'n'
	TagEmptyQueryResponse      byte = 'I'
	TagPortalSuspended         byte = 's'
	TagParameterDescription    byte = 't'
	TagNegotiateProtocolVersion byte = 'v'
)

// DescribeKind selects whether a Describe/Close message targets a prepared
// statement or a portal.
type DescribeKind byte

const (
	DescribeStatement DescribeKind = 'S'
	DescribePortal    DescribeKind = 'P'
)

// FormatCode selects the wire representation of a parameter or result
// column: 0 for text, 1 for binary.
type FormatCode int16

const (
	TextFormat   FormatCode = 0
	BinaryFormat FormatCode = 1
)

// TransactionStatus is the single status byte reported in ReadyForQuery.
type TransactionStatus byte

const (
	TxIdle   TransactionStatus = 'I'
	TxBlock  TransactionStatus = 'T'
	TxFailed TransactionStatus = 'E'
)

// authentication sub-message codes, carried in the int32 following the 'R'
// tag of an Authentication message.
const (
	authOK                authSubType = 0
	authKerberosV5        authSubType = 2
	authCleartextPassword authSubType = 3
	authMD5Password       authSubType = 5
	authSCMCredential     authSubType = 6
	authGSS               authSubType = 7
	authGSSContinue       authSubType = 8
	authSSPI              authSubType = 9
	authSASL              authSubType = 10
	authSASLContinue      authSubType = 11
	authSASLFinal         authSubType = 12
)

type authSubType int32
