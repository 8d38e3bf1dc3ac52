package protocol

import (
	"github.com/qspg/qs/internal/buffer"
)

// Message is the discriminated union of backend messages this client
// understands. Consumers use a type switch on the concrete value returned by
// Decode.
type Message interface {
	isMessage()
}

type (
	AuthenticationOK                struct{}
	AuthenticationCleartextPassword struct{}
	AuthenticationMD5Password       struct{ Salt [4]byte }
	AuthenticationGSS               struct{}
	AuthenticationSSPI              struct{}
	AuthenticationKerberosV5        struct{}
	AuthenticationSASL              struct{ Mechanisms []string }
	AuthenticationSASLContinue      struct{ Data []byte }
	AuthenticationSASLFinal         struct{ Data []byte }

	BackendKeyData struct {
		ProcessID int32
		SecretKey int32
	}

	ParameterStatus struct {
		Name  string
		Value string
	}

	NoticeResponse struct{ Fields map[byte]string }
	ErrorResponse  struct{ Fields map[byte]string }

	FieldDescription struct {
		Name         string
		TableOID     uint32
		AttrNo       int16
		TypeOID      uint32
		TypeSize     int16
		TypeModifier int32
		Format       FormatCode
	}

	RowDescription struct{ Fields []FieldDescription }

	DataRow struct{ Columns [][]byte }

	CommandComplete struct{ Tag string }

	ReadyForQuery struct{ Status TransactionStatus }

	ParseComplete            struct{}
	BindComplete             struct{}
	CloseComplete            struct{}
	NoData                   struct{}
	EmptyQueryResponse       struct{}
	PortalSuspended          struct{}
	ParameterDescription     struct{ OIDs []uint32 }
	NegotiateProtocolVersion struct {
		MinorVersion  int32
		UnrecognizedOptions []string
	}
)

func (AuthenticationOK) isMessage()                {}
func (AuthenticationCleartextPassword) isMessage()  {}
func (AuthenticationMD5Password) isMessage()        {}
func (AuthenticationGSS) isMessage()                {}
func (AuthenticationSSPI) isMessage()               {}
func (AuthenticationKerberosV5) isMessage()         {}
func (AuthenticationSASL) isMessage()               {}
func (AuthenticationSASLContinue) isMessage()       {}
func (AuthenticationSASLFinal) isMessage()          {}
func (BackendKeyData) isMessage()                   {}
func (ParameterStatus) isMessage()                  {}
func (NoticeResponse) isMessage()                   {}
func (ErrorResponse) isMessage()                    {}
func (RowDescription) isMessage()                   {}
func (DataRow) isMessage()                          {}
func (CommandComplete) isMessage()                  {}
func (ReadyForQuery) isMessage()                    {}
func (ParseComplete) isMessage()                    {}
func (BindComplete) isMessage()                     {}
func (CloseComplete) isMessage()                    {}
func (NoData) isMessage()                           {}
func (EmptyQueryResponse) isMessage()               {}
func (PortalSuspended) isMessage()                  {}
func (ParameterDescription) isMessage()             {}
func (NegotiateProtocolVersion) isMessage()         {}

// Decode dispatches on the backend message tag and parses the message body
// out of the reader's remaining scratch buffer. An unknown tag is a fatal
// protocol error.
func Decode(tag byte, r *buffer.Reader) (Message, error) {
	switch tag {
	case TagAuthentication:
		return decodeAuthentication(r)
	case TagBackendKeyData:
		return decodeBackendKeyData(r)
	case TagParameterStatus:
		return decodeParameterStatus(r)
	case TagNoticeResponse:
		fields, err := decodeErrorFields(r)
		if err != nil {
			return nil, err
		}
		return NoticeResponse{Fields: fields}, nil
	case TagErrorResponse:
		fields, err := decodeErrorFields(r)
		if err != nil {
			return nil, err
		}
		return ErrorResponse{Fields: fields}, nil
	case TagRowDescription:
		return decodeRowDescription(r)
	case TagDataRow:
		return decodeDataRow(r)
	case TagCommandComplete:
		s, err := r.GetString()
		if err != nil {
			return nil, err
		}
		return CommandComplete{Tag: s}, nil
	case TagReadyForQuery:
		status, err := readyForQueryStatus(r)
		if err != nil {
			return nil, err
		}
		return ReadyForQuery{Status: status}, nil
	case TagParseComplete:
		return ParseComplete{}, nil
	case TagBindComplete:
		return BindComplete{}, nil
	case TagCloseComplete:
		return CloseComplete{}, nil
	case TagNoData:
		return NoData{}, nil
	case TagEmptyQueryResponse:
		return EmptyQueryResponse{}, nil
	case TagPortalSuspended:
		return PortalSuspended{}, nil
	case TagParameterDescription:
		return decodeParameterDescription(r)
	case TagNegotiateProtocolVersion:
		return decodeNegotiateProtocolVersion(r)
	default:
		return nil, buffer.NewProtocolError("unknown backend message tag")
	}
}

// readyForQueryStatus reads the single transaction-status byte that makes up
// the entire ReadyForQuery payload.
func readyForQueryStatus(r *buffer.Reader) (TransactionStatus, error) {
	b, err := r.GetBytes(1)
	if err != nil {
		return 0, err
	}

	return TransactionStatus(b[0]), nil
}

func decodeAuthentication(r *buffer.Reader) (Message, error) {
	sub, err := r.GetInt32()
	if err != nil {
		return nil, err
	}

	switch authSubType(sub) {
	case authOK:
		return AuthenticationOK{}, nil
	case authCleartextPassword:
		return AuthenticationCleartextPassword{}, nil
	case authMD5Password:
		salt, err := r.GetBytes(4)
		if err != nil {
			return nil, err
		}
		var s [4]byte
		copy(s[:], salt)
		return AuthenticationMD5Password{Salt: s}, nil
	case authGSS, authGSSContinue:
		return AuthenticationGSS{}, nil
	case authSSPI:
		return AuthenticationSSPI{}, nil
	case authKerberosV5:
		return AuthenticationKerberosV5{}, nil
	case authSASL:
		var mechanisms []string
		for {
			s, err := r.GetString()
			if err != nil {
				return nil, err
			}
			if s == "" {
				break
			}
			mechanisms = append(mechanisms, s)
		}
		return AuthenticationSASL{Mechanisms: mechanisms}, nil
	case authSASLContinue:
		return AuthenticationSASLContinue{Data: r.Remaining()}, nil
	case authSASLFinal:
		return AuthenticationSASLFinal{Data: r.Remaining()}, nil
	default:
		return nil, buffer.NewProtocolError("unknown authentication sub-message")
	}
}

func decodeBackendKeyData(r *buffer.Reader) (Message, error) {
	pid, err := r.GetInt32()
	if err != nil {
		return nil, err
	}

	secret, err := r.GetInt32()
	if err != nil {
		return nil, err
	}

	return BackendKeyData{ProcessID: pid, SecretKey: secret}, nil
}

func decodeParameterStatus(r *buffer.Reader) (Message, error) {
	name, err := r.GetString()
	if err != nil {
		return nil, err
	}

	value, err := r.GetString()
	if err != nil {
		return nil, err
	}

	return ParameterStatus{Name: name, Value: value}, nil
}

// decodeErrorFields parses the repeated (field-type-byte, NUL-terminated
// string) pairs shared by NoticeResponse and ErrorResponse, terminated by a
// zero byte.
func decodeErrorFields(r *buffer.Reader) (map[byte]string, error) {
	fields := make(map[byte]string, 6)

	for {
		t, err := r.GetBytes(1)
		if err != nil {
			return nil, err
		}

		if t[0] == 0 {
			break
		}

		value, err := r.GetString()
		if err != nil {
			return nil, err
		}

		fields[t[0]] = value
	}

	return fields, nil
}

func decodeRowDescription(r *buffer.Reader) (Message, error) {
	count, err := r.GetInt16()
	if err != nil {
		return nil, err
	}

	fields := make([]FieldDescription, count)
	for i := range fields {
		name, err := r.GetString()
		if err != nil {
			return nil, err
		}

		tableOID, err := r.GetUint32()
		if err != nil {
			return nil, err
		}

		attrNo, err := r.GetInt16()
		if err != nil {
			return nil, err
		}

		typeOID, err := r.GetUint32()
		if err != nil {
			return nil, err
		}

		typeSize, err := r.GetInt16()
		if err != nil {
			return nil, err
		}

		typeModifier, err := r.GetInt32()
		if err != nil {
			return nil, err
		}

		format, err := r.GetInt16()
		if err != nil {
			return nil, err
		}

		fields[i] = FieldDescription{
			Name:         name,
			TableOID:     tableOID,
			AttrNo:       attrNo,
			TypeOID:      typeOID,
			TypeSize:     typeSize,
			TypeModifier: typeModifier,
			Format:       FormatCode(format),
		}
	}

	return RowDescription{Fields: fields}, nil
}

func decodeDataRow(r *buffer.Reader) (Message, error) {
	count, err := r.GetInt16()
	if err != nil {
		return nil, err
	}

	cols := make([][]byte, count)
	for i := range cols {
		length, err := r.GetInt32()
		if err != nil {
			return nil, err
		}

		v, err := r.GetBytes(int(length))
		if err != nil {
			return nil, err
		}

		cols[i] = v
	}

	return DataRow{Columns: cols}, nil
}

func decodeParameterDescription(r *buffer.Reader) (Message, error) {
	count, err := r.GetInt16()
	if err != nil {
		return nil, err
	}

	oids := make([]uint32, count)
	for i := range oids {
		v, err := r.GetUint32()
		if err != nil {
			return nil, err
		}
		oids[i] = v
	}

	return ParameterDescription{OIDs: oids}, nil
}

func decodeNegotiateProtocolVersion(r *buffer.Reader) (Message, error) {
	minor, err := r.GetInt32()
	if err != nil {
		return nil, err
	}

	count, err := r.GetInt32()
	if err != nil {
		return nil, err
	}

	opts := make([]string, count)
	for i := range opts {
		s, err := r.GetString()
		if err != nil {
			return nil, err
		}
		opts[i] = s
	}

	return NegotiateProtocolVersion{MinorVersion: minor, UnrecognizedOptions: opts}, nil
}
