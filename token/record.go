package token

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const recordVersionV1 = 1

// Record is one refresh-token lineage entry. Only the keyed hash of the
// secret is ever stored; UsedAt is zero until the record is consumed and is
// set exactly once, either by rotation or by a revocation sweep.
type Record struct {
	TokenID     string
	PrincipalID string
	SecretHash  [32]byte
	CreatedAt   int64
	ExpiresAt   int64
	UsedAt      int64
}

// Used reports whether the record has been consumed.
func (r *Record) Used() bool {
	return r.UsedAt != 0
}

// Encode writes the fixed v1 wire layout. The layout places UsedAt at a
// fixed offset directly after the version byte so the rotation script can
// splice in the consumption timestamp without re-encoding the record.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, r.UsedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}

	if len(r.PrincipalID) > 65535 {
		return nil, errors.New("principal id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(r.PrincipalID))); err != nil {
		return nil, err
	}
	buf.WriteString(r.PrincipalID)
	buf.Write(r.SecretHash[:])

	return buf.Bytes(), nil
}

// Decode parses a v1 record blob.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid token record version")
	}

	record := &Record{}

	if err := binary.Read(reader, binary.BigEndian, &record.UsedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var principalLen uint16
	if err := binary.Read(reader, binary.BigEndian, &principalLen); err != nil {
		return nil, err
	}

	principal := make([]byte, principalLen)
	if _, err := io.ReadFull(reader, principal); err != nil {
		return nil, err
	}
	record.PrincipalID = string(principal)

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
