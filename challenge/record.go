package challenge

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	challengeRecordVersionV1 = 1

	maxMetadataEntries = 32
)

// Kind distinguishes short numeric codes (delivered out of band) from long
// opaque confirmation tokens (returned to the caller directly).
type Kind uint8

const (
	KindCode  Kind = 1
	KindToken Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindToken:
		return "token"
	default:
		return "unknown"
	}
}

// Record is the persisted state of one confirmation challenge. The code or
// token secret is never stored, only its hash.
type Record struct {
	ChallengeID string
	PrincipalID string
	Operation   string
	Kind        Kind
	CodeHash    [32]byte
	ExpiresAt   int64
	Attempts    uint16
	MaxAttempts uint16
	Metadata    map[string]string
}

func encodeChallengeRecord(record *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(challengeRecordVersionV1)
	buf.WriteByte(byte(record.Kind))

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.MaxAttempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if err := writeString(&buf, record.PrincipalID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.Operation); err != nil {
		return nil, err
	}

	if len(record.Metadata) > maxMetadataEntries {
		return nil, errors.New("challenge metadata too large")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Metadata))); err != nil {
		return nil, err
	}
	for k, v := range record.Metadata {
		if err := writeString(&buf, k); err != nil {
			return nil, err
		}
		if err := writeString(&buf, v); err != nil {
			return nil, err
		}
	}

	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	kind, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &Record{
		Kind: Kind(kind),
	}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.MaxAttempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	if record.PrincipalID, err = readString(reader); err != nil {
		return nil, err
	}
	if record.Operation, err = readString(reader); err != nil {
		return nil, err
	}

	var count uint16
	if err := binary.Read(reader, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	if count > maxMetadataEntries {
		return nil, errors.New("invalid challenge metadata count")
	}
	if count > 0 {
		record.Metadata = make(map[string]string, count)
		for i := uint16(0); i < count; i++ {
			k, err := readString(reader)
			if err != nil {
				return nil, err
			}
			v, err := readString(reader)
			if err != nil {
				return nil, err
			}
			record.Metadata[k] = v
		}
	}

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("challenge record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var length uint16
	if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
		return "", err
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
