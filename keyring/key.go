package keyring

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"io"
)

const keyRecordVersionV1 = 1

// Status is the lifecycle state of a signing key pair.
type Status uint8

const (
	// StatusActive keys sign new tokens and verify existing ones.
	StatusActive Status = 1
	// StatusRotating keys no longer sign but still verify until their
	// shortened expiry elapses.
	StatusRotating Status = 2
	// StatusDeprecated keys are terminal and await garbage collection.
	StatusDeprecated Status = 3
	// StatusRevoked keys are terminal and never verify, regardless of expiry.
	StatusRevoked Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRotating:
		return "rotating"
	case StatusDeprecated:
		return "deprecated"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// AlgorithmEd25519 is the only signing algorithm the keyring produces.
const AlgorithmEd25519 uint8 = 1

// Key is one asymmetric signing key pair. The private key never leaves this
// package except through [Manager.SignerKey], which hands it to the
// token-signing boundary only.
type Key struct {
	KeyID     string
	Algorithm uint8
	Status    Status
	CreatedAt int64
	ExpiresAt int64

	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// Public returns the verification half of the pair.
func (k *Key) Public() ed25519.PublicKey {
	return k.public
}

func encodeKey(k *Key) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(keyRecordVersionV1)
	buf.WriteByte(byte(k.Status))
	buf.WriteByte(k.Algorithm)

	if err := binary.Write(&buf, binary.BigEndian, k.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, k.ExpiresAt); err != nil {
		return nil, err
	}

	if len(k.KeyID) > 255 {
		return nil, errors.New("key id too long")
	}
	buf.WriteByte(byte(len(k.KeyID)))
	buf.WriteString(k.KeyID)

	if len(k.public) != ed25519.PublicKeySize {
		return nil, errors.New("invalid public key size")
	}
	buf.Write(k.public)

	if len(k.private) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	buf.Write(k.private)

	return buf.Bytes(), nil
}

func decodeKey(data []byte) (*Key, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != keyRecordVersionV1 {
		return nil, errors.New("invalid key record version")
	}

	status, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	algorithm, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	key := &Key{
		Status:    Status(status),
		Algorithm: algorithm,
	}

	if err := binary.Read(reader, binary.BigEndian, &key.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &key.ExpiresAt); err != nil {
		return nil, err
	}

	idLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, err
	}
	key.KeyID = string(id)

	key.public = make(ed25519.PublicKey, ed25519.PublicKeySize)
	if _, err := io.ReadFull(reader, key.public); err != nil {
		return nil, err
	}

	key.private = make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	if _, err := io.ReadFull(reader, key.private); err != nil {
		return nil, err
	}

	return key, nil
}
