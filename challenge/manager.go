package challenge

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/acadly/authcore/internal"
)

// Notifier delivers a challenge code to a principal over an out-of-band
// channel. Implementations live outside the core; delivery failures are
// logged and never fail issuance.
type Notifier interface {
	DeliverCode(ctx context.Context, principalID, code, channel string) error
}

// Config tunes challenge issuance.
type Config struct {
	TTL         time.Duration
	MaxAttempts int
	CodeDigits  int
	Channel     string
}

// Manager issues and verifies confirmation challenges. A challenge is
// pending until it is verified (deleted on success), exhausted (attempt
// budget spent), or expired.
type Manager struct {
	store    *Store
	notifier Notifier
	config   Config
}

func NewManager(store *Store, notifier Notifier, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, errors.New("challenge store is required")
	}
	if cfg.TTL <= 0 || cfg.TTL > time.Hour {
		return nil, errors.New("invalid challenge TTL configuration")
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MaxAttempts < 1 || cfg.MaxAttempts > 10 {
		return nil, errors.New("invalid challenge max attempts configuration")
	}
	if cfg.CodeDigits == 0 {
		cfg.CodeDigits = 6
	}
	if cfg.CodeDigits < 4 || cfg.CodeDigits > 10 {
		return nil, errors.New("invalid challenge code digits configuration")
	}
	if cfg.Channel == "" {
		cfg.Channel = "primary"
	}

	return &Manager{
		store:    store,
		notifier: notifier,
		config:   cfg,
	}, nil
}

// IssueCode creates a numeric-code challenge for an operation and hands the
// code to the notifier. The code never leaves through the return value.
func (m *Manager) IssueCode(
	ctx context.Context,
	principalID, operation string,
	metadata map[string]string,
) (string, error) {
	if principalID == "" || operation == "" {
		return "", errors.New("principal id and operation are required")
	}

	id, err := internal.NewTokenID()
	if err != nil {
		return "", err
	}

	code, err := internal.NewCode(m.config.CodeDigits)
	if err != nil {
		return "", err
	}

	record := &Record{
		ChallengeID: id.String(),
		PrincipalID: principalID,
		Operation:   operation,
		Kind:        KindCode,
		CodeHash:    internal.HashCode(code),
		ExpiresAt:   time.Now().Add(m.config.TTL).Unix(),
		MaxAttempts: uint16(m.config.MaxAttempts),
		Metadata:    metadata,
	}

	if err := m.store.Save(ctx, record, m.config.TTL); err != nil {
		return "", err
	}

	m.deliver(record.PrincipalID, code)

	return record.ChallengeID, nil
}

// VerifyCode burns one attempt against a code challenge. On success the
// challenge is deleted and its record returned so the caller can act on
// the confirmed operation.
func (m *Manager) VerifyCode(ctx context.Context, challengeID, code, principalID string) (*Record, error) {
	return m.store.Consume(ctx, challengeID, principalID, internal.HashCode(code), KindCode)
}

// IssueToken creates an opaque-token challenge: a long random secret for
// "confirm you meant this" flows that do not warrant an out-of-band code.
// The returned token embeds the challenge id and the secret.
func (m *Manager) IssueToken(
	ctx context.Context,
	principalID, operation string,
	metadata map[string]string,
) (string, error) {
	if principalID == "" || operation == "" {
		return "", errors.New("principal id and operation are required")
	}

	id, err := internal.NewTokenID()
	if err != nil {
		return "", err
	}

	secret, err := internal.NewConfirmSecret()
	if err != nil {
		return "", err
	}

	record := &Record{
		ChallengeID: id.String(),
		PrincipalID: principalID,
		Operation:   operation,
		Kind:        KindToken,
		CodeHash:    internal.HashConfirmSecret(secret),
		ExpiresAt:   time.Now().Add(m.config.TTL).Unix(),
		MaxAttempts: uint16(m.config.MaxAttempts),
		Metadata:    metadata,
	}

	if err := m.store.Save(ctx, record, m.config.TTL); err != nil {
		return "", err
	}

	return internal.EncodeConfirmToken(record.ChallengeID, secret)
}

// ConsumeToken verifies and deletes an opaque-token challenge.
func (m *Manager) ConsumeToken(ctx context.Context, token, principalID string) (*Record, error) {
	challengeID, secret, err := internal.DecodeConfirmToken(token)
	if err != nil {
		return nil, ErrChallengeNotFound
	}

	return m.store.Consume(ctx, challengeID, principalID, internal.HashConfirmSecret(secret), KindToken)
}

func (m *Manager) deliver(principalID, code string) {
	if m.notifier == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := m.notifier.DeliverCode(ctx, principalID, code, m.config.Channel); err != nil {
			log.Print("authcore: challenge code delivery failed: ", err)
		}
	}()
}
