package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/mail-scheduler/internal/apperr"
	"github.com/nhle/mail-scheduler/internal/credential"
	"github.com/nhle/mail-scheduler/internal/model"
)

// GetSMTPProfile returns the stored profile, or ErrNoProfile if none has
// been saved. With a SecretStore configured the secret is read from it.
func (s *SQLiteStore) GetSMTPProfile(ctx context.Context) (*model.SMTPProfile, error) {
	var (
		p          model.SMTPProfile
		encryption string
	)
	err := s.db.QueryRowxContext(ctx,
		"SELECT server, port, address, secret, encryption FROM smtp_profile LIMIT 1",
	).Scan(&p.Server, &p.Port, &p.Address, &p.Secret, &encryption)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoProfile
	}
	if err != nil {
		return nil, apperr.Store("reading smtp profile", err)
	}
	p.Encryption = model.Encryption(encryption)

	if s.secrets != nil && p.Secret == "" {
		secret, err := s.secrets.Get(secretKey(p.Address))
		if err != nil && !errors.Is(err, credential.ErrNotFound) {
			return nil, apperr.Store("reading smtp secret", err)
		}
		p.Secret = secret
	}

	return &p, nil
}

// SaveSMTPProfile replaces the stored profile: every existing row is
// deleted and the new one inserted in one transaction.
func (s *SQLiteStore) SaveSMTPProfile(ctx context.Context, p model.SMTPProfile) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Store("beginning transaction", err)
	}
	defer tx.Rollback()

	var previous []string
	if err := tx.SelectContext(ctx, &previous, "SELECT address FROM smtp_profile"); err != nil {
		return apperr.Store("reading smtp profile", err)
	}

	rowSecret := p.Secret
	if s.secrets != nil {
		rowSecret = ""
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM smtp_profile"); err != nil {
		return apperr.Store("clearing smtp profile", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO smtp_profile (server, port, address, secret, encryption, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.Server, p.Port, p.Address, rowSecret, string(p.Encryption), time.Now().UTC(),
	); err != nil {
		return apperr.Store("inserting smtp profile", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Store("saving smtp profile", err)
	}

	if s.secrets != nil {
		// The keyring is written only once the row is committed.
		if err := s.secrets.Set(secretKey(p.Address), p.Secret); err != nil {
			return apperr.Store("saving smtp secret", err)
		}
		for _, addr := range previous {
			if addr == p.Address {
				continue
			}
			if err := s.secrets.Delete(secretKey(addr)); err != nil {
				return fmt.Errorf("removing stale secret: %w", err)
			}
		}
	}
	return nil
}
