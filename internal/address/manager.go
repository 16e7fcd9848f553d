// Package address keeps exactly one default address per user with at least one address.
package address

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
)

var (
	ErrDefaultInvariant = errors.New("default address invariant violated")
	ErrEmptyLine        = errors.New("address line is required")
)

type Manager struct {
	store repository.AddressStore
	log   *slog.Logger
}

func NewManager(store repository.AddressStore, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: store, log: log}
}

// Save inserts a (ID == 0) or updates it, then makes it the default when
// requested, when it is the user's only address, or when the user has no default.
// On update the stored default flag is kept unless requestedDefault promotes it.
func (m *Manager) Save(ctx context.Context, a domain.Address, requestedDefault bool) (*domain.Address, error) {
	if strings.TrimSpace(a.Line) == "" {
		return nil, ErrEmptyLine
	}

	var saved *domain.Address
	err := m.store.WithAddressTx(ctx, a.UserID, func(tx repository.AddressTx) error {
		if a.ID == 0 {
			a.IsDefault = false
		} else {
			existing, err := tx.GetAddress(ctx, a.ID)
			if err != nil {
				return err
			}
			if existing.UserID != a.UserID {
				return domain.ErrAddressNotFound
			}
			a.IsDefault = existing.IsDefault
		}

		id, err := tx.SaveAddress(ctx, a)
		if err != nil {
			return err
		}

		total, err := tx.CountAddresses(ctx, a.UserID)
		if err != nil {
			return err
		}
		defaults, err := tx.CountDefaults(ctx, a.UserID)
		if err != nil {
			return err
		}
		if requestedDefault || total <= 1 || defaults == 0 {
			if err := makeDefault(ctx, tx, a.UserID, id); err != nil {
				return err
			}
		}

		saved, err = tx.GetAddress(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("save address: %w", err)
	}

	m.log.Debug("address saved", "user_id", saved.UserID, "address_id", saved.ID, "is_default", saved.IsDefault)
	return saved, nil
}

// SetDefault returns domain.ErrAddressNotFound when addressID is not one of the user's addresses.
func (m *Manager) SetDefault(ctx context.Context, addressID, userID int64) error {
	err := m.store.WithAddressTx(ctx, userID, func(tx repository.AddressTx) error {
		if err := owned(ctx, tx, addressID, userID); err != nil {
			return err
		}
		return makeDefault(ctx, tx, userID, addressID)
	})
	if err != nil {
		return fmt.Errorf("set default address: %w", err)
	}
	return nil
}

// Delete removes the address and, when it was the default, elects the most
// recently created remaining address.
func (m *Manager) Delete(ctx context.Context, addressID, userID int64) error {
	err := m.store.WithAddressTx(ctx, userID, func(tx repository.AddressTx) error {
		if err := owned(ctx, tx, addressID, userID); err != nil {
			return err
		}
		if err := tx.DeleteAddress(ctx, addressID); err != nil {
			return err
		}

		defaults, err := tx.CountDefaults(ctx, userID)
		if err != nil || defaults > 0 {
			return err
		}
		candidate, err := tx.MostRecentAddress(ctx, userID)
		if err != nil || candidate == nil {
			return err
		}
		m.log.Info("default address re-elected", "user_id", userID, "address_id", candidate.ID)
		return makeDefault(ctx, tx, userID, candidate.ID)
	})
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	return nil
}

// CheckInvariant reports ErrDefaultInvariant unless the user has no default
// with no addresses, or exactly one default otherwise.
func (m *Manager) CheckInvariant(ctx context.Context, userID int64) error {
	return m.store.WithAddressTx(ctx, userID, func(tx repository.AddressTx) error {
		total, err := tx.CountAddresses(ctx, userID)
		if err != nil {
			return err
		}
		defaults, err := tx.CountDefaults(ctx, userID)
		if err != nil {
			return err
		}
		if defaults > 1 || (total > 0 && defaults != 1) {
			return fmt.Errorf("%w: user %d has %d addresses and %d defaults", ErrDefaultInvariant, userID, total, defaults)
		}
		return nil
	})
}

func (m *Manager) List(ctx context.Context, userID int64) ([]domain.Address, error) {
	return m.store.ListAddresses(ctx, userID)
}

func owned(ctx context.Context, tx repository.AddressTx, addressID, userID int64) error {
	a, err := tx.GetAddress(ctx, addressID)
	if err != nil {
		return err
	}
	if a.UserID != userID {
		return domain.ErrAddressNotFound
	}
	return nil
}

func makeDefault(ctx context.Context, tx repository.AddressTx, userID, addressID int64) error {
	if err := tx.ClearDefaults(ctx, userID); err != nil {
		return err
	}
	return tx.MarkDefault(ctx, addressID)
}
