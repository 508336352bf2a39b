package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/repledger/backend/internal/apperr"
	"github.com/repledger/backend/internal/ledger"
	"github.com/repledger/backend/internal/models"
)

// Authority decides who may review requests. The ledger's isOrganizer answer is
// authoritative; an event with an assigned organizer narrows it to that wallet.
type Authority struct {
	ledger ledger.Client
}

func NewAuthority(l ledger.Client) *Authority {
	return &Authority{ledger: l}
}

// Organizer returns the canonical form of wallet if it holds organizer authority.
func (a *Authority) Organizer(ctx context.Context, wallet string) (string, error) {
	w, err := a.ledger.NormalizeWallet(wallet)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidWallet) {
			return "", apperr.Authorization("wallet %q is not a valid address", wallet)
		}
		return "", err
	}
	ok, err := a.ledger.IsOrganizer(ctx, w)
	if err != nil {
		return "", fmt.Errorf("check organizer %s: %w", w, err)
	}
	if !ok {
		return "", apperr.Authorization("wallet %s is not an organizer", w)
	}
	return w, nil
}

// CanDecide checks the per-event assignment. ev may be nil for requests whose
// event is no longer in the directory.
func (a *Authority) CanDecide(organizer string, ev *models.Event) error {
	if ev == nil || ev.OrganizerWallet == nil || *ev.OrganizerWallet == "" {
		return nil
	}
	assigned, err := a.ledger.NormalizeWallet(*ev.OrganizerWallet)
	if err != nil {
		return fmt.Errorf("event %s has an invalid organizer wallet: %w", ev.EventID, err)
	}
	if assigned != organizer {
		return apperr.Authorization("event %s is assigned to another organizer", ev.EventID)
	}
	return nil
}

func (a *Authority) NormalizeWallet(wallet string) (string, error) {
	w, err := a.ledger.NormalizeWallet(wallet)
	if err != nil {
		return "", apperr.Validation("invalid wallet %q", wallet)
	}
	return w, nil
}
