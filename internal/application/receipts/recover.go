package receipts

import (
	"context"
	"errors"
	"fmt"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/receipt"
)

// Recover re-derives a receipt's lookup URL from the code printed on its
// stored photo. The decoded payload goes through the same normalizer as a
// live scan, so both paths converge on the same URL. The recovered URL must
// resolve to the receipt's own identity.
func (s *Service) Recover(ctx context.Context, id string) (*receipt.Receipt, error) {
	if s.photos == nil || s.decoder == nil {
		return nil, errors.New("identity recovery is not configured")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	existing, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if existing.PhotoPath == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoPhoto, id)
	}

	img, err := s.photos.Load(*existing.PhotoPath)
	if err != nil {
		return nil, err
	}
	payload, err := s.decoder.Decode(img)
	if err != nil {
		return nil, err
	}
	u, err := s.normalizer.Normalize(payload)
	if err != nil {
		return nil, err
	}
	if s.identity(u) != id {
		s.logger.Error("recovered code belongs to another receipt", "receipt_id", id, "url", u.String())
		return nil, fmt.Errorf("%w: photo of %s decodes to %s", receipt.ErrIdentityConflict, id, u.String())
	}

	if existing.SourceURL == u.String() {
		s.logger.Debug("source url already current", "receipt_id", id)
		return existing, nil
	}

	next := existing.Clone()
	next.SourceURL = u.String()
	next.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateReceipt(ctx, next); err != nil {
		return nil, err
	}

	s.logger.Info("recovered source url", "receipt_id", id, "url", next.SourceURL)
	s.notifier.Publish()
	return next, nil
}
