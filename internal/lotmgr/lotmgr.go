// Package lotmgr runs the daily near-expiry sweep: products entering their
// last week get their whole stock tagged as the near-expiry lot, and products
// past their date get that lot written off.
package lotmgr

import (
	"context"
	"log"
	"time"

	"freshcart/backend/internal/domain"
	"freshcart/backend/internal/pricing"
	"freshcart/backend/internal/store"
)

type Manager struct {
	repo store.Repository
	now  func() time.Time
}

func New(repo store.Repository, now func() time.Time) *Manager {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Manager{repo: repo, now: now}
}

// Sweep walks every product with an expiration date and applies the tag and
// purge rules. A failure on one product is logged and the sweep moves on.
func (m *Manager) Sweep(ctx context.Context) (domain.LotSweepResult, error) {
	ranAt := m.now()
	result := domain.LotSweepResult{RanAt: ranAt}

	products, err := m.repo.ListExpiringProducts(ctx)
	if err != nil {
		return result, err
	}

	for _, p := range products {
		d := pricing.DaysToExpiry(ranAt, *p.ExpirationDate)
		switch {
		case d >= 0 && d <= 7 && p.NearExpiryQty == 0:
			// Tag once; a partially sold near-expiry lot is never re-tagged.
			if p.StockQuantity == 0 {
				continue
			}
			if err := m.repo.UpdateProductLots(ctx, p.ID, p.StockQuantity, p.StockQuantity); err != nil {
				log.Printf("[lotmgr] WARN: tagging %s failed: %v", p.ID, err)
				result.Errors++
				continue
			}
			result.Tagged++
		case d < 0 && p.NearExpiryQty > 0:
			stock := p.StockQuantity - p.NearExpiryQty
			if stock < 0 {
				stock = 0
			}
			if err := m.repo.UpdateProductLots(ctx, p.ID, stock, 0); err != nil {
				log.Printf("[lotmgr] WARN: purging %s failed: %v", p.ID, err)
				result.Errors++
				continue
			}
			result.Purged++
		}
	}

	log.Printf("[lotmgr] sweep done: tagged=%d purged=%d errors=%d", result.Tagged, result.Purged, result.Errors)
	return result, nil
}

// Run sweeps once at startup and then daily at midnight UTC until the
// context is cancelled.
func (m *Manager) Run(ctx context.Context) {
	if _, err := m.Sweep(ctx); err != nil {
		log.Printf("[lotmgr] WARN: initial sweep failed: %v", err)
	}

	for {
		timer := time.NewTimer(m.untilNextSweep())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := m.Sweep(ctx); err != nil {
				log.Printf("[lotmgr] WARN: sweep failed: %v", err)
			}
		}
	}
}

// untilNextSweep measures the wait against the manager's own clock so a
// pinned clock schedules consistently.
func (m *Manager) untilNextSweep() time.Duration {
	now := m.now()
	return nextMidnightUTC(now).Sub(now)
}

func nextMidnightUTC(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
