package priceapi

import (
	"context"
	"log/slog"

	"allblue-backend/lib/pricestore"
	"allblue-backend/lib/timezone"
)

// trend computes the signed percentage change of the fresh prices against
// the most recent snapshot at or before now - windowDays. A missing or
// non-positive baseline yields 0 for that currency: new entities simply
// have no trend yet, and a zero baseline must never divide. Ledger read
// failures degrade to no trend rather than failing the price request.
func (s Service) trend(ctx context.Context, kind pricestore.Kind, key string, freshEUR, freshUSD float64) (pctEUR, pctUSD float64) {
	cutoff := timezone.Date(s.now().AddDate(0, 0, -s.windowDays))

	baseline, ok, err := s.store.BaselineAt(ctx, kind, key, cutoff)
	if err != nil {
		slog.WarnContext(ctx, "failed to read trend baseline", "key", key, "err", err)
		return 0, 0
	}
	if !ok {
		return 0, 0
	}

	return pctChange(freshEUR, baseline.EUR), pctChange(freshUSD, baseline.USD)
}

func pctChange(fresh, old float64) float64 {
	if old <= 0 {
		return 0
	}
	return ((fresh - old) / old) * 100
}
