package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/okxbot/internal/domain"
)

// SyncService refreshes locally tracked open positions against the
// exchange's live state. Sync is read-only towards the exchange: it never
// opens or closes anything, only mends local drift in the mutable fields.
type SyncService struct {
	exchange  Exchange
	positions domain.PositionStore
	prices    domain.PriceCache
	logger    *slog.Logger
}

// NewSyncService creates a SyncService.
func NewSyncService(exchange Exchange, positions domain.PositionStore, prices domain.PriceCache, logger *slog.Logger) *SyncService {
	return &SyncService{
		exchange:  exchange,
		positions: positions,
		prices:    prices,
		logger:    logger.With(slog.String("component", "sync")),
	}
}

// Sync fetches the exchange's live positions once and applies each matching
// snapshot to the corresponding locally open position. A nil or empty symbol
// list syncs every open position. Exchange records with no local
// counterpart are ignored; local positions absent from the exchange are left
// untouched.
func (s *SyncService) Sync(ctx context.Context, symbols []string) error {
	open, err := s.openPositions(ctx, symbols)
	if err != nil {
		return fmt.Errorf("sync: list open positions: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	snaps, err := s.exchange.Positions(ctx, "")
	if err != nil {
		return fmt.Errorf("sync: fetch live positions: %w", err)
	}
	bySymbol := make(map[string][]domain.PositionSnapshot, len(snaps))
	for _, snap := range snaps {
		bySymbol[snap.Symbol] = append(bySymbol[snap.Symbol], snap)
	}

	now := time.Now().UTC()
	var synced int
	for i := range open {
		pos := open[i]
		snap, ok := matchSnapshot(pos, bySymbol[pos.Symbol])
		if !ok {
			continue
		}

		pos.AdoptPositionID(snap.PositionID)
		if !pos.ApplySyncSnapshot(snap, now) {
			continue
		}
		if err := s.positions.Update(ctx, pos); err != nil {
			s.logger.WarnContext(ctx, "sync: persist failed",
				slog.String("position_id", pos.PositionID),
				slog.String("error", err.Error()))
			continue
		}
		synced++

		if s.prices != nil {
			if err := s.prices.SetPrice(ctx, pos.Symbol, snap.MarkPrice, now); err != nil {
				s.logger.WarnContext(ctx, "sync: price cache write failed",
					slog.String("symbol", pos.Symbol),
					slog.String("error", err.Error()))
			}
		}
	}

	s.logger.DebugContext(ctx, "sync: completed",
		slog.Int("open", len(open)),
		slog.Int("synced", synced),
	)
	return nil
}

// Run executes Sync on a fixed interval until the context is cancelled.
func (s *SyncService) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sync(ctx, nil); err != nil {
				s.logger.WarnContext(ctx, "sync: pass failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

func (s *SyncService) openPositions(ctx context.Context, symbols []string) ([]domain.Position, error) {
	if len(symbols) == 0 {
		return s.positions.ListOpen(ctx)
	}
	var out []domain.Position
	for _, sym := range symbols {
		open, err := s.positions.ListOpenBySymbol(ctx, sym)
		if err != nil {
			return nil, err
		}
		out = append(out, open...)
	}
	return out, nil
}

// matchSnapshot pairs a local position with a live exchange record. An exact
// position id match wins; a placeholder-id position matches on direction so
// sync can adopt the real id.
func matchSnapshot(pos domain.Position, snaps []domain.PositionSnapshot) (domain.PositionSnapshot, bool) {
	for _, snap := range snaps {
		if snap.PositionID != "" && snap.PositionID == pos.PositionID {
			return snap, true
		}
	}
	if domain.IsPlaceholderPositionID(pos.PositionID) {
		for _, snap := range snaps {
			if sameDirection(pos.Type, snap.PosSide, snap.Size) {
				return snap, true
			}
		}
	}
	return domain.PositionSnapshot{}, false
}

func sameDirection(t domain.PositionType, side domain.PosSide, size decimal.Decimal) bool {
	switch side {
	case domain.PosSideLong:
		return t == domain.PositionTypeLong
	case domain.PosSideShort:
		return t == domain.PositionTypeShort
	default:
		// Net mode encodes direction in the sign of the size.
		if t == domain.PositionTypeLong {
			return size.Sign() > 0
		}
		return size.Sign() < 0
	}
}
