package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/radflow/pkg/core/model"
	"github.com/jakechorley/radflow/pkg/db"
)

// SaveShift writes the shift row, appends its new bids and upserts its new auto-bids in one
// transaction
func (d *DB) SaveShift(ctx context.Context, change db.ShiftChange) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	s := change.Shift
	_, err = tx.Exec(ctx, `
		INSERT INTO shifts (
			id, shift_date, shift_type, location, subspecialty, duration_seconds, base_compensation,
			assignment_mode, status, priority, current_high_bid, current_high_bidder,
			assigned_radiologist, burden_score, smart_distribution_tried,
			created_at, updated_at, bidding_opened_at, bidding_ends_at, grace_used
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_high_bid = EXCLUDED.current_high_bid,
			current_high_bidder = EXCLUDED.current_high_bidder,
			assigned_radiologist = EXCLUDED.assigned_radiologist,
			burden_score = EXCLUDED.burden_score,
			smart_distribution_tried = EXCLUDED.smart_distribution_tried,
			updated_at = EXCLUDED.updated_at,
			bidding_opened_at = EXCLUDED.bidding_opened_at,
			bidding_ends_at = EXCLUDED.bidding_ends_at,
			grace_used = EXCLUDED.grace_used
	`,
		s.ID, s.Date, string(s.Type), s.Location, s.Subspecialty, int64(s.Duration/time.Second), s.BaseCompensation,
		string(s.Mode), string(s.Status), string(s.Priority), s.CurrentHighBid, s.CurrentHighBidder,
		s.AssignedRadiologist, s.BurdenScore, s.SmartDistributionTried,
		s.CreatedAt.UTC(), s.UpdatedAt.UTC(), utcPtr(s.BiddingOpenedAt), utcPtr(s.BiddingEndsAt), s.GraceUsed,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert shift %s: %w", s.ID, err)
	}

	if len(change.NewBids) > 0 {
		batch := &pgx.Batch{}
		for _, bid := range change.NewBids {
			batch.Queue(`
				INSERT INTO bids (id, shift_id, bidder_id, amount, placed_at, auto)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, bid.ID, bid.ShiftID, bid.BidderID, bid.Amount, bid.PlacedAt.UTC(), bid.Auto)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert bids for shift %s: %w", s.ID, err)
		}
	}

	for _, ab := range change.NewAutoBids {
		_, err := tx.Exec(ctx, `
			INSERT INTO auto_bids (shift_id, radiologist_id, ceiling, registered_at, seq)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (shift_id, radiologist_id) DO UPDATE SET ceiling = EXCLUDED.ceiling
		`, ab.ShiftID, ab.RadiologistID, ab.Ceiling, ab.RegisteredAt.UTC(), ab.Seq)
		if err != nil {
			return fmt.Errorf("failed to upsert auto-bid for shift %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit shift %s: %w", s.ID, err)
	}
	return nil
}

// ListShifts loads every shift with its bid history and auto-bids
func (d *DB) ListShifts(ctx context.Context) ([]model.Shift, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, shift_date, shift_type, location, subspecialty, duration_seconds, base_compensation,
			assignment_mode, status, priority, current_high_bid, current_high_bidder,
			assigned_radiologist, burden_score, smart_distribution_tried,
			created_at, updated_at, bidding_opened_at, bidding_ends_at, grace_used
		FROM shifts
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	defer rows.Close()

	var shifts []model.Shift
	index := make(map[string]int)
	for rows.Next() {
		var s model.Shift
		var shiftType, mode, status, priority string
		var durationSeconds int64
		if err := rows.Scan(
			&s.ID, &s.Date, &shiftType, &s.Location, &s.Subspecialty, &durationSeconds, &s.BaseCompensation,
			&mode, &status, &priority, &s.CurrentHighBid, &s.CurrentHighBidder,
			&s.AssignedRadiologist, &s.BurdenScore, &s.SmartDistributionTried,
			&s.CreatedAt, &s.UpdatedAt, &s.BiddingOpenedAt, &s.BiddingEndsAt, &s.GraceUsed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		s.Date = model.DateOf(s.Date)
		s.Type = model.ShiftType(shiftType)
		s.Mode = model.AssignmentMode(mode)
		s.Status = model.ShiftStatus(status)
		s.Priority = model.Priority(priority)
		s.Duration = time.Duration(durationSeconds) * time.Second
		index[s.ID] = len(shifts)
		shifts = append(shifts, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shifts: %w", err)
	}

	if err := d.loadBids(ctx, shifts, index); err != nil {
		return nil, err
	}
	if err := d.loadAutoBids(ctx, shifts, index); err != nil {
		return nil, err
	}
	return shifts, nil
}

func (d *DB) loadBids(ctx context.Context, shifts []model.Shift, index map[string]int) error {
	rows, err := d.pool.Query(ctx, `
		SELECT id, shift_id, bidder_id, amount, placed_at, auto
		FROM bids
		ORDER BY shift_id, placed_at
	`)
	if err != nil {
		return fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.ID, &b.ShiftID, &b.BidderID, &b.Amount, &b.PlacedAt, &b.Auto); err != nil {
			return fmt.Errorf("failed to scan bid: %w", err)
		}
		if i, ok := index[b.ShiftID]; ok {
			shifts[i].Bids = append(shifts[i].Bids, b)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating bids: %w", err)
	}
	return nil
}

func (d *DB) loadAutoBids(ctx context.Context, shifts []model.Shift, index map[string]int) error {
	rows, err := d.pool.Query(ctx, `
		SELECT shift_id, radiologist_id, ceiling, registered_at, seq
		FROM auto_bids
		ORDER BY shift_id, seq
	`)
	if err != nil {
		return fmt.Errorf("failed to query auto-bids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ab model.AutoBid
		if err := rows.Scan(&ab.ShiftID, &ab.RadiologistID, &ab.Ceiling, &ab.RegisteredAt, &ab.Seq); err != nil {
			return fmt.Errorf("failed to scan auto-bid: %w", err)
		}
		if i, ok := index[ab.ShiftID]; ok {
			shifts[i].AutoBids = append(shifts[i].AutoBids, ab)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating auto-bids: %w", err)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
