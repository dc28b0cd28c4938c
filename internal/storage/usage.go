package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// Usage returns how much of resource a learner has consumed in the period
// starting at periodStart.
func (db *DB) Usage(ctx context.Context, userID, resource string, periodStart time.Time) (int64, error) {
	b := db.builder()
	query, args := b.Select("amount").
		From(b.Table("usage_counters")).
		Where(entsql.And(
			entsql.EQ("user_id", userID),
			entsql.EQ("resource", resource),
			entsql.EQ("period_start", utc(periodStart)),
		)).
		Query()

	var amount sql.NullInt64
	err := db.conn.QueryRowContext(ctx, query, args...).Scan(&amount)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to get usage of %s: %w", resource, err)
	}
	return amount.Int64, nil
}

// AddUsage increments a learner's usage of resource in a period and returns
// the new total.
func (db *DB) AddUsage(ctx context.Context, userID, resource string, periodStart time.Time, amount int64) (int64, error) {
	period := utc(periodStart)
	where := func() *entsql.Predicate {
		return entsql.And(
			entsql.EQ("user_id", userID),
			entsql.EQ("resource", resource),
			entsql.EQ("period_start", period),
		)
	}

	var total int64
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		insert := db.builder().Insert("usage_counters").
			Columns("user_id", "resource", "period_start", "amount").
			Values(userID, resource, period, 0).
			OnConflict(entsql.ConflictColumns("user_id", "resource", "period_start"), entsql.DoNothing())
		if _, err := exec(ctx, tx, insert); err != nil {
			return fmt.Errorf("failed to create usage counter for %s: %w", resource, err)
		}

		update := db.builder().Update("usage_counters").Add("amount", amount).Where(where())
		if _, err := exec(ctx, tx, update); err != nil {
			return fmt.Errorf("failed to add usage of %s: %w", resource, err)
		}

		b := db.builder()
		query, args := b.Select("amount").From(b.Table("usage_counters")).Where(where()).Query()
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
			return fmt.Errorf("failed to read usage of %s: %w", resource, err)
		}
		return nil
	})
	return total, err
}
