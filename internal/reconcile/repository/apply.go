package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"dealersync_backend/internal/reconcile"
	"dealersync_backend/platform/apperr"
)

// Apply executes the writes inside one transaction. An advisory lock keyed
// on the plate serializes concurrent passes over the same vehicle, so the
// reactive consumer and a running sweep cannot interleave their writes.
// Destructive writes become delivery proposals instead of being executed.
func (r *Repo) Apply(ctx context.Context, plate string, writes []reconcile.Write) error {
	if len(writes) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin apply: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockPlate(ctx, tx, plate); err != nil {
		return err
	}

	for _, w := range writes {
		if err := applyWrite(ctx, tx, w); err != nil {
			return translateApplyErr(w.Op(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return translateApplyErr("commit", err)
	}
	return nil
}

// ApplyProposal executes a pending delivery proposal under the same
// per-plate lock: ledger insert, stock delete, optional tracker delete,
// proposal settled, all or nothing.
func (r *Repo) ApplyProposal(ctx context.Context, proposal reconcile.DeliveryProposal) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin apply proposal: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockPlate(ctx, tx, proposal.LicensePlate); err != nil {
		return err
	}

	// Claiming the proposal first makes double execution impossible even if
	// two cleanup runs race past the lock on different plates.
	tag, err := tx.Exec(ctx,
		`UPDATE delivery_proposals SET status = $1 WHERE id = $2 AND status = $3`,
		reconcile.ProposalApplied, proposal.ID, reconcile.ProposalPending,
	)
	if err != nil {
		return translateApplyErr("claim proposal", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("proposal already settled")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO delivery_ledger (id, license_plate, delivery_date)
		 VALUES ($1, $2, $3)`,
		uuid.New(), proposal.LicensePlate, proposal.DeliveryDate,
	)
	if err != nil {
		return translateApplyErr("insert delivery", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM stock_vehicles WHERE license_plate = $1`, proposal.LicensePlate)
	if err != nil {
		return translateApplyErr("delete stock", err)
	}

	if proposal.RemovePhotoEntry {
		_, err = tx.Exec(ctx,
			`DELETE FROM photo_tracker WHERE license_plate = $1 AND status = 'pending'`,
			proposal.LicensePlate,
		)
		if err != nil {
			return translateApplyErr("delete photo entry", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return translateApplyErr("commit proposal", err)
	}
	return nil
}

// lockPlate takes a transaction-scoped advisory lock on the plate. The lock
// releases automatically at commit or rollback.
func lockPlate(ctx context.Context, tx pgx.Tx, plate string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, plate); err != nil {
		return fmt.Errorf("lock plate %s: %w", plate, err)
	}
	return nil
}

func applyWrite(ctx context.Context, tx pgx.Tx, write reconcile.Write) error {
	switch w := write.(type) {
	case reconcile.CreateQueueEntry:
		_, err := tx.Exec(ctx,
			`INSERT INTO incoming_vehicles (id, license_plate, model, received)
			 VALUES ($1, $2, $3, false)
			 ON CONFLICT (license_plate) DO NOTHING`,
			uuid.New(), w.LicensePlate, w.Model,
		)
		return err

	case reconcile.CreateStockEntry:
		_, err := tx.Exec(ctx,
			`INSERT INTO stock_vehicles (id, license_plate, model, vehicle_type, sold)
			 VALUES ($1, $2, $3, $4, false)
			 ON CONFLICT (license_plate) DO NOTHING`,
			uuid.New(), w.LicensePlate, w.Model, w.VehicleType.String(),
		)
		return err

	case reconcile.SetStockAvailable:
		_, err := tx.Exec(ctx,
			`UPDATE stock_vehicles SET sold = false, updated_at = now() WHERE license_plate = $1`,
			w.LicensePlate,
		)
		return err

	case reconcile.CreatePhotoEntry:
		status := reconcile.PhotoPending
		if w.Classification.Completed {
			status = reconcile.PhotoCompletedAuto
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO photo_tracker (id, license_plate, model, status, completed_since, reason)
			 VALUES ($1, $2, $3, $4, CASE WHEN $4 <> 'pending' THEN now() END, $5)
			 ON CONFLICT (license_plate) DO NOTHING`,
			uuid.New(), w.LicensePlate, w.Model, status.String(), w.Classification.Reason.String(),
		)
		return err

	case reconcile.ResetPhotos:
		// Drift repair never overrides a manual completion; a return to
		// available resets the tracker whatever its state, because the
		// vehicle genuinely needs photographing again.
		_, err := tx.Exec(ctx,
			`UPDATE photo_tracker
			 SET status = 'pending', completed_since = NULL, reason = $2, updated_at = now()
			 WHERE license_plate = $1 AND (status <> 'completed_manual' OR $2 = 'returned_to_available')`,
			w.LicensePlate, w.Reason,
		)
		return err

	case reconcile.CompletePhotos:
		_, err := tx.Exec(ctx,
			`UPDATE photo_tracker
			 SET status = 'completed_auto', completed_since = $2, reason = $3, updated_at = now()
			 WHERE license_plate = $1 AND status = 'pending'`,
			w.LicensePlate, w.Since, w.Reason.String(),
		)
		return err

	case reconcile.ProposeDelivery:
		_, err := tx.Exec(ctx,
			`INSERT INTO delivery_proposals (id, license_plate, delivery_date, remove_photo_entry, status)
			 SELECT $1, $2, $3, $4, $5
			 WHERE NOT EXISTS (
			 	SELECT 1 FROM delivery_proposals WHERE license_plate = $2 AND status = $5
			 )`,
			uuid.New(), w.LicensePlate, w.DeliveryDate, w.RemovePhotoEntry, reconcile.ProposalPending,
		)
		return err

	default:
		return fmt.Errorf("unsupported write %s", write.Op())
	}
}

// translateApplyErr maps concurrent-update failures onto apperr.Conflict so
// the service retry loop can distinguish them from permanent errors.
func translateApplyErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return apperr.Wrap(apperr.KindConflict, fmt.Sprintf("apply %s: concurrent update", op), err)
		}
	}
	return fmt.Errorf("apply %s: %w", op, err)
}
