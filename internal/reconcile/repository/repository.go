package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealersync_backend/internal/reconcile"
	"dealersync_backend/platform/apperr"
)

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new derived-state repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// LoadState aggregates every derived table's row for the plate.
func (r *Repo) LoadState(ctx context.Context, plate string) (reconcile.DerivedState, error) {
	var state reconcile.DerivedState

	queue, err := r.getQueueEntry(ctx, plate)
	if err != nil {
		return state, err
	}
	state.Queue = queue

	stock, err := r.getStockEntry(ctx, plate)
	if err != nil {
		return state, err
	}
	state.Stock = stock

	photo, err := r.getPhotoEntry(ctx, plate)
	if err != nil {
		return state, err
	}
	state.Photo = photo

	sale, err := r.getSaleEntry(ctx, plate)
	if err != nil {
		return state, err
	}
	state.Sale = sale

	delivery, err := r.getDeliveryEntry(ctx, plate)
	if err != nil {
		return state, err
	}
	state.Delivery = delivery

	proposal, err := r.getPendingProposal(ctx, plate)
	if err != nil {
		return state, err
	}
	state.Proposal = proposal

	return state, nil
}

func (r *Repo) getQueueEntry(ctx context.Context, plate string) (*reconcile.QueueEntry, error) {
	query := `
		SELECT id, license_plate, model, received, received_at, created_at
		FROM incoming_vehicles
		WHERE license_plate = $1`

	var entry reconcile.QueueEntry
	err := r.pool.QueryRow(ctx, query, plate).Scan(
		&entry.ID, &entry.LicensePlate, &entry.Model, &entry.Received, &entry.ReceivedAt, &entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return &entry, nil
}

func (r *Repo) getStockEntry(ctx context.Context, plate string) (*reconcile.StockEntry, error) {
	query := `
		SELECT id, license_plate, model, vehicle_type, COALESCE(sold, false), created_at, updated_at
		FROM stock_vehicles
		WHERE license_plate = $1`

	var entry reconcile.StockEntry
	var vehicleType string
	err := r.pool.QueryRow(ctx, query, plate).Scan(
		&entry.ID, &entry.LicensePlate, &entry.Model, &vehicleType, &entry.Sold, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock entry: %w", err)
	}
	if vehicleType == "motorcycle" {
		entry.VehicleType = reconcile.VehicleTypeMotorcycle
	}
	return &entry, nil
}

func (r *Repo) getPhotoEntry(ctx context.Context, plate string) (*reconcile.PhotoEntry, error) {
	query := `
		SELECT id, license_plate, model, status, completed_since, reason, created_at, updated_at
		FROM photo_tracker
		WHERE license_plate = $1`

	var entry reconcile.PhotoEntry
	var status, reason string
	err := r.pool.QueryRow(ctx, query, plate).Scan(
		&entry.ID, &entry.LicensePlate, &entry.Model, &status, &entry.Status.Since, &reason,
		&entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get photo entry: %w", err)
	}

	entry.Status.State, err = reconcile.ParsePhotoState(status)
	if err != nil {
		return nil, fmt.Errorf("get photo entry: %w", err)
	}
	return &entry, nil
}

func (r *Repo) getSaleEntry(ctx context.Context, plate string) (*reconcile.SaleEntry, error) {
	query := `
		SELECT id, license_plate, sale_date, COALESCE(advisor, '')
		FROM sales_vehicles
		WHERE license_plate = $1
		ORDER BY sale_date DESC
		LIMIT 1`

	var entry reconcile.SaleEntry
	err := r.pool.QueryRow(ctx, query, plate).Scan(
		&entry.ID, &entry.LicensePlate, &entry.SaleDate, &entry.Advisor,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sale entry: %w", err)
	}
	return &entry, nil
}

func (r *Repo) getDeliveryEntry(ctx context.Context, plate string) (*reconcile.DeliveryEntry, error) {
	query := `
		SELECT id, license_plate, delivery_date
		FROM delivery_ledger
		WHERE license_plate = $1
		ORDER BY delivery_date DESC
		LIMIT 1`

	var entry reconcile.DeliveryEntry
	err := r.pool.QueryRow(ctx, query, plate).Scan(&entry.ID, &entry.LicensePlate, &entry.DeliveryDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get delivery entry: %w", err)
	}
	return &entry, nil
}

func (r *Repo) getPendingProposal(ctx context.Context, plate string) (*reconcile.DeliveryProposal, error) {
	query := `
		SELECT id, license_plate, delivery_date, remove_photo_entry, status, created_at
		FROM delivery_proposals
		WHERE license_plate = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1`

	var proposal reconcile.DeliveryProposal
	err := r.pool.QueryRow(ctx, query, plate, reconcile.ProposalPending).Scan(
		&proposal.ID, &proposal.LicensePlate, &proposal.DeliveryDate, &proposal.RemovePhotoEntry,
		&proposal.Status, &proposal.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pending proposal: %w", err)
	}
	return &proposal, nil
}

// ListPending retrieves pending delivery proposals oldest first.
func (r *Repo) ListPending(ctx context.Context, limit int) ([]reconcile.DeliveryProposal, error) {
	query := `
		SELECT id, license_plate, delivery_date, remove_photo_entry, status, created_at
		FROM delivery_proposals
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, reconcile.ProposalPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending proposals: %w", err)
	}
	defer rows.Close()

	var proposals []reconcile.DeliveryProposal
	for rows.Next() {
		var p reconcile.DeliveryProposal
		if err := rows.Scan(&p.ID, &p.LicensePlate, &p.DeliveryDate, &p.RemovePhotoEntry, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending proposals: %w", err)
	}
	return proposals, nil
}

// Dismiss marks a proposal dismissed without executing it.
func (r *Repo) Dismiss(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE delivery_proposals SET status = $1 WHERE id = $2 AND status = $3`

	tag, err := r.pool.Exec(ctx, query, reconcile.ProposalDismissed, id, reconcile.ProposalPending)
	if err != nil {
		return fmt.Errorf("dismiss proposal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("pending proposal not found")
	}
	return nil
}

// RecordRun persists one engine invocation for the audit reporter.
func (r *Repo) RecordRun(ctx context.Context, run EngineRun) error {
	query := `
		INSERT INTO engine_runs (id, license_plate, source, writes, drift, error, ran_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`

	id := run.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	_, err := r.pool.Exec(ctx, query, id, run.LicensePlate, run.Source, run.Writes, run.Drift, run.Error, run.RanAt)
	if err != nil {
		return fmt.Errorf("record engine run: %w", err)
	}
	return nil
}

// CountRunsSince reports how many engine runs completed after the cutoff.
func (r *Repo) CountRunsSince(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM engine_runs WHERE ran_at > $1`, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count engine runs: %w", err)
	}
	return count, nil
}

// UpsertHandler registers a handler, refreshing last_seen_at on repeats.
func (r *Repo) UpsertHandler(ctx context.Context, record HandlerRecord) error {
	query := `
		INSERT INTO engine_handlers (name, enabled, installed_at, last_seen_at, install_notes)
		VALUES ($1, $2, $3, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET enabled = EXCLUDED.enabled, last_seen_at = EXCLUDED.last_seen_at, install_notes = EXCLUDED.install_notes`

	_, err := r.pool.Exec(ctx, query, record.Name, record.Enabled, record.LastSeenAt, record.InstallNotes)
	if err != nil {
		return fmt.Errorf("upsert handler: %w", err)
	}
	return nil
}

// ListHandlers retrieves all registered handlers ordered by name.
func (r *Repo) ListHandlers(ctx context.Context) ([]HandlerRecord, error) {
	query := `
		SELECT name, enabled, installed_at, last_seen_at, COALESCE(install_notes, '')
		FROM engine_handlers
		ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list handlers: %w", err)
	}
	defer rows.Close()

	var records []HandlerRecord
	for rows.Next() {
		var rec HandlerRecord
		if err := rows.Scan(&rec.Name, &rec.Enabled, &rec.InstalledAt, &rec.LastSeenAt, &rec.InstallNotes); err != nil {
			return nil, fmt.Errorf("scan handler: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list handlers: %w", err)
	}
	return records, nil
}

// ListSoldWithPhotoEntries returns plates sold in stock that still carry a
// pending photo-tracker entry.
func (r *Repo) ListSoldWithPhotoEntries(ctx context.Context) ([]string, error) {
	query := `
		SELECT p.license_plate
		FROM photo_tracker p
		JOIN stock_vehicles s ON s.license_plate = p.license_plate
		WHERE s.sold = true AND p.status = 'pending'
		ORDER BY p.license_plate ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sold with photo entries: %w", err)
	}
	defer rows.Close()

	var plates []string
	for rows.Next() {
		var plate string
		if err := rows.Scan(&plate); err != nil {
			return nil, fmt.Errorf("scan plate: %w", err)
		}
		plates = append(plates, plate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sold with photo entries: %w", err)
	}
	return plates, nil
}

// DeletePhotoEntry removes a photo-tracker entry by plate.
func (r *Repo) DeletePhotoEntry(ctx context.Context, plate string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM photo_tracker WHERE license_plate = $1`, plate)
	if err != nil {
		return fmt.Errorf("delete photo entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("photo entry not found")
	}
	return nil
}

// CountQueuePending counts queue entries awaiting reception.
func (r *Repo) CountQueuePending(ctx context.Context) (int, error) {
	return r.countQuery(ctx, `SELECT COUNT(*) FROM incoming_vehicles WHERE received = false`, "count queue pending")
}

// CountStock counts stock entries.
func (r *Repo) CountStock(ctx context.Context) (int, error) {
	return r.countQuery(ctx, `SELECT COUNT(*) FROM stock_vehicles`, "count stock")
}

// CountStockSold counts stock entries marked sold.
func (r *Repo) CountStockSold(ctx context.Context) (int, error) {
	return r.countQuery(ctx, `SELECT COUNT(*) FROM stock_vehicles WHERE sold = true`, "count stock sold")
}

// CountPhotosPending counts photo-tracker entries still pending.
func (r *Repo) CountPhotosPending(ctx context.Context) (int, error) {
	return r.countQuery(ctx, `SELECT COUNT(*) FROM photo_tracker WHERE status = 'pending'`, "count photos pending")
}

// CountProposalsPending counts delivery proposals awaiting the cleanup path.
func (r *Repo) CountProposalsPending(ctx context.Context) (int, error) {
	return r.countQuery(ctx, `SELECT COUNT(*) FROM delivery_proposals WHERE status = 'pending'`, "count proposals pending")
}

// CountDelivered counts delivery ledger entries.
func (r *Repo) CountDelivered(ctx context.Context) (int, error) {
	return r.countQuery(ctx, `SELECT COUNT(*) FROM delivery_ledger`, "count delivered")
}

// CountStockAvailabilityDrift counts sold stock entries whose feed row says
// the vehicle is available again. The availability patterns come from the
// state dictionary; this query only passes them through.
func (r *Repo) CountStockAvailabilityDrift(ctx context.Context, availablePatterns []string) (int, error) {
	if len(availablePatterns) == 0 {
		return 0, nil
	}

	query := `
		SELECT COUNT(*)
		FROM stock_vehicles s
		JOIN feed_vehicles f ON f.license_plate = s.license_plate
		WHERE s.sold = true AND f.availability ILIKE ANY($1)`

	var count int
	if err := r.pool.QueryRow(ctx, query, availablePatterns).Scan(&count); err != nil {
		return 0, fmt.Errorf("count stock availability drift: %w", err)
	}
	return count, nil
}

// CountStockAbsentFromFeed counts stock entries whose plate no longer has a
// feed row. Internal state is never auto-deleted on feed absence, so these
// accumulate until someone looks.
func (r *Repo) CountStockAbsentFromFeed(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM stock_vehicles s
		LEFT JOIN feed_vehicles f ON f.license_plate = s.license_plate
		WHERE f.license_plate IS NULL`
	return r.countQuery(ctx, query, "count stock absent from feed")
}

// CountReservedPendingSync counts reserved feed rows still missing a sales
// record past the grace cutoff.
func (r *Repo) CountReservedPendingSync(ctx context.Context, reservedPatterns []string, cutoff time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM feed_vehicles f
		JOIN stock_vehicles s ON s.license_plate = f.license_plate
		LEFT JOIN sales_vehicles sv ON sv.license_plate = f.license_plate
		WHERE f.availability ILIKE ANY($1)
		  AND sv.license_plate IS NULL
		  AND s.created_at < $2`
	var count int
	if err := r.pool.QueryRow(ctx, query, reservedPatterns, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("count reserved pending sync: %w", err)
	}
	return count, nil
}

func (r *Repo) countQuery(ctx context.Context, query, op string) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}
