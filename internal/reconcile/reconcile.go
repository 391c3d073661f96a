package reconcile

import (
	"time"

	feedrepo "dealersync_backend/internal/feed/repository"
)

// Reconcile computes the writes needed to bring the derived tables in line
// with one feed row. It is pure: no I/O, no clock reads. Callers execute the
// returned writes inside a single transaction scoped to the license plate.
//
// Rules are evaluated in precedence order, first match wins per concern:
//
//  1. unknown plate            -> create incoming-queue entry
//  2. received, no stock       -> create stock entry (reception cascade)
//  3. sold, not yet delivered  -> propose delivery transition (gated)
//  4. available but stock sold -> flip stock back + reset photos
//  5. stock without tracker    -> create photo-tracker entry
//  6. stale auto-completion    -> reset photos (drift repair)
//  7. evidence of real photos  -> auto-complete pending tracker
//
// A nil row means the vehicle vanished from the scrape; internal state is
// never auto-deleted, so no writes are emitted and the gap is left for the
// audit reporter.
//
// Calling Reconcile again with the state produced by applying its writes
// yields an empty write set.
func Reconcile(dict *StateDictionary, row *feedrepo.Row, state DerivedState, now time.Time) []Write {
	if row == nil {
		return nil
	}

	availability := dict.Parse(row.Availability)
	classification := Classify(*row)

	var writes []Write

	// Rule 1: a plate no internal table knows about enters the incoming
	// queue and nothing else. Stock and photo rows appear only after a
	// human confirms physical intake.
	if !state.knownInternally() {
		return append(writes, CreateQueueEntry{
			LicensePlate: row.LicensePlate,
			Model:        row.Model,
		})
	}

	// Rule 2: reception cascade. A received queue entry must have a stock
	// entry; the photo tracker follows via rule 5 on the same pass.
	if state.Queue != nil && state.Queue.Received && state.Stock == nil && state.Sale == nil {
		writes = append(writes, CreateStockEntry{
			LicensePlate: row.LicensePlate,
			Model:        row.Model,
			VehicleType:  DetectVehicleType(row.Model),
		})
		// The tracker create below keys off the stock entry this pass is
		// about to create.
		state.Stock = &StockEntry{LicensePlate: row.LicensePlate}
	}

	// Rule 3: sold vehicles leave stock for the delivery ledger. Deleting
	// stock is destructive, so this is only a proposal; the cleanup path
	// applies it when the destructive gate is enabled. A stale sold flag on
	// a vehicle the feed offers as available is drift for rule 4, not a
	// sale; no proposal may fire then.
	soldByFeed := availability == AvailabilitySold
	soldByStock := state.Stock != nil && state.Stock.Sold
	if (soldByFeed || soldByStock) && availability != AvailabilityAvailable &&
		state.Stock != nil && state.Delivery == nil && state.Proposal == nil {
		writes = append(writes, ProposeDelivery{
			LicensePlate:     row.LicensePlate,
			DeliveryDate:     deliveryDate(state, now),
			RemovePhotoEntry: state.Photo != nil && !state.Photo.Status.Completed(),
		})
	}

	// Rule 4: a vehicle the feed says is available cannot stay marked sold.
	// It also must be re-photographed, so a completed tracker goes back to
	// pending.
	if availability == AvailabilityAvailable && state.Stock != nil && state.Stock.Sold {
		writes = append(writes, SetStockAvailable{LicensePlate: row.LicensePlate})
		if state.Photo != nil && state.Photo.Status.Completed() {
			writes = append(writes, ResetPhotos{
				LicensePlate: row.LicensePlate,
				Reason:       "returned_to_available",
			})
		}
		return writes
	}

	// Rule 5: every stock entry gets a photo-tracker entry, seeded from the
	// classifier. Sold vehicles are exempt; they no longer need photos.
	if state.Stock != nil && state.Photo == nil && state.Sale == nil && !soldByFeed {
		return append(writes, CreatePhotoEntry{
			LicensePlate:   row.LicensePlate,
			Model:          row.Model,
			Classification: classification,
		})
	}

	if state.Photo == nil {
		return writes
	}

	// Rules 6 and 7 only ever touch engine-written completions; a manual
	// completion is an authoritative human fact.
	switch state.Photo.Status.State {
	case PhotoCompletedAuto:
		if !classification.Completed {
			writes = append(writes, ResetPhotos{
				LicensePlate: row.LicensePlate,
				Reason:       "no_real_photos",
			})
		}
	case PhotoPending:
		if classification.Completed {
			writes = append(writes, CompletePhotos{
				LicensePlate: row.LicensePlate,
				Reason:       classification.Reason,
				Since:        now,
			})
		}
	case PhotoCompletedManual:
		// Never touched.
	}

	return writes
}

// deliveryDate prefers the sales ledger sale date over the current time, so
// a backfilled delivery carries the real handover date.
func deliveryDate(state DerivedState, now time.Time) time.Time {
	if state.Sale != nil && !state.Sale.SaleDate.IsZero() {
		return state.Sale.SaleDate
	}
	return now
}

// IsDrift reports whether a write corrects a mismatch rather than advancing
// normal lifecycle, for drift counting in sweep reports.
func IsDrift(w Write) bool {
	switch w.(type) {
	case ResetPhotos, SetStockAvailable:
		return true
	default:
		return false
	}
}
