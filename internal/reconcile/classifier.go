package reconcile

import (
	"strings"

	feedrepo "dealersync_backend/internal/feed/repository"
)

// PhotoReason explains a classification outcome.
type PhotoReason int

const (
	// ReasonPending means no vehicle-specific photos exist yet.
	ReasonPending PhotoReason = iota
	// ReasonRealPhotos means at least one of slots 9-15 is populated.
	ReasonRealPhotos
	// ReasonMotorcycleExempt means the vehicle is a motorcycle, which the
	// photo pipeline does not cover. Preserved from the production rule;
	// see the open-question note in DESIGN.md.
	ReasonMotorcycleExempt
)

// String returns the snake_case reason name used in persistence and logs.
func (r PhotoReason) String() string {
	switch r {
	case ReasonRealPhotos:
		return "real_photos"
	case ReasonMotorcycleExempt:
		return "motorcycle_exempt"
	default:
		return "pending"
	}
}

// Classification is the result of classifying one feed row.
type Classification struct {
	Completed bool
	Reason    PhotoReason
	// Slot is the 1-based slot that proved real photography, 0 otherwise.
	Slot int
}

// firstRealPhotoSlot is the first 1-based slot a human-uploaded photo lands
// in. Slots below it are filled by the placeholder image pipeline and prove
// nothing about actual photography.
const firstRealPhotoSlot = 9

// Classify decides from a feed row whether real photography exists. It is
// the single source of truth for the placeholder-vs-real slot split; no
// other component may re-implement it.
func Classify(row feedrepo.Row) Classification {
	if DetectVehicleType(row.Model) == VehicleTypeMotorcycle {
		return Classification{Completed: true, Reason: ReasonMotorcycleExempt}
	}

	for slot := firstRealPhotoSlot; slot <= feedrepo.PhotoSlotCount; slot++ {
		if strings.TrimSpace(row.PhotoURLs[slot-1]) != "" {
			return Classification{Completed: true, Reason: ReasonRealPhotos, Slot: slot}
		}
	}

	return Classification{Completed: false, Reason: ReasonPending}
}
