// Package reconcile contains the vehicle state reconciliation engine: the
// photo-completeness classifier and the pure decision core that keeps the
// derived tables consistent with the scraped inventory feed.
package reconcile

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NormalizePlate uppercases and strips all whitespace from a license plate.
// The normalized plate is the natural key joining the feed and every derived
// table.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.Join(strings.Fields(plate), ""))
}

// Availability is the parsed meaning of a feed row's free-text label.
type Availability int

const (
	AvailabilityUnknown Availability = iota
	AvailabilityAvailable
	AvailabilityReserved
	AvailabilitySold
)

// String returns the lowercase name of the availability state.
func (a Availability) String() string {
	switch a {
	case AvailabilityAvailable:
		return "available"
	case AvailabilityReserved:
		return "reserved"
	case AvailabilitySold:
		return "sold"
	default:
		return "unknown"
	}
}

// StateDictionary maps free-text availability labels onto known states via
// case-insensitive substring matching. The defaults cover the labels the
// scrape has produced historically; deployments can override them with a
// YAML file because the feed vendor changes wording without notice.
type StateDictionary struct {
	Available []string `yaml:"available"`
	Reserved  []string `yaml:"reserved"`
	Sold      []string `yaml:"sold"`
}

// DefaultStateDictionary returns the built-in label substrings.
func DefaultStateDictionary() *StateDictionary {
	return &StateDictionary{
		Available: []string{"disponible", "available", "libre"},
		Reserved:  []string{"reservado", "reserved"},
		Sold:      []string{"vendido", "sold", "entregado"},
	}
}

// LoadStateDictionary reads a dictionary from a YAML file. An empty path
// returns the defaults.
func LoadStateDictionary(path string) (*StateDictionary, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultStateDictionary(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state dictionary: %w", err)
	}

	dict := DefaultStateDictionary()
	if err := yaml.Unmarshal(data, dict); err != nil {
		return nil, fmt.Errorf("parse state dictionary: %w", err)
	}
	return dict, nil
}

// Parse matches the label against the dictionary. Sold wins over reserved
// wins over available when a label matches more than one state, because the
// more terminal state is the safer interpretation.
func (d *StateDictionary) Parse(label string) Availability {
	lowered := strings.ToLower(strings.TrimSpace(label))
	if lowered == "" {
		return AvailabilityUnknown
	}
	if containsAny(lowered, d.Sold) {
		return AvailabilitySold
	}
	if containsAny(lowered, d.Reserved) {
		return AvailabilityReserved
	}
	if containsAny(lowered, d.Available) {
		return AvailabilityAvailable
	}
	return AvailabilityUnknown
}

// ReservedPatterns returns SQL ILIKE patterns for the reserved labels, for
// repositories that filter availability in the database. Parsing rules stay
// here; callers only pass the patterns through.
func (d *StateDictionary) ReservedPatterns() []string {
	return ilikePatterns(d.Reserved)
}

// AvailablePatterns returns SQL ILIKE patterns for the available labels.
func (d *StateDictionary) AvailablePatterns() []string {
	return ilikePatterns(d.Available)
}

// SoldPatterns returns SQL ILIKE patterns for the sold labels.
func (d *StateDictionary) SoldPatterns() []string {
	return ilikePatterns(d.Sold)
}

func ilikePatterns(substrings []string) []string {
	patterns := make([]string, 0, len(substrings))
	for _, s := range substrings {
		patterns = append(patterns, "%"+s+"%")
	}
	return patterns
}

func containsAny(label string, substrings []string) bool {
	for _, s := range substrings {
		if s != "" && strings.Contains(label, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// VehicleType classifies a vehicle from its model text.
type VehicleType int

const (
	VehicleTypeCar VehicleType = iota
	VehicleTypeMotorcycle
)

// String returns the lowercase name of the vehicle type.
func (t VehicleType) String() string {
	if t == VehicleTypeMotorcycle {
		return "motorcycle"
	}
	return "car"
}

var motorcycleMarkers = []string{"motorrad", "moto "}

// DetectVehicleType infers car vs motorcycle from the model text. The
// markers mirror what the scrape actually produces for two-wheelers.
func DetectVehicleType(model string) VehicleType {
	lowered := strings.ToLower(model)
	for _, marker := range motorcycleMarkers {
		if strings.Contains(lowered, marker) {
			return VehicleTypeMotorcycle
		}
	}
	return VehicleTypeCar
}

// PhotoState is the tagged photo-tracker state. It replaces the historical
// photos_completed/auto_completed boolean pair so precedence rules become
// exhaustive switches.
type PhotoState int

const (
	// PhotoPending means the vehicle still needs photography.
	PhotoPending PhotoState = iota
	// PhotoCompletedManual means a human marked the photos complete.
	// Manual completions are authoritative and never auto-corrected.
	PhotoCompletedManual
	// PhotoCompletedAuto means the engine marked the photos complete from
	// feed evidence. Auto completions are re-validated on every pass.
	PhotoCompletedAuto
)

// String returns the snake_case name used in persistence and logs.
func (s PhotoState) String() string {
	switch s {
	case PhotoCompletedManual:
		return "completed_manual"
	case PhotoCompletedAuto:
		return "completed_auto"
	default:
		return "pending"
	}
}

// ParsePhotoState converts a stored state string back to a PhotoState.
func ParsePhotoState(value string) (PhotoState, error) {
	switch value {
	case "pending":
		return PhotoPending, nil
	case "completed_manual":
		return PhotoCompletedManual, nil
	case "completed_auto":
		return PhotoCompletedAuto, nil
	default:
		return PhotoPending, fmt.Errorf("unknown photo state %q", value)
	}
}

// PhotoStatus pairs the tagged state with the completion timestamp.
type PhotoStatus struct {
	State PhotoState
	Since *time.Time
}

// Completed reports whether the status represents finished photography.
func (s PhotoStatus) Completed() bool {
	return s.State == PhotoCompletedManual || s.State == PhotoCompletedAuto
}
