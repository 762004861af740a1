package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ecofood/foodshare/internal/geo"
	"github.com/ecofood/foodshare/internal/model"
)

// ValidateListingName validates the display name of a donated item
func ValidateListingName(name string) error {
	trimmed := strings.TrimSpace(name)

	if trimmed == "" {
		return errors.New("name is required")
	}

	if len(trimmed) > 120 {
		return errors.New("name is too long (max 120 characters)")
	}

	return nil
}

func ValidateCategory(category string) error {
	if category == "" {
		return errors.New("category is required")
	}
	if !model.ValidCategory(category) {
		return fmt.Errorf("category must be %q or %q", model.CategoryVeg, model.CategoryNonVeg)
	}
	return nil
}

// ValidateQuantity accepts any non-empty free text ("10 units", "3 trays").
func ValidateQuantity(quantity string) error {
	trimmed := strings.TrimSpace(quantity)

	if trimmed == "" {
		return errors.New("quantity is required")
	}

	if len(trimmed) > 60 {
		return errors.New("quantity is too long (max 60 characters)")
	}

	return nil
}

// ValidateExpiry parses an RFC 3339 timestamp and rejects ones before the
// current second. The result is in UTC.
func ValidateExpiry(value string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, errors.New("expiry is required")
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errors.New("expiry must be an RFC 3339 timestamp")
	}

	// RFC 3339 input usually has whole seconds; now usually does not.
	if t.Before(now.Truncate(time.Second)) {
		return time.Time{}, errors.New("expiry is in the past")
	}

	return t.UTC(), nil
}

// ValidateCoordinates requires both coordinates and checks their ranges.
func ValidateCoordinates(lng, lat *float64) (geo.Point, error) {
	if lng == nil || lat == nil {
		return geo.Point{}, errors.New("location is required")
	}

	p := geo.Point{Lng: *lng, Lat: *lat}
	if !p.Valid() {
		return geo.Point{}, errors.New("location is out of range (longitude -180..180, latitude -90..90)")
	}

	return p, nil
}
