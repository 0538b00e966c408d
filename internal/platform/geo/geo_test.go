package geo_test

import (
	"testing"

	"github.com/mysafehouse/access-api/internal/platform/geo"
)

func TestWithinRadius(t *testing.T) {
	// Tower Bridge and London Bridge are roughly 800m apart.
	towerLat, towerLng := 51.5055, -0.0754
	londonLat, londonLng := 51.5079, -0.0877

	if geo.WithinRadius(towerLat, towerLng, londonLat, londonLng, 0.5) {
		t.Error("points ~800m apart reported inside a 500m radius")
	}
	if !geo.WithinRadius(towerLat, towerLng, londonLat, londonLng, 1.0) {
		t.Error("points ~800m apart reported outside a 1km radius")
	}
	if !geo.WithinRadius(towerLat, towerLng, towerLat, towerLng, 0.5) {
		t.Error("identical points reported outside the radius")
	}
}
