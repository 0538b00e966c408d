package geo

import (
	"github.com/umahmood/haversine"
)

// WithinRadius reports whether the requester-supplied point lies within
// radiusKm of the property. The result feeds location_verified on the
// request as advisory metadata, not a hard gate.
func WithinRadius(reqLat, reqLng, propLat, propLng, radiusKm float64) bool {
	requester := haversine.Coord{Lat: reqLat, Lon: reqLng}
	property := haversine.Coord{Lat: propLat, Lon: propLng}

	_, km := haversine.Distance(requester, property)
	return km <= radiusKm
}
