package core

import (
	"math"
	"strings"
)

// CityFromLocation derives a best-effort city token from a free-text location
// name by splitting on commas and taking the second-to-last trimmed segment
// ("Starbucks, Xinyi, Taipei" -> "Xinyi"). Names with fewer than two segments
// fall back to the first segment. Returns "" when nothing usable remains.
//
// This is a string heuristic, not an administrative-boundary lookup; entries
// whose names don't follow the "place, district, city" convention may map to
// an unexpected token.
func CityFromLocation(name string) string {
	parts := strings.Split(name, ",")
	if len(parts) >= 2 {
		if city := strings.TrimSpace(parts[len(parts)-2]); city != "" {
			return city
		}
	}
	return strings.TrimSpace(parts[0])
}

const earthRadiusKm = 6371.0

// DistanceKm returns the haversine great-circle distance in kilometers
// between two coordinate pairs.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
