// File: internal/patterns/metrics.go
package patterns

import "math"

// Distance measures two points of the same dimension.
type Distance func(a, b []float64) float64

const earthRadiusKm = 6371.0088

// Haversine is the great-circle distance in kilometres between two
// [lat, lon] points given in degrees.
func Haversine(a, b []float64) float64 {
	lat1, lon1 := radians(a[0]), radians(a[1])
	lat2, lon2 := radians(b[0]), radians(b[1])

	dLat := lat2 - lat1
	dLon := lon2 - lon1
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// CircularHours is the distance between two hours of day on a 24h clock,
// so 23:00 and 01:00 are two hours apart.
func CircularHours(a, b []float64) float64 {
	d := math.Mod(math.Abs(a[0]-b[0]), 24)
	return math.Min(d, 24-d)
}

// StandardizedEuclidean returns a Euclidean metric over vectors scaled by
// the per-component standard deviation of points. Components with zero
// spread carry no information and are ignored.
func StandardizedEuclidean(points [][]float64) Distance {
	if len(points) == 0 {
		return func(a, b []float64) float64 { return 0 }
	}
	dims := len(points[0])
	inv := make([]float64, dims)
	for d := 0; d < dims; d++ {
		var mean float64
		for _, p := range points {
			mean += p[d]
		}
		mean /= float64(len(points))

		var variance float64
		for _, p := range points {
			diff := p[d] - mean
			variance += diff * diff
		}
		variance /= float64(len(points))
		if variance > 0 {
			inv[d] = 1 / math.Sqrt(variance)
		}
	}

	return func(a, b []float64) float64 {
		var sum float64
		for d := 0; d < dims; d++ {
			diff := (a[d] - b[d]) * inv[d]
			sum += diff * diff
		}
		return math.Sqrt(sum)
	}
}
