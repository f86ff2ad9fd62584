// File: internal/patterns/dbscan.go
package patterns

const (
	unvisited = -2
	noise     = -1
)

// DBSCAN labels each point with a cluster index starting at 0, or -1 for
// noise. A point is core when at least minPts other points lie within eps.
// Clusters grow through core points; border points take the cluster of the
// first core point that reaches them. Labels depend only on input order.
func DBSCAN(points [][]float64, eps float64, minPts int, dist Distance) (labels []int, clusters int) {
	n := len(points)
	labels = make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	neighbours := func(i int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if j != i && dist(points[i], points[j]) <= eps {
				out = append(out, j)
			}
		}
		return out
	}

	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		seeds := neighbours(i)
		if len(seeds) < minPts {
			labels[i] = noise
			continue
		}

		cluster := clusters
		clusters++
		labels[i] = cluster

		queue := append([]int(nil), seeds...)
		for k := 0; k < len(queue); k++ {
			j := queue[k]
			if labels[j] == noise {
				// Former noise reached from a core point becomes a border point.
				labels[j] = cluster
				continue
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			if next := neighbours(j); len(next) >= minPts {
				queue = append(queue, next...)
			}
		}
	}
	return labels, clusters
}
