// Package geofence decides whether a geographic coordinate lies inside a
// configured polygon boundary. It is pure math with no side effects.
package geofence

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Polygon is an ordered sequence of vertices defining an allowed area.
// A polygon needs at least three vertices to enclose anything.
type Polygon []Point

// Valid reports whether the polygon has enough vertices to enclose an area.
func (p Polygon) Valid() bool {
	return len(p) >= 3
}

// Contains reports whether pt lies inside the polygon using the ray-casting
// algorithm: a horizontal ray from the point crosses the boundary an odd
// number of times iff the point is inside.
//
// A point exactly on an edge may be reported either way depending on
// floating-point rounding. Callers must not rely on edge behavior.
func (p Polygon) Contains(pt Point) bool {
	if !p.Valid() {
		return false
	}
	inside := false
	for i, j := 0, len(p)-1; i < len(p); j, i = i, i+1 {
		vi, vj := p[i], p[j]
		crosses := (vi.Lng > pt.Lng) != (vj.Lng > pt.Lng) &&
			pt.Lat < (vj.Lat-vi.Lat)*(pt.Lng-vi.Lng)/(vj.Lng-vi.Lng)+vi.Lat
		if crosses {
			inside = !inside
		}
	}
	return inside
}
