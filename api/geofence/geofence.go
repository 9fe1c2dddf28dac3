// Package geofence decides whether a reported position falls inside any of the
// configured access regions.
//
// Polygons are rings of (longitude, latitude) vertices. Containment uses the
// even-odd ray casting rule evaluated per fence; a point inside any fence is
// inside overall. Points lying exactly on an edge or vertex may land on either
// side and callers must not depend on the outcome.
package geofence

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrInvalidPolygon     = errors.New("polygon needs at least 3 distinct vertices")
)

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Vertex is a [lng, lat] pair, the storage order of fence rings.
type Vertex [2]float64

func (v Vertex) Lng() float64 { return v[0] }
func (v Vertex) Lat() float64 { return v[1] }

type Fence struct {
	ID      uint
	Name    string
	Polygon []Vertex
}

type Match struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// Result separates "nothing configured" (TotalFences == 0) from "outside every
// fence" (TotalFences > 0, no matches). Both report Inside == false.
type Result struct {
	Inside      bool    `json:"isInside"`
	Matching    []Match `json:"geofences"`
	TotalFences int     `json:"totalFences"`
}

func (r Result) NoFencesConfigured() bool {
	return r.TotalFences == 0
}

func (p Point) Validate() error {
	if !finite(p.Lat) || !finite(p.Lng) {
		return fmt.Errorf("%w: lat=%v lng=%v", ErrInvalidCoordinates, p.Lat, p.Lng)
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: lat=%v lng=%v out of range", ErrInvalidCoordinates, p.Lat, p.Lng)
	}
	return nil
}

// IsInside evaluates p against every fence in order. An invalid point returns
// ErrInvalidCoordinates together with an outside result.
func IsInside(p Point, fences []Fence) (Result, error) {
	result := Result{Matching: []Match{}, TotalFences: len(fences)}
	if err := p.Validate(); err != nil {
		return result, err
	}
	for _, f := range fences {
		if Contains(f.Polygon, p) {
			result.Matching = append(result.Matching, Match{ID: f.ID, Name: f.Name})
		}
	}
	result.Inside = len(result.Matching) > 0
	return result, nil
}

// Contains reports whether p is inside the ring. Rings with fewer than three
// vertices contain nothing.
func Contains(ring []Vertex, p Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	x, y := p.Lng, p.Lat
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lng(), ring[i].Lat()
		xj, yj := ring[j].Lng(), ring[j].Lat()
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// NormalizeRing validates a ring and returns it explicitly closed.
func NormalizeRing(ring []Vertex) ([]Vertex, error) {
	distinct := make(map[Vertex]struct{}, len(ring))
	for _, v := range ring {
		if !finite(v.Lng()) || !finite(v.Lat()) ||
			v.Lat() < -90 || v.Lat() > 90 || v.Lng() < -180 || v.Lng() > 180 {
			return nil, fmt.Errorf("%w: vertex %v", ErrInvalidCoordinates, v)
		}
		distinct[v] = struct{}{}
	}
	if len(distinct) < 3 {
		return nil, ErrInvalidPolygon
	}
	closed := make([]Vertex, len(ring), len(ring)+1)
	copy(closed, ring)
	if closed[0] != closed[len(closed)-1] {
		closed = append(closed, closed[0])
	}
	return closed, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
