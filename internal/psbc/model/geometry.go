package model

import (
	"fmt"

	"github.com/debrief/psbc/internal/psbc/errno"
	"github.com/debrief/psbc/pkg/errorx"
)

// GeometryType is the closed set of GeoJSON-style geometry kinds a Feature
// may carry (spec §3).
type GeometryType string

const (
	GeometryPoint           GeometryType = "Point"
	GeometryMultiPoint      GeometryType = "MultiPoint"
	GeometryLineString      GeometryType = "LineString"
	GeometryMultiLineString GeometryType = "MultiLineString"
	GeometryPolygon         GeometryType = "Polygon"
	GeometryMultiPolygon    GeometryType = "MultiPolygon"
)

// Geometry is a tagged GeoJSON-style geometry. Coordinates is left as a
// nested []any (decoded JSON numbers/arrays) rather than a fully typed
// union of [lon,lat], [][lon,lat], ... shapes, because the nesting depth
// varies by Type and every consumer needs only the total point count and
// raw coordinate access, not per-type traversal.
type Geometry struct {
	Type        GeometryType `json:"type"`
	Coordinates any          `json:"coordinates"`
}

// TotalPointCount returns the number of coordinate tuples in g, used to
// validate track timestamp length (spec invariant 3).
func (g Geometry) TotalPointCount() int {
	return countPoints(g.Coordinates, geometryDepth(g.Type))
}

// geometryDepth is how many levels of array nesting separate Coordinates
// from a single [lon,lat(,alt)] tuple for each geometry type.
func geometryDepth(t GeometryType) int {
	switch t {
	case GeometryPoint:
		return 0
	case GeometryMultiPoint, GeometryLineString:
		return 1
	case GeometryMultiLineString, GeometryPolygon:
		return 2
	case GeometryMultiPolygon:
		return 3
	default:
		return -1
	}
}

func countPoints(v any, depth int) int {
	if depth < 0 {
		return 0
	}
	if depth == 0 {
		if _, ok := v.([]any); ok {
			return 1
		}
		return 0
	}
	arr, ok := v.([]any)
	if !ok {
		return 0
	}
	total := 0
	for _, child := range arr {
		total += countPoints(child, depth-1)
	}
	return total
}

// Bounds walks g's coordinates regardless of nesting depth and returns the
// enclosing [west,south,east,north] box. ok is false for a geometry with no
// coordinate tuples.
func (g Geometry) Bounds() (box ViewportState, ok bool) {
	box = ViewportState{West: 180, South: 90, East: -180, North: -90}
	walkPoints(g.Coordinates, geometryDepth(g.Type), func(lon, lat float64) {
		ok = true
		if lon < box.West {
			box.West = lon
		}
		if lon > box.East {
			box.East = lon
		}
		if lat < box.South {
			box.South = lat
		}
		if lat > box.North {
			box.North = lat
		}
	})
	return box, ok
}

func walkPoints(v any, depth int, visit func(lon, lat float64)) {
	if depth < 0 {
		return
	}
	arr, ok := v.([]any)
	if !ok {
		return
	}
	if depth == 0 {
		if len(arr) < 2 {
			return
		}
		lon, okLon := arr[0].(float64)
		lat, okLat := arr[1].(float64)
		if okLon && okLat {
			visit(lon, lat)
		}
		return
	}
	for _, child := range arr {
		walkPoints(child, depth-1, visit)
	}
}

// Validate reports whether g's Type is one of the closed set.
func (g Geometry) Validate() error {
	switch g.Type {
	case GeometryPoint, GeometryMultiPoint, GeometryLineString,
		GeometryMultiLineString, GeometryPolygon, GeometryMultiPolygon:
		return nil
	default:
		return errorx.New(errno.InvalidParameter, fmt.Sprintf("unknown geometry type %q", g.Type), nil)
	}
}
