// Package viewmodel holds the map view model shared with the renderer and the
// merge policy that folds feed refreshes into it.
package viewmodel

import (
	"github.com/paulmach/orb"

	"taxitrack/internal/scope"
)

// Attributes are the optional place properties the renderer styles on.
type Attributes struct {
	PlaceID string `json:"placeId,omitempty"`
	IsPOI   bool   `json:"isPoi"`
}

// Place is an immutable labelled coordinate.
type Place struct {
	Lon        float64    `json:"lon"`
	Lat        float64    `json:"lat"`
	Label      string     `json:"label"`
	Attributes Attributes `json:"attributes"`
}

// NewPlace returns a plain (non-POI) place.
func NewPlace(lon, lat float64, label string) Place {
	return Place{Lon: lon, Lat: lat, Label: label}
}

// NewPOI returns a place flagged as a point of interest.
func NewPOI(lon, lat float64, label string) Place {
	return Place{Lon: lon, Lat: lat, Label: label, Attributes: Attributes{IsPOI: true}}
}

func (p Place) Point() orb.Point { return orb.Point{p.Lon, p.Lat} }

// Route is a computed route as produced by the external router.
type Route struct {
	// Timestamp is the creation instant; it is both the idempotency key and
	// the scope key once the route is submitted.
	Timestamp   int64          `json:"timestamp"`
	BBox        []float64      `json:"bbox,omitempty"`
	Distance    float64        `json:"distance"`
	Duration    float64        `json:"duration"`
	Coordinates orb.LineString `json:"coordinates"`
}

// Key is the textual scope key of the route.
func (r Route) Key() string { return scope.KeyFor(r.Timestamp) }

// Bound returns the bbox if the router supplied a 4-element one, otherwise
// the bound of the coordinates.
func (r Route) Bound() orb.Bound {
	if len(r.BBox) == 4 {
		return orb.Bound{
			Min: orb.Point{r.BBox[0], r.BBox[1]},
			Max: orb.Point{r.BBox[2], r.BBox[3]},
		}
	}
	return r.Coordinates.Bound()
}

func (r Route) clone() Route {
	out := r
	if r.BBox != nil {
		out.BBox = append([]float64(nil), r.BBox...)
	}
	if r.Coordinates != nil {
		out.Coordinates = append(orb.LineString(nil), r.Coordinates...)
	}
	return out
}

// ViewModel is the structure the renderer draws. Places holds pickup,
// optional live vehicle and dropoff while a route is active, or the global
// vehicle list otherwise.
type ViewModel struct {
	Places    []Place `json:"places"`
	POIs      []Place `json:"pois"`
	Routes    []Route `json:"routes"`
	Timestamp int64   `json:"timestamp"`
}

// New returns an empty view model with non-nil slices.
func New() ViewModel {
	return ViewModel{Places: []Place{}, POIs: []Place{}, Routes: []Route{}}
}

// Clone returns a deep copy sharing no backing arrays with vm.
func (vm ViewModel) Clone() ViewModel {
	out := ViewModel{
		Places:    clonePlaces(vm.Places),
		POIs:      clonePlaces(vm.POIs),
		Routes:    make([]Route, len(vm.Routes)),
		Timestamp: vm.Timestamp,
	}
	for i, r := range vm.Routes {
		out.Routes[i] = r.clone()
	}
	return out
}

// ActiveRoute returns the first route, which is the one the engine tracks.
func (vm ViewModel) ActiveRoute() (Route, bool) {
	if len(vm.Routes) == 0 {
		return Route{}, false
	}
	return vm.Routes[0], true
}

func clonePlaces(in []Place) []Place {
	out := make([]Place, len(in))
	copy(out, in)
	return out
}
