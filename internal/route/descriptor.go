// Package route submits computed routes to the taxi route service.
package route

import (
	"errors"

	"github.com/paulmach/orb"

	"taxitrack/internal/scope"
	"taxitrack/internal/viewmodel"
)

// ErrNoRoute is returned when a view model carries no usable route.
var ErrNoRoute = errors.New("view model has no route to submit")

// Descriptor is the body of a CreateTaxi request.
type Descriptor struct {
	Timestamp   int64          `json:"timestamp"`
	BBox        []float64      `json:"bbox"`
	Distance    float64        `json:"distance"`
	Duration    float64        `json:"duration"`
	Coordinates orb.LineString `json:"coordinates"`
}

// IdempotencyKey is the decimal timestamp. It never changes for a route, so
// every retry of a submission carries the same key.
func (d Descriptor) IdempotencyKey() string {
	return scope.KeyFor(d.Timestamp)
}

// FromViewModel builds the descriptor for the model's active route. A route
// without its own timestamp takes the model's; a missing bbox is derived from
// the coordinates.
func FromViewModel(vm viewmodel.ViewModel) (Descriptor, error) {
	r, ok := vm.ActiveRoute()
	if !ok {
		return Descriptor{}, ErrNoRoute
	}
	ts := r.Timestamp
	if ts == 0 {
		ts = vm.Timestamp
	}
	if ts == 0 {
		return Descriptor{}, errors.New("route has no timestamp")
	}
	d := Descriptor{
		Timestamp:   ts,
		Distance:    r.Distance,
		Duration:    r.Duration,
		Coordinates: append(orb.LineString(nil), r.Coordinates...),
	}
	if len(r.BBox) == 4 {
		d.BBox = append([]float64(nil), r.BBox...)
	} else if len(r.Coordinates) > 0 {
		b := r.Coordinates.Bound()
		d.BBox = []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
	}
	return d, nil
}
