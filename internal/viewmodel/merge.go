package viewmodel

import (
	"taxitrack/internal/location"
	"taxitrack/internal/scope"
)

// Mode is how a feed refresh is folded into places.
type Mode string

const (
	// ModeGlobal replaces places with every live vehicle.
	ModeGlobal Mode = "global"
	// ModeScoped splices the tracked vehicle between pickup and dropoff.
	ModeScoped Mode = "scoped"
)

// Outcome describes what a merge did.
type Outcome struct {
	Mode Mode
	// Unscope is set when the tracked vehicle is no longer live and the
	// caller must drop the route scope.
	Unscope bool
}

// Policy is the scope-aware merge policy. Seed is the static POI set
// re-asserted on every refresh.
type Policy struct {
	Seed     []Place
	Sentinel float64
}

// NewPolicy copies seed so later changes by the caller do not leak in.
func NewPolicy(seed []Place, sentinel float64) Policy {
	return Policy{Seed: clonePlaces(seed), Sentinel: sentinel}
}

// Merge folds positions fetched under s into vm. vm must be a working copy
// owned by the caller; slices are replaced, never written in place.
func (p Policy) Merge(vm *ViewModel, s scope.Scope, positions []location.Position) Outcome {
	vm.POIs = clonePlaces(p.Seed)

	if !s.IsScoped() {
		places := make([]Place, 0, len(positions))
		for _, pos := range positions {
			if pos.IsSentinel(p.Sentinel) {
				continue
			}
			places = append(places, VehiclePlace(pos))
		}
		vm.Places = places
		return Outcome{Mode: ModeGlobal}
	}

	out := Outcome{Mode: ModeScoped}
	tracked, ok := pick(positions, s.Key())
	if !ok {
		// every record was malformed; nothing to say about the vehicle
		return out
	}
	if !tracked.IsSentinel(p.Sentinel) && len(vm.Places) >= 2 {
		vm.Places = []Place{vm.Places[0], VehiclePlace(tracked), vm.Places[len(vm.Places)-1]}
		return out
	}
	vm.Places = endpoints(vm.Places)
	out.Unscope = true
	return out
}

// VehiclePlace converts a live position into a place labelled with its key.
func VehiclePlace(pos location.Position) Place {
	return Place{
		Lon:        pos.Lon(),
		Lat:        pos.Lat(),
		Label:      pos.Key,
		Attributes: Attributes{PlaceID: pos.Key},
	}
}

func pick(positions []location.Position, key string) (location.Position, bool) {
	if len(positions) == 0 {
		return location.Position{}, false
	}
	for _, pos := range positions {
		if pos.Key == key {
			return pos, true
		}
	}
	return positions[0], true
}

func endpoints(places []Place) []Place {
	switch len(places) {
	case 0:
		return []Place{}
	case 1:
		return []Place{places[0]}
	default:
		return []Place{places[0], places[len(places)-1]}
	}
}
