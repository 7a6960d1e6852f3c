package viewmodel

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"

	"taxitrack/internal/location"
	"taxitrack/internal/scope"
)

var (
	pickup  = NewPlace(-121.888771, 37.329079, "San Jose McEnery Convention Center")
	dropoff = NewPlace(-121.8863, 37.3382, "SAP Center")
	seed    = []Place{
		NewPOI(-121.8893, 37.3352, "Original Joe's"),
		NewPOI(-121.8904, 37.3317, "San Pedro Square"),
	}
)

func pos(key string, lon, lat, marker float64) location.Position {
	return location.Position{Key: key, Coordinate: [3]float64{lon, lat, marker}}
}

func TestMerge_UnscopedExcludesSentinel(t *testing.T) {
	p := NewPolicy(seed, location.DefaultSentinel)
	vm := New()

	out := p.Merge(&vm, scope.Unscoped, []location.Position{
		pos("v1", -121.89, 37.33, 5),
		pos("v2", -121.90, 37.34, -1),
	})

	assert.Equal(t, Outcome{Mode: ModeGlobal}, out)
	want := []Place{{Lon: -121.89, Lat: 37.33, Label: "v1", Attributes: Attributes{PlaceID: "v1"}}}
	if diff := cmp.Diff(want, vm.Places); diff != "" {
		t.Errorf("places mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_UnscopedKeepsResponseOrder(t *testing.T) {
	p := NewPolicy(nil, location.DefaultSentinel)
	vm := New()
	vm.Places = []Place{pickup, dropoff}

	positions := []location.Position{
		pos("c", 3, 3, 0),
		pos("x", 9, 9, -1),
		pos("a", 1, 1, 0),
		pos("b", 2, 2, 7),
	}
	p.Merge(&vm, scope.Unscoped, positions)

	var labels []string
	for _, pl := range vm.Places {
		labels = append(labels, pl.Label)
		assert.False(t, pl.Attributes.IsPOI)
	}
	assert.Equal(t, []string{"c", "a", "b"}, labels)
}

func TestMerge_UnscopedAllSentinelEmptiesPlaces(t *testing.T) {
	p := NewPolicy(nil, location.DefaultSentinel)
	vm := New()
	vm.Places = []Place{pickup, dropoff}

	p.Merge(&vm, scope.Unscoped, []location.Position{pos("x", 1, 1, -1)})
	assert.Empty(t, vm.Places)
}

func TestMerge_ScopedSplicesVehicle(t *testing.T) {
	p := NewPolicy(seed, location.DefaultSentinel)
	for _, prior := range [][]Place{
		{pickup, dropoff},
		{pickup, NewPlace(0, 0, "old"), dropoff},
	} {
		vm := New()
		vm.Places = prior

		out := p.Merge(&vm, scope.ScopedTo("1000"), []location.Position{pos("1000", -121.887, 37.331, 3)})

		assert.Equal(t, Outcome{Mode: ModeScoped}, out)
		want := []Place{pickup, VehiclePlace(pos("1000", -121.887, 37.331, 3)), dropoff}
		if diff := cmp.Diff(want, vm.Places); diff != "" {
			t.Errorf("places mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestMerge_ScopedPrefersMatchingKey(t *testing.T) {
	p := NewPolicy(nil, location.DefaultSentinel)
	vm := New()
	vm.Places = []Place{pickup, dropoff}

	p.Merge(&vm, scope.ScopedTo("1000"), []location.Position{
		pos("other", 1, 1, 0),
		pos("1000", 2, 2, 0),
	})
	assert.Equal(t, "1000", vm.Places[1].Label)
}

func TestMerge_ScopedSentinelCollapsesAndUnscopes(t *testing.T) {
	p := NewPolicy(seed, location.DefaultSentinel)
	vm := New()
	vm.Places = []Place{pickup, NewPlace(-121.887, 37.331, "1000"), dropoff}

	out := p.Merge(&vm, scope.ScopedTo("1000"), []location.Position{pos("1000", -121.887, 37.331, -1)})

	assert.Equal(t, Outcome{Mode: ModeScoped, Unscope: true}, out)
	assert.Equal(t, []Place{pickup, dropoff}, vm.Places)
}

func TestMerge_ScopedWithoutEndpointsUnscopes(t *testing.T) {
	p := NewPolicy(nil, location.DefaultSentinel)

	vm := New()
	vm.Places = []Place{pickup}
	out := p.Merge(&vm, scope.ScopedTo("1000"), []location.Position{pos("1000", 1, 1, 0)})
	assert.True(t, out.Unscope)
	assert.Equal(t, []Place{pickup}, vm.Places)

	vm = New()
	out = p.Merge(&vm, scope.ScopedTo("1000"), []location.Position{pos("1000", 1, 1, 0)})
	assert.True(t, out.Unscope)
	assert.Empty(t, vm.Places)
}

func TestMerge_ScopedNoRecordsLeavesPlaces(t *testing.T) {
	p := NewPolicy(seed, location.DefaultSentinel)
	vm := New()
	vm.Places = []Place{pickup, NewPlace(1, 1, "1000"), dropoff}

	out := p.Merge(&vm, scope.ScopedTo("1000"), nil)
	assert.False(t, out.Unscope)
	assert.Len(t, vm.Places, 3)
	assert.Equal(t, seed, vm.POIs)
}

func TestMerge_POIsAlwaysReplacedBySeed(t *testing.T) {
	p := NewPolicy(seed, location.DefaultSentinel)
	for _, s := range []scope.Scope{scope.Unscoped, scope.ScopedTo("1000")} {
		vm := New()
		vm.Places = []Place{pickup, dropoff}
		vm.POIs = []Place{NewPOI(0, 0, "stale"), NewPOI(1, 1, "stale2"), NewPOI(2, 2, "stale3")}

		p.Merge(&vm, s, []location.Position{pos("1000", 1, 1, 0)})
		if diff := cmp.Diff(seed, vm.POIs, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("%s: pois mismatch (-want +got):\n%s", s, diff)
		}
	}
}

func TestMerge_SeedIsolatedFromCaller(t *testing.T) {
	mine := []Place{NewPOI(1, 1, "a")}
	p := NewPolicy(mine, location.DefaultSentinel)
	mine[0].Label = "changed"

	vm := New()
	p.Merge(&vm, scope.Unscoped, nil)
	assert.Equal(t, "a", vm.POIs[0].Label)

	vm.POIs[0].Label = "mutated"
	vm2 := New()
	p.Merge(&vm2, scope.Unscoped, nil)
	assert.Equal(t, "a", vm2.POIs[0].Label)
}

func TestMerge_DoesNotWriteIntoPriorBackingArray(t *testing.T) {
	p := NewPolicy(nil, location.DefaultSentinel)
	shared := []Place{pickup, NewPlace(0, 0, "old"), dropoff}
	vm := New()
	vm.Places = shared

	p.Merge(&vm, scope.ScopedTo("1000"), []location.Position{pos("1000", 5, 5, 0)})
	assert.Equal(t, "old", shared[1].Label)
	assert.Equal(t, "1000", vm.Places[1].Label)
}
