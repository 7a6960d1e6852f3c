package viewmodel

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleModel() ViewModel {
	return ViewModel{
		Places: []Place{pickup, dropoff},
		POIs:   []Place{NewPOI(1, 1, "bar")},
		Routes: []Route{{
			Timestamp:   1000,
			BBox:        []float64{-121.89, 37.32, -121.88, 37.34},
			Distance:    500,
			Duration:    60,
			Coordinates: orb.LineString{{-121.889, 37.329}, {-121.886, 37.338}},
		}},
		Timestamp: 1000,
	}
}

func TestClone_SharesNoBackingArrays(t *testing.T) {
	orig := sampleModel()
	c := orig.Clone()
	assert.Equal(t, orig, c)

	c.Places[0].Label = "x"
	c.POIs[0].Label = "y"
	c.Routes[0].BBox[0] = 0
	c.Routes[0].Coordinates[0] = orb.Point{0, 0}
	c.Routes[0].Distance = 1

	assert.Equal(t, sampleModel(), orig)
}

func TestClone_NilSlicesBecomeEmpty(t *testing.T) {
	c := ViewModel{}.Clone()
	assert.NotNil(t, c.Places)
	assert.NotNil(t, c.POIs)
	assert.NotNil(t, c.Routes)

	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"places":[],"pois":[],"routes":[],"timestamp":0}`, string(b))
}

func TestRoute_KeyAndBound(t *testing.T) {
	r := sampleModel().Routes[0]
	assert.Equal(t, "1000", r.Key())
	assert.Equal(t, orb.Bound{Min: orb.Point{-121.89, 37.32}, Max: orb.Point{-121.88, 37.34}}, r.Bound())

	r.BBox = nil
	assert.Equal(t, orb.Bound{Min: orb.Point{-121.889, 37.329}, Max: orb.Point{-121.886, 37.338}}, r.Bound())
}

func TestViewModel_JSONShape(t *testing.T) {
	var vm ViewModel
	err := json.Unmarshal([]byte(`{
		"places":[{"lon":-121.88,"lat":37.32,"label":"a","attributes":{"isPoi":false}}],
		"pois":[],
		"routes":[{"timestamp":1000,"bbox":[1,2,3,4],"distance":500,"duration":60,"coordinates":[[1,2],[3,4,12.5]]}],
		"timestamp":1000
	}`), &vm)
	require.NoError(t, err)

	route, ok := vm.ActiveRoute()
	require.True(t, ok)
	assert.Equal(t, orb.LineString{{1, 2}, {3, 4}}, route.Coordinates)
	assert.Equal(t, 500.0, route.Distance)
	assert.Equal(t, "a", vm.Places[0].Label)

	_, ok = New().ActiveRoute()
	assert.False(t, ok)
}

func TestFeatureCollection(t *testing.T) {
	fc := sampleModel().FeatureCollection()
	require.Len(t, fc.Features, 4)

	assert.Equal(t, "place", fc.Features[0].Properties["kind"])
	assert.Equal(t, "poi", fc.Features[2].Properties["kind"])
	route := fc.Features[3]
	assert.Equal(t, "route", route.Properties["kind"])
	assert.Equal(t, int64(1000), route.Properties["timestamp"])
	assert.Equal(t, "LineString", route.Geometry.GeoJSONType())

	_, err := json.Marshal(fc)
	assert.NoError(t, err)
}
