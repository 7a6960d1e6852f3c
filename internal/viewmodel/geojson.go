package viewmodel

import (
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection renders places, POIs and routes as GeoJSON for clients
// that do not speak the view model format.
func (vm ViewModel) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	add := func(kind string, i int, p Place) {
		f := geojson.NewFeature(p.Point())
		f.Properties["kind"] = kind
		f.Properties["index"] = i
		f.Properties["label"] = p.Label
		f.Properties["isPoi"] = p.Attributes.IsPOI
		if p.Attributes.PlaceID != "" {
			f.Properties["placeId"] = p.Attributes.PlaceID
		}
		fc.Append(f)
	}
	for i, p := range vm.Places {
		add("place", i, p)
	}
	for i, p := range vm.POIs {
		add("poi", i, p)
	}
	for _, r := range vm.Routes {
		if len(r.Coordinates) == 0 {
			continue
		}
		f := geojson.NewFeature(r.Coordinates)
		f.Properties["kind"] = "route"
		f.Properties["timestamp"] = r.Timestamp
		f.Properties["distance"] = r.Distance
		f.Properties["duration"] = r.Duration
		b := r.Bound()
		f.BBox = geojson.NewBBox(b)
		fc.Append(f)
	}
	return fc
}
