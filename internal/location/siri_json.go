package location

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// decodeSiriJSON walks Siri?.ServiceDelivery.VehicleMonitoringDelivery[].VehicleActivity[].
// A VehicleStatus of completed/cancelled is reported as a sentinel record.
func decodeSiriJSON(b []byte, sentinel float64) ([]Position, int, error) {
	var root map[string]any
	if err := json.Unmarshal(b, &root); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	// optional top-level "Siri" wrapper
	if siri, ok := root["Siri"].(map[string]any); ok && siri != nil {
		root = siri
	}
	sd, _ := root["ServiceDelivery"].(map[string]any)
	vmdArr, _ := sd["VehicleMonitoringDelivery"].([]any)
	positions := make([]Position, 0, 16)
	dropped := 0
	for _, vmdAny := range vmdArr {
		vmd, _ := vmdAny.(map[string]any)
		vaArr, _ := vmd["VehicleActivity"].([]any)
		for _, vaAny := range vaArr {
			va, _ := vaAny.(map[string]any)
			mvj, _ := va["MonitoredVehicleJourney"].(map[string]any)
			if mvj == nil {
				dropped++
				continue
			}
			id := stringFrom(mvj["VehicleRef"])
			if id == "" {
				id = stringFromNested(mvj, "FramedVehicleJourneyRef", "DatedVehicleJourneyRef")
			}
			lat, lon := floatFromNested(mvj, "VehicleLocation", "Latitude"), floatFromNested(mvj, "VehicleLocation", "Longitude")
			if id == "" {
				dropped++
				continue
			}
			if finishedStatus(stringFrom(mvj["VehicleStatus"])) {
				positions = append(positions, Position{Key: id, Coordinate: [3]float64{lon, lat, sentinel}})
				continue
			}
			if lat == 0 && lon == 0 {
				dropped++
				continue
			}
			positions = append(positions, Position{Key: id, Coordinate: [3]float64{lon, lat, 0}})
		}
	}
	return positions, dropped, nil
}

func finishedStatus(s string) bool {
	switch strings.ToLower(s) {
	case "completed", "cancelled", "arrived":
		return true
	}
	return false
}

func stringFrom(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func stringFromNested(m map[string]any, k1, k2 string) string {
	m1, _ := m[k1].(map[string]any)
	return stringFrom(m1[k2])
}

func floatFromNested(m map[string]any, k1, k2 string) float64 {
	m1, _ := m[k1].(map[string]any)
	switch v := m1[k2].(type) {
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}
