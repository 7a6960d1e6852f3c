package location

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
)

// Minimal streaming extraction for SIRI VM XML (namespace tolerant via Name.Local)
func decodeSiriXML(b []byte, sentinel float64) ([]Position, int, error) {
	dec := xml.NewDecoder(bytes.NewReader(b))

	var (
		inSiri, inSD, inVMD, inVA, inMVJ, inVL bool
		curID, curStatus                       string
		curLat, curLon                         string
		positions                              []Position
		dropped                                int
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "Siri":
				inSiri = true
			case "ServiceDelivery":
				if inSiri {
					inSD = true
				}
			case "VehicleMonitoringDelivery":
				if inSD {
					inVMD = true
				}
			case "VehicleActivity":
				if inVMD {
					inVA = true
					curID, curStatus, curLat, curLon = "", "", "", ""
				}
			case "MonitoredVehicleJourney":
				if inVA {
					inMVJ = true
				}
			case "VehicleLocation":
				if inMVJ || inVA {
					inVL = true
				}
			case "VehicleRef", "VehicleStatus":
				if inMVJ || inVA {
					var v string
					if err := dec.DecodeElement(&v, &se); err == nil {
						if se.Name.Local == "VehicleRef" {
							curID = v
						} else {
							curStatus = v
						}
					}
				}
			case "Latitude", "Longitude":
				if inVL {
					var v string
					if err := dec.DecodeElement(&v, &se); err == nil {
						if se.Name.Local == "Latitude" {
							curLat = v
						} else {
							curLon = v
						}
					}
				}
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "VehicleLocation":
				inVL = false
			case "MonitoredVehicleJourney":
				inMVJ = false
			case "VehicleActivity":
				if !inVA {
					break
				}
				inVA = false
				if curID == "" {
					dropped++
					break
				}
				lat, lon, ok := parseLatLon(curLat, curLon)
				switch {
				case finishedStatus(curStatus):
					positions = append(positions, Position{Key: curID, Coordinate: [3]float64{lon, lat, sentinel}})
				case ok:
					positions = append(positions, Position{Key: curID, Coordinate: [3]float64{lon, lat, 0}})
				default:
					dropped++
				}
			case "VehicleMonitoringDelivery":
				inVMD = false
			case "ServiceDelivery":
				inSD = false
			case "Siri":
				inSiri = false
			}
		}
	}
	return positions, dropped, nil
}

func parseLatLon(lat, lon string) (float64, float64, bool) {
	lf, err1 := strconv.ParseFloat(lat, 64)
	if err1 != nil {
		return 0, 0, false
	}
	lo, err2 := strconv.ParseFloat(lon, 64)
	if err2 != nil {
		return 0, 0, false
	}
	return lf, lo, true
}
