package location

import (
	"fmt"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// decodeGTFSRT reads a GTFS-RT FeedMessage. The vehicle id is the record
// key, current_stop_sequence is the marker, and deleted entities become
// sentinel records.
func decodeGTFSRT(body []byte, sentinel float64) ([]Position, int, error) {
	var feed gtfs.FeedMessage
	if err := proto.Unmarshal(body, &feed); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	positions := make([]Position, 0, len(feed.Entity))
	dropped := 0
	for _, ent := range feed.Entity {
		if ent == nil || ent.Vehicle == nil {
			dropped++
			continue
		}
		vp := ent.Vehicle
		key := vp.GetVehicle().GetId()
		if key == "" {
			key = ent.GetId()
		}
		if key == "" {
			dropped++
			continue
		}
		if ent.GetIsDeleted() {
			positions = append(positions, Position{
				Key:        key,
				Coordinate: [3]float64{float64(vp.GetPosition().GetLongitude()), float64(vp.GetPosition().GetLatitude()), sentinel},
			})
			continue
		}
		if vp.Position == nil {
			dropped++
			continue
		}
		positions = append(positions, Position{
			Key: key,
			Coordinate: [3]float64{
				float64(vp.Position.GetLongitude()),
				float64(vp.Position.GetLatitude()),
				float64(vp.GetCurrentStopSequence()),
			},
		})
	}
	return positions, dropped, nil
}

// EncodeGTFSRT is the inverse of the gtfsrt decoder, used by the simulator.
func EncodeGTFSRT(positions []Position, sentinel float64, timestamp uint64) ([]byte, error) {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(timestamp),
		},
	}
	for _, p := range positions {
		ent := &gtfs.FeedEntity{
			Id: proto.String(p.Key),
			Vehicle: &gtfs.VehiclePosition{
				Vehicle: &gtfs.VehicleDescriptor{Id: proto.String(p.Key)},
				Position: &gtfs.Position{
					Latitude:  proto.Float32(float32(p.Lat())),
					Longitude: proto.Float32(float32(p.Lon())),
				},
			},
		}
		if p.IsSentinel(sentinel) {
			ent.IsDeleted = proto.Bool(true)
		} else if p.Marker() >= 0 {
			ent.Vehicle.CurrentStopSequence = proto.Uint32(uint32(p.Marker()))
		}
		feed.Entity = append(feed.Entity, ent)
	}
	return proto.Marshal(feed)
}
