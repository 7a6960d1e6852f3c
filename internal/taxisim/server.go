package taxisim

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"taxitrack/internal/location"
	"taxitrack/internal/route"
)

// Handler serves the locations feed and the CreateTaxi endpoint.
func (s *Sim) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+location.LocationsPath, s.handleLocations)
	mux.HandleFunc("GET "+location.LocationsPath+"/{key}", s.handleTrack)
	mux.HandleFunc("POST "+route.CreateMethod, s.handleCreate)
	return mux
}

func (s *Sim) handleLocations(w http.ResponseWriter, r *http.Request) {
	s.writePositions(w, r, s.Locations(), false)
}

func (s *Sim) handleTrack(w http.ResponseWriter, r *http.Request) {
	p, ok := s.Track(r.PathValue("key"))
	if !ok {
		http.Error(w, "unknown route", http.StatusNotFound)
		return
	}
	s.writePositions(w, r, []location.Position{p}, true)
}

func (s *Sim) writePositions(w http.ResponseWriter, r *http.Request, positions []location.Position, single bool) {
	if strings.Contains(r.Header.Get("Accept"), "application/x-protobuf") {
		b, err := location.EncodeGTFSRT(positions, s.sentinel, uint64(time.Now().Unix()))
		if err != nil {
			s.log.Error("encode gtfs-rt", "err", err)
			http.Error(w, "encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(b)
		return
	}
	var body any = positions
	if single {
		body = positions[0]
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Sim) handleCreate(w http.ResponseWriter, r *http.Request) {
	var d route.Descriptor
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, "invalid route body", http.StatusBadRequest)
		return
	}
	reply, err := s.Create(r.Context(), r.Header.Get(route.IdempotencyHeader), d)
	if err != nil {
		code := http.StatusBadRequest
		if !isClientError(err) {
			code = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), code)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// GRPCHandler serves CreateTaxi for a grpc.Server configured with
// grpc.ForceServerCodec(route.JSONCodec{}) and grpc.UnknownServiceHandler.
func (s *Sim) GRPCHandler() grpc.StreamHandler {
	return func(_ any, stream grpc.ServerStream) error {
		method, _ := grpc.MethodFromServerStream(stream)
		if method != route.CreateMethod {
			return status.Errorf(codes.Unimplemented, "unknown method %s", method)
		}
		var d route.Descriptor
		if err := stream.RecvMsg(&d); err != nil {
			return err
		}
		var key string
		if md, ok := metadata.FromIncomingContext(stream.Context()); ok {
			if v := md.Get(route.IdempotencyMetadataKey); len(v) > 0 {
				key = v[0]
			}
		}
		reply, err := s.Create(stream.Context(), key, d)
		if err != nil {
			code := codes.InvalidArgument
			if !isClientError(err) {
				code = codes.Unavailable
			}
			return status.Error(code, err.Error())
		}
		return stream.SendMsg(&reply)
	}
}

// NewGRPCServer returns a server that routes every call to GRPCHandler.
func (s *Sim) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ForceServerCodec(route.JSONCodec{}),
		grpc.UnknownServiceHandler(s.GRPCHandler()),
	}, opts...)
	return grpc.NewServer(opts...)
}

func isClientError(err error) bool {
	return errors.Is(err, ErrMissingKey) || errors.Is(err, ErrKeyMismatch) || errors.Is(err, ErrEmptyRoute)
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
