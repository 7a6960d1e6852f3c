package route

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// IdempotencyMetadataKey carries Descriptor.IdempotencyKey over gRPC.
const IdempotencyMetadataKey = "idempotency-key"

// JSONCodec lets the TaxiRoute service be called without generated stubs.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                       { return "json" }

// CreateReply is the CreateTaxi response.
type CreateReply struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// GRPCClient calls CreateTaxi as a unary gRPC method.
type GRPCClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewGRPCClient dials addr lazily. Extra options are appended after the
// defaults (insecure transport, JSON codec).
func NewGRPCClient(addr string, timeout time.Duration, opts ...grpc.DialOption) (*GRPCClient, error) {
	dopts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(JSONCodec{})),
	}, opts...)
	conn, err := grpc.NewClient(addr, dopts...)
	if err != nil {
		return nil, err
	}
	return &GRPCClient{conn: conn, timeout: timeout}, nil
}

func (g *GRPCClient) Close() error {
	return g.conn.Close()
}

// Submit invokes CreateTaxi once with the idempotency key in metadata.
func (g *GRPCClient) Submit(ctx context.Context, d Descriptor) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	ctx = metadata.AppendToOutgoingContext(ctx, IdempotencyMetadataKey, d.IdempotencyKey())

	var reply CreateReply
	if err := g.conn.Invoke(ctx, CreateMethod, &d, &reply); err != nil {
		return fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	return nil
}
