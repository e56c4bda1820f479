package grpcclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/eco-collect/internal/classifier"
	"github.com/example/eco-collect/internal/logging"
)

// ClassifyMethod is the full gRPC method name served by the model.
// The request is a google.protobuf.BytesValue holding the raw image and the
// response a google.protobuf.Struct with "category" and "confidence".
const ClassifyMethod = "/classifier.v1.Classifier/Classify"

// DialClassifier returns a ready-to-use gRPC client for the classification model.
func DialClassifier(ctx context.Context, addr string, timeout time.Duration, logger *zap.Logger) (classifier.Client, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
		logger.Error("failed to dial classifier", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewClassifier(conn, timeout, logger), conn, nil
}

// NewClassifier wraps an existing connection.
func NewClassifier(conn grpc.ClientConnInterface, timeout time.Duration, logger *zap.Logger) classifier.Client {
	return &grpcClassifier{conn: conn, timeout: timeout, logger: logger.Named("grpc_classifier")}
}

type grpcClassifier struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
	logger  *zap.Logger
}

func (g *grpcClassifier) Classify(ctx context.Context, image []byte) (*classifier.Result, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, ClassifyMethod, wrapperspb.Bytes(image), resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.classify", "", err)
		g.logger.Error("classifier call failed", zap.Error(wrapped), zap.Int("image_bytes", len(image)))
		return nil, wrapped
	}

	result, err := decodeResult(resp)
	if err != nil {
		return nil, logging.NewOperationError("grpcclient.decode_result", "", err)
	}
	return result, nil
}

func decodeResult(resp *structpb.Struct) (*classifier.Result, error) {
	fields := resp.GetFields()

	category, ok := fields["category"].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, fmt.Errorf("response has no string category")
	}
	confidence, ok := fields["confidence"].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return nil, fmt.Errorf("response has no numeric confidence")
	}

	result := &classifier.Result{
		Category:   category.StringValue,
		Confidence: confidence.NumberValue,
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}
