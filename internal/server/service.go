package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/claims-processor/internal/common"
	"github.com/joseph-ayodele/claims-processor/internal/ingest"
	"github.com/joseph-ayodele/claims-processor/internal/ocr"
)

const claimsServiceName = "claims.v1.ClaimsService"

// ClaimsServiceServer is the gRPC surface. Messages are protobuf well-known types so no
// generated code is needed:
//
//	ExtractText(BytesValue) returns (StringValue)
//	ProcessClaim(Struct{files: [{name, content_b64}]}) returns (Struct)
type ClaimsServiceServer interface {
	ExtractText(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	ProcessClaim(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var ClaimsServiceDesc = grpc.ServiceDesc{
	ServiceName: claimsServiceName,
	HandlerType: (*ClaimsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExtractText", Handler: extractTextHandler},
		{MethodName: "ProcessClaim", Handler: processClaimHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "claims/v1/claims.proto",
}

func extractTextHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClaimsServiceServer).ExtractText(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + claimsServiceName + "/ExtractText"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClaimsServiceServer).ExtractText(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func processClaimHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClaimsServiceServer).ProcessClaim(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + claimsServiceName + "/ProcessClaim"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClaimsServiceServer).ProcessClaim(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ClaimsService implements ClaimsServiceServer on the same collaborators as the HTTP handler.
type ClaimsService struct {
	deps Deps
}

func NewClaimsService(deps Deps) *ClaimsService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &ClaimsService{deps: deps}
}

func (s *ClaimsService) ExtractText(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if len(in.GetValue()) == 0 {
		return nil, common.InvalidArgumentError("document bytes are required")
	}
	res, err := s.deps.Extractor.ExtractResult(ctx, in.GetValue())
	if err != nil {
		var xerr *ocr.ExtractionError
		if errors.As(err, &xerr) {
			return nil, common.FailedPreconditionError(xerr.Error())
		}
		common.LoggerFromContext(ctx, s.deps.Logger).Error("grpc.extract_text.failed", "error", err)
		return nil, common.InternalErrorf("extract text: %v", err)
	}
	return wrapperspb.String(res.Text), nil
}

type claimRequest struct {
	Files []struct {
		Name       string `json:"name"`
		ContentB64 string `json:"content_b64"`
	} `json:"files"`
}

func (s *ClaimsService) ProcessClaim(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := common.LoggerFromContext(ctx, s.deps.Logger)

	raw, err := protojson.Marshal(in)
	if err != nil {
		return nil, common.InvalidArgumentErrorf("decode request: %v", err)
	}
	var req claimRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, common.InvalidArgumentError("files must be a list of {name, content_b64}")
	}
	uploads := make([]ingest.Upload, 0, len(req.Files))
	for _, f := range req.Files {
		data, err := base64.StdEncoding.DecodeString(f.ContentB64)
		if err != nil {
			return nil, common.InvalidArgumentErrorf("%s: content_b64 is not valid base64", f.Name)
		}
		uploads = append(uploads, ingest.Upload{Name: f.Name, Data: data})
	}

	res, err := s.deps.Processor.ProcessClaim(ctx, uploads)
	if err != nil {
		if errors.Is(err, common.ErrInvalidInput) {
			return nil, common.InvalidArgumentError(detailOf(err))
		}
		log.Error("grpc.process_claim.failed", "error", err)
		return nil, common.InternalErrorf("Internal processing error: %v", err)
	}
	if s.deps.Claims != nil {
		if err := s.deps.Claims.Save(ctx, res); err != nil {
			log.Error("grpc.process_claim.save_failed", "claim_id", res.ClaimID, "error", err)
		}
	}

	body, err := json.Marshal(res)
	if err != nil {
		return nil, common.InternalErrorf("encode result: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(body, out); err != nil {
		return nil, common.InternalErrorf("encode result: %v", err)
	}
	return out, nil
}

// NewGRPCServer registers health, reflection and the claims service.
func NewGRPCServer(deps Deps) (*grpc.Server, *health.Server) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(unaryLogger(logger)))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(claimsServiceName, healthpb.HealthCheckResponse_SERVING)
	// Reflection for grpcurl
	reflection.Register(grpcServer)

	grpcServer.RegisterService(&ClaimsServiceDesc, NewClaimsService(deps))
	return grpcServer, hs
}

// unaryLogger attaches a request id (from x-request-id metadata or a fresh uuid) and logs each call.
func unaryLogger(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("x-request-id"); len(v) > 0 {
				id = v[0]
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		ctx = common.WithLogger(common.WithRequestID(ctx, id), logger)

		start := time.Now()
		resp, err := handler(ctx, req)
		common.LoggerFromContext(ctx, logger).Info("grpc.request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}
