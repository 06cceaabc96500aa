// Package decompv1connect binds the decompiler service to connect-go.
//
// The layout follows what protoc-gen-connect-go emits for a service: a name
// constant, one path constant per procedure, client and handler interfaces,
// and constructors for both sides.
package decompv1connect

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	decompv1 "github.com/loupe-re/loupe/loupe/decomp/v1"
)

// DecompilerServiceName is the fully-qualified name of the DecompilerService service.
const DecompilerServiceName = "decomp.v1.DecompilerService"

// Procedure paths, suitable for http.ServeMux routing and connect.Spec checks.
const (
	// DecompilerServicePingProcedure is the fully-qualified name of the DecompilerService's Ping RPC.
	DecompilerServicePingProcedure = "/decomp.v1.DecompilerService/Ping"
	// DecompilerServiceLoadBinaryProcedure is the fully-qualified name of the DecompilerService's LoadBinary RPC.
	DecompilerServiceLoadBinaryProcedure = "/decomp.v1.DecompilerService/LoadBinary"
	// DecompilerServiceDecompileFunctionProcedure is the fully-qualified name of the DecompilerService's DecompileFunction RPC.
	DecompilerServiceDecompileFunctionProcedure = "/decomp.v1.DecompilerService/DecompileFunction"
	// DecompilerServiceDisassembleRangeProcedure is the fully-qualified name of the DecompilerService's DisassembleRange RPC.
	DecompilerServiceDisassembleRangeProcedure = "/decomp.v1.DecompilerService/DisassembleRange"
)

// DecompilerServiceClient is a client for the decomp.v1.DecompilerService service.
type DecompilerServiceClient interface {
	Ping(context.Context, *connect.Request[decompv1.PingRequest]) (*connect.Response[decompv1.PingResponse], error)
	LoadBinary(context.Context, *connect.Request[decompv1.LoadBinaryRequest]) (*connect.Response[decompv1.LoadBinaryResponse], error)
	DecompileFunction(context.Context, *connect.Request[decompv1.DecompileRequest]) (*connect.Response[decompv1.DecompileResponse], error)
	DisassembleRange(context.Context, *connect.Request[decompv1.DisassembleRequest]) (*connect.Response[decompv1.DisassembleResponse], error)
}

// NewDecompilerServiceClient constructs a client for the decomp.v1.DecompilerService
// service. The JSON Codec is always installed; options passed by the caller
// are applied after it.
//
// The URL supplied here should be the base URL for the engine (for example,
// http://127.0.0.1:50051).
func NewDecompilerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) DecompilerServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &decompilerServiceClient{
		ping: connect.NewClient[decompv1.PingRequest, decompv1.PingResponse](
			httpClient,
			baseURL+DecompilerServicePingProcedure,
			connect.WithIdempotency(connect.IdempotencyNoSideEffects),
			connect.WithClientOptions(opts...),
		),
		loadBinary: connect.NewClient[decompv1.LoadBinaryRequest, decompv1.LoadBinaryResponse](
			httpClient,
			baseURL+DecompilerServiceLoadBinaryProcedure,
			connect.WithIdempotency(connect.IdempotencyIdempotent),
			connect.WithClientOptions(opts...),
		),
		decompileFunction: connect.NewClient[decompv1.DecompileRequest, decompv1.DecompileResponse](
			httpClient,
			baseURL+DecompilerServiceDecompileFunctionProcedure,
			connect.WithIdempotency(connect.IdempotencyIdempotent),
			connect.WithClientOptions(opts...),
		),
		disassembleRange: connect.NewClient[decompv1.DisassembleRequest, decompv1.DisassembleResponse](
			httpClient,
			baseURL+DecompilerServiceDisassembleRangeProcedure,
			connect.WithIdempotency(connect.IdempotencyNoSideEffects),
			connect.WithClientOptions(opts...),
		),
	}
}

// decompilerServiceClient implements DecompilerServiceClient.
type decompilerServiceClient struct {
	ping              *connect.Client[decompv1.PingRequest, decompv1.PingResponse]
	loadBinary        *connect.Client[decompv1.LoadBinaryRequest, decompv1.LoadBinaryResponse]
	decompileFunction *connect.Client[decompv1.DecompileRequest, decompv1.DecompileResponse]
	disassembleRange  *connect.Client[decompv1.DisassembleRequest, decompv1.DisassembleResponse]
}

// Ping calls decomp.v1.DecompilerService.Ping.
func (c *decompilerServiceClient) Ping(ctx context.Context, req *connect.Request[decompv1.PingRequest]) (*connect.Response[decompv1.PingResponse], error) {
	return c.ping.CallUnary(ctx, req)
}

// LoadBinary calls decomp.v1.DecompilerService.LoadBinary.
func (c *decompilerServiceClient) LoadBinary(ctx context.Context, req *connect.Request[decompv1.LoadBinaryRequest]) (*connect.Response[decompv1.LoadBinaryResponse], error) {
	return c.loadBinary.CallUnary(ctx, req)
}

// DecompileFunction calls decomp.v1.DecompilerService.DecompileFunction.
func (c *decompilerServiceClient) DecompileFunction(ctx context.Context, req *connect.Request[decompv1.DecompileRequest]) (*connect.Response[decompv1.DecompileResponse], error) {
	return c.decompileFunction.CallUnary(ctx, req)
}

// DisassembleRange calls decomp.v1.DecompilerService.DisassembleRange.
func (c *decompilerServiceClient) DisassembleRange(ctx context.Context, req *connect.Request[decompv1.DisassembleRequest]) (*connect.Response[decompv1.DisassembleResponse], error) {
	return c.disassembleRange.CallUnary(ctx, req)
}

// DecompilerServiceHandler is an implementation of the decomp.v1.DecompilerService service.
type DecompilerServiceHandler interface {
	Ping(context.Context, *connect.Request[decompv1.PingRequest]) (*connect.Response[decompv1.PingResponse], error)
	LoadBinary(context.Context, *connect.Request[decompv1.LoadBinaryRequest]) (*connect.Response[decompv1.LoadBinaryResponse], error)
	DecompileFunction(context.Context, *connect.Request[decompv1.DecompileRequest]) (*connect.Response[decompv1.DecompileResponse], error)
	DisassembleRange(context.Context, *connect.Request[decompv1.DisassembleRequest]) (*connect.Response[decompv1.DisassembleResponse], error)
}

// NewDecompilerServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewDecompilerServiceHandler(svc DecompilerServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	pingHandler := connect.NewUnaryHandler(
		DecompilerServicePingProcedure,
		svc.Ping,
		connect.WithIdempotency(connect.IdempotencyNoSideEffects),
		connect.WithHandlerOptions(opts...),
	)
	loadBinaryHandler := connect.NewUnaryHandler(
		DecompilerServiceLoadBinaryProcedure,
		svc.LoadBinary,
		connect.WithIdempotency(connect.IdempotencyIdempotent),
		connect.WithHandlerOptions(opts...),
	)
	decompileFunctionHandler := connect.NewUnaryHandler(
		DecompilerServiceDecompileFunctionProcedure,
		svc.DecompileFunction,
		connect.WithIdempotency(connect.IdempotencyIdempotent),
		connect.WithHandlerOptions(opts...),
	)
	disassembleRangeHandler := connect.NewUnaryHandler(
		DecompilerServiceDisassembleRangeProcedure,
		svc.DisassembleRange,
		connect.WithIdempotency(connect.IdempotencyNoSideEffects),
		connect.WithHandlerOptions(opts...),
	)
	return "/decomp.v1.DecompilerService/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case DecompilerServicePingProcedure:
			pingHandler.ServeHTTP(w, r)
		case DecompilerServiceLoadBinaryProcedure:
			loadBinaryHandler.ServeHTTP(w, r)
		case DecompilerServiceDecompileFunctionProcedure:
			decompileFunctionHandler.ServeHTTP(w, r)
		case DecompilerServiceDisassembleRangeProcedure:
			disassembleRangeHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// UnimplementedDecompilerServiceHandler returns CodeUnimplemented from all methods.
type UnimplementedDecompilerServiceHandler struct{}

func (UnimplementedDecompilerServiceHandler) Ping(context.Context, *connect.Request[decompv1.PingRequest]) (*connect.Response[decompv1.PingResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("decomp.v1.DecompilerService.Ping is not implemented"))
}

func (UnimplementedDecompilerServiceHandler) LoadBinary(context.Context, *connect.Request[decompv1.LoadBinaryRequest]) (*connect.Response[decompv1.LoadBinaryResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("decomp.v1.DecompilerService.LoadBinary is not implemented"))
}

func (UnimplementedDecompilerServiceHandler) DecompileFunction(context.Context, *connect.Request[decompv1.DecompileRequest]) (*connect.Response[decompv1.DecompileResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("decomp.v1.DecompilerService.DecompileFunction is not implemented"))
}

func (UnimplementedDecompilerServiceHandler) DisassembleRange(context.Context, *connect.Request[decompv1.DisassembleRequest]) (*connect.Response[decompv1.DisassembleResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errors.New("decomp.v1.DecompilerService.DisassembleRange is not implemented"))
}
