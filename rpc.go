// rpc.go: gRPC service carrying the Plugin contract across the process boundary
//
// Messages are google.protobuf.Struct values so the service needs no
// generated code. Plugin failures travel inside the response under "error"
// so their error codes survive the trip; gRPC status errors are reserved for
// transport problems.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goerrors "github.com/agilira/go-errors"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const moduleServiceName = "plughost.v1.Module"

const (
	methodDescribe     = "Describe"
	methodInitialize   = "Initialize"
	methodStart        = "Start"
	methodStop         = "Stop"
	methodUnload       = "Unload"
	methodCapabilities = "Capabilities"
	methodExecute      = "Execute"
	methodIsCompatible = "IsCompatible"
)

func fullMethod(method string) string {
	return "/" + moduleServiceName + "/" + method
}

// moduleServer is the server-side surface of the module service.
type moduleServer interface {
	Describe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Initialize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Start(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stop(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Unload(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Capabilities(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Execute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IsCompatible(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type moduleCall func(moduleServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call moduleCall) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(moduleServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		})
	}
}

var moduleServiceDesc = grpc.ServiceDesc{
	ServiceName: moduleServiceName,
	HandlerType: (*moduleServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodDescribe, Handler: unaryHandler(methodDescribe, moduleServer.Describe)},
		{MethodName: methodInitialize, Handler: unaryHandler(methodInitialize, moduleServer.Initialize)},
		{MethodName: methodStart, Handler: unaryHandler(methodStart, moduleServer.Start)},
		{MethodName: methodStop, Handler: unaryHandler(methodStop, moduleServer.Stop)},
		{MethodName: methodUnload, Handler: unaryHandler(methodUnload, moduleServer.Unload)},
		{MethodName: methodCapabilities, Handler: unaryHandler(methodCapabilities, moduleServer.Capabilities)},
		{MethodName: methodExecute, Handler: unaryHandler(methodExecute, moduleServer.Execute)},
		{MethodName: methodIsCompatible, Handler: unaryHandler(methodIsCompatible, moduleServer.IsCompatible)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "plughost/v1/module",
}

// RemoteError is a plugin failure reported from another process. Code is
// the plughost error code when the plugin returned one.
type RemoteError struct {
	PluginID string
	Method   string
	Code     string
	Message  string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// encodeValue converts v to a Struct-compatible value through JSON so any
// JSON-serializable Go value can cross the boundary.
func encodeValue(v any) (*structpb.Value, error) {
	if v == nil {
		return structpb.NewNullValue(), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, NewSerializationError("value is not JSON serializable", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, NewSerializationError("cannot normalize value", err)
	}
	value, err := structpb.NewValue(generic)
	if err != nil {
		return nil, NewSerializationError("cannot encode value", err)
	}
	return value, nil
}

// encodeStruct converts a JSON-object-shaped value into a Struct.
func encodeStruct(v any) (*structpb.Struct, error) {
	value, err := encodeValue(v)
	if err != nil {
		return nil, err
	}
	if s := value.GetStructValue(); s != nil {
		return s, nil
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
}

// decodeStruct fills out from s through JSON.
func decodeStruct(s *structpb.Struct, out any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return NewSerializationError("cannot encode struct", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return NewSerializationError("cannot decode struct", err)
	}
	return nil
}

// errorValue packs err for the response "error" field.
func errorValue(err error) *structpb.Value {
	code := ""
	var coded *goerrors.Error
	if errors.As(err, &coded) {
		code = string(coded.Code)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"code":    structpb.NewStringValue(code),
		"message": structpb.NewStringValue(err.Error()),
	}})
}

func errorResponse(err error) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{"error": errorValue(err)}}
}

func emptyResponse() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}
}

// responseError extracts a plugin failure from a response, if any.
func responseError(pluginID, method string, out *structpb.Struct) error {
	v, ok := out.GetFields()["error"]
	if !ok {
		return nil
	}
	fields := v.GetStructValue().GetFields()
	return &RemoteError{
		PluginID: pluginID,
		Method:   method,
		Code:     fields["code"].GetStringValue(),
		Message:  fields["message"].GetStringValue(),
	}
}

// remotePlugin is the host-side proxy for a plugin living in a child
// process. Identity and metadata are fetched once by Describe.
type remotePlugin struct {
	conn        grpc.ClientConnInterface
	identity    PluginIdentity
	metadata    PluginMetadata
	callTimeout time.Duration
	logger      Logger
}

type describeResponse struct {
	Identity PluginIdentity `json:"identity"`
	Metadata PluginMetadata `json:"metadata"`
}

// newRemotePlugin calls Describe, waiting for the server to come up until
// ctx expires.
func newRemotePlugin(ctx context.Context, conn grpc.ClientConnInterface, callTimeout time.Duration, logger Logger) (*remotePlugin, error) {
	rp := &remotePlugin{conn: conn, callTimeout: callTimeout, logger: logger}

	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, fullMethod(methodDescribe), emptyResponse(), out, grpc.WaitForReady(true)); err != nil {
		return nil, NewRPCError(methodDescribe, err)
	}
	if err := responseError("", methodDescribe, out); err != nil {
		return nil, err
	}

	var desc describeResponse
	if err := decodeStruct(out, &desc); err != nil {
		return nil, err
	}
	rp.identity = desc.Identity
	rp.metadata = desc.Metadata
	return rp, nil
}

func (r *remotePlugin) invoke(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := r.conn.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return nil, NewRPCError(method, err)
	}
	if err := responseError(r.identity.ID, method, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *remotePlugin) ID() string               { return r.identity.ID }
func (r *remotePlugin) Name() string             { return r.identity.Name }
func (r *remotePlugin) Version() string          { return r.identity.Version }
func (r *remotePlugin) Description() string      { return r.identity.Description }
func (r *remotePlugin) Metadata() PluginMetadata { return r.metadata }

// Initialize forwards the host context when it can be represented as a
// Struct value; otherwise the plugin receives null.
func (r *remotePlugin) Initialize(ctx context.Context, host HostContext) error {
	hostValue, err := encodeValue(host)
	if err != nil {
		r.logger.Debug("Host context not transferable to plugin process", "error", err)
		hostValue = structpb.NewNullValue()
	}
	in := &structpb.Struct{Fields: map[string]*structpb.Value{"host": hostValue}}
	_, err = r.invoke(ctx, methodInitialize, in)
	return err
}

func (r *remotePlugin) Start(ctx context.Context) error {
	_, err := r.invoke(ctx, methodStart, emptyResponse())
	return err
}

func (r *remotePlugin) Stop(ctx context.Context) error {
	_, err := r.invoke(ctx, methodStop, emptyResponse())
	return err
}

func (r *remotePlugin) Unload(ctx context.Context) error {
	_, err := r.invoke(ctx, methodUnload, emptyResponse())
	return err
}

func (r *remotePlugin) Capabilities(ctx context.Context) (PluginCapabilities, error) {
	out, err := r.invoke(ctx, methodCapabilities, emptyResponse())
	if err != nil {
		return PluginCapabilities{}, err
	}
	var caps PluginCapabilities
	if err := decodeStruct(out, &caps); err != nil {
		return PluginCapabilities{}, err
	}
	return caps, nil
}

func (r *remotePlugin) Execute(ctx context.Context, command string, params map[string]any) (any, error) {
	paramsValue, err := encodeValue(params)
	if err != nil {
		return nil, err
	}
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"command": structpb.NewStringValue(command),
		"params":  paramsValue,
	}}
	out, err := r.invoke(ctx, methodExecute, in)
	if err != nil {
		return nil, err
	}
	return out.GetFields()["result"].AsInterface(), nil
}

func (r *remotePlugin) IsCompatible(hostVersion string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.callTimeout)
	defer cancel()

	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"host_version": structpb.NewStringValue(hostVersion),
	}}
	out, err := r.invoke(ctx, methodIsCompatible, in)
	if err != nil {
		r.logger.Warn("Compatibility check failed", "plugin", r.identity.ID, "error", err)
		return false
	}
	return out.GetFields()["compatible"].GetBoolValue()
}

// moduleService adapts a Plugin to moduleServer on the plugin side.
type moduleService struct {
	plugin   Plugin
	logger   Logger
	onUnload func()
}

func (s *moduleService) Describe(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	out, err := encodeStruct(describeResponse{Identity: IdentityOf(s.plugin), Metadata: s.plugin.Metadata()})
	if err != nil {
		return errorResponse(err), nil
	}
	return out, nil
}

func (s *moduleService) Initialize(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var host HostContext
	if v, ok := in.GetFields()["host"]; ok {
		host = v.AsInterface()
	}
	if err := s.plugin.Initialize(ctx, host); err != nil {
		return errorResponse(err), nil
	}
	return emptyResponse(), nil
}

func (s *moduleService) Start(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.plugin.Start(ctx); err != nil {
		return errorResponse(err), nil
	}
	return emptyResponse(), nil
}

func (s *moduleService) Stop(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.plugin.Stop(ctx); err != nil {
		return errorResponse(err), nil
	}
	return emptyResponse(), nil
}

func (s *moduleService) Unload(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	err := s.plugin.Unload(ctx)
	if s.onUnload != nil {
		s.onUnload()
	}
	if err != nil {
		return errorResponse(err), nil
	}
	return emptyResponse(), nil
}

func (s *moduleService) Capabilities(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	caps, err := s.plugin.Capabilities(ctx)
	if err != nil {
		return errorResponse(err), nil
	}
	out, err := encodeStruct(caps)
	if err != nil {
		return errorResponse(err), nil
	}
	return out, nil
}

func (s *moduleService) Execute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	command := fields["command"].GetStringValue()

	var params map[string]any
	if p := fields["params"].GetStructValue(); p != nil {
		params = p.AsMap()
	}

	result, err := s.plugin.Execute(ctx, command, params)
	if err != nil {
		return errorResponse(err), nil
	}
	value, err := encodeValue(result)
	if err != nil {
		return errorResponse(err), nil
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"result": value}}, nil
}

func (s *moduleService) IsCompatible(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	hostVersion := in.GetFields()["host_version"].GetStringValue()
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"compatible": structpb.NewBoolValue(s.plugin.IsCompatible(hostVersion)),
	}}, nil
}
