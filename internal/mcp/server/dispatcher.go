package server

import (
	"context"
	"encoding/json"
	"time"

	"repo-mcp/internal/logging"
	"repo-mcp/internal/mcp/protocol"
	"repo-mcp/internal/metrics"
	"repo-mcp/internal/repository"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
)

// Handler turns one decoded message into at most one response. A nil
// response means the message was a notification.
type Handler interface {
	Handle(ctx context.Context, request *protocol.Request) *protocol.Response
}

// Dispatcher routes requests to the capability handlers and maps their
// failures onto protocol errors.
type Dispatcher struct {
	registry *Registry
	backend  repository.Backend
	log      *logrus.Entry
	metrics  *metrics.Recorder
	info     protocol.ServerInfo
}

var _ Handler = (*Dispatcher)(nil)

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatcher's logger
func WithLogger(logger *logrus.Entry) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.log = logger
		}
	}
}

// WithMetrics records request outcomes in r
func WithMetrics(r *metrics.Recorder) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = r
	}
}

// WithServerInfo sets the name and version returned by initialize
func WithServerInfo(name, version string) DispatcherOption {
	return func(d *Dispatcher) {
		d.info = protocol.ServerInfo{Name: name, Version: version}
	}
}

// NewDispatcher creates a dispatcher serving registry's capabilities from backend
func NewDispatcher(registry *Registry, backend repository.Backend, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		backend:  backend,
		log:      logging.Discard(),
		info:     protocol.ServerInfo{Name: "repo-mcp", Version: "dev"},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.WithField("component", "dispatcher")
	return d
}

// Registry returns the dispatcher's capability registry
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Handle implements Handler
func (d *Dispatcher) Handle(ctx context.Context, request *protocol.Request) *protocol.Response {
	if request.IsNotification() {
		d.log.WithField("method", request.Method).Debug("notification received")
		return nil
	}

	start := time.Now()
	result, err := d.dispatch(ctx, request)
	elapsed := time.Since(start)

	fields := logrus.Fields{
		"method":   request.Method,
		"duration": elapsed,
	}

	if err != nil {
		perr := protocol.AsError(err)
		d.log.WithFields(fields).WithField("code", perr.Code).Warn(perr.Message)
		d.metrics.ObserveRequest(methodLabel(request.Method), perr.CodeName(), elapsed)
		return protocol.NewErrorResponse(request.ID, perr)
	}

	d.log.WithFields(fields).Debug("request handled")
	d.metrics.ObserveRequest(methodLabel(request.Method), metrics.OutcomeOK, elapsed)
	return protocol.NewResult(request.ID, result)
}

// dispatch runs the handler for request. Panics in a handler are reported
// as internal errors.
func (d *Dispatcher) dispatch(ctx context.Context, request *protocol.Request) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("method", request.Method).Errorf("handler panic: %v", r)
			result, err = nil, protocol.NewInternalError("%v", r)
		}
	}()

	if request.JSONRPC != protocol.JSONRPCVersion {
		return nil, protocol.NewInvalidRequest("Invalid JSON-RPC version: %q", request.JSONRPC)
	}
	if request.Method == "" {
		return nil, protocol.NewInvalidRequest("Missing method")
	}

	switch request.Method {
	case protocol.MethodInitialize:
		return d.initialize(request.Params)
	case protocol.MethodPing:
		return struct{}{}, nil
	case protocol.MethodListResources:
		return mcp.ListResourcesResult{Resources: d.registry.ListResources()}, nil
	case protocol.MethodReadResource:
		uri, err := readResourceParams(request.Params)
		if err != nil {
			return nil, err
		}
		return d.readResource(ctx, uri)
	case protocol.MethodListTools:
		return mcp.ListToolsResult{Tools: d.registry.ListTools()}, nil
	case protocol.MethodCallTool:
		name, arguments, err := callToolParams(request.Params)
		if err != nil {
			return nil, err
		}
		return d.callTool(ctx, name, arguments)
	default:
		return nil, protocol.NewMethodNotFound("Method not found: %s", request.Method)
	}
}

func (d *Dispatcher) initialize(params json.RawMessage) (any, error) {
	var init protocol.InitializeRequest
	if len(params) > 0 {
		if err := json.Unmarshal(params, &init); err != nil {
			return nil, protocol.NewInvalidRequest("Invalid initialize params: %v", err)
		}
	}
	d.log.WithFields(logrus.Fields{
		"client":  init.ClientInfo.Name,
		"version": init.ProtocolVersion,
	}).Info("client initializing")

	return protocol.InitializeResult{
		ProtocolVersion: protocol.NegotiateVersion(init.ProtocolVersion),
		Capabilities: protocol.Capabilities{
			Resources: &protocol.ResourcesCapability{},
			Tools:     &protocol.ToolsCapability{},
		},
		ServerInfo: d.info,
	}, nil
}

// readResourceParams checks params has the shape {uri: string}
func readResourceParams(params json.RawMessage) (string, error) {
	var p struct {
		URI *string `json:"uri"`
	}
	if len(params) == 0 || json.Unmarshal(params, &p) != nil || p.URI == nil {
		return "", protocol.NewInvalidRequest("Invalid params: uri must be a string")
	}
	return *p.URI, nil
}

// callToolParams checks params has the shape {name: string, arguments: object}
func callToolParams(params json.RawMessage) (string, map[string]any, error) {
	var p struct {
		Name      *string        `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if len(params) == 0 || json.Unmarshal(params, &p) != nil {
		return "", nil, protocol.NewInvalidRequest("Invalid params: expected {name, arguments}")
	}
	if p.Name == nil {
		return "", nil, protocol.NewInvalidRequest("Invalid params: name must be a string")
	}
	if p.Arguments == nil {
		return "", nil, protocol.NewInvalidRequest("Invalid params: arguments must be an object")
	}
	return *p.Name, p.Arguments, nil
}

// methodLabel bounds the metric label set to known methods
func methodLabel(method string) string {
	switch method {
	case protocol.MethodInitialize, protocol.MethodPing,
		protocol.MethodListResources, protocol.MethodReadResource,
		protocol.MethodListTools, protocol.MethodCallTool:
		return method
	default:
		return "other"
	}
}
