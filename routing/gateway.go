package routing

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

// Stages at which a Solve call can fail.
const (
	StageLoadConfig = "load config"
	StageInitEngine = "init engine"
	StageRoute      = "route"
	StageMatrix     = "matrix"
)

// ErrUpstream is matched by every error returned from Gateway.Solve.
var ErrUpstream = errors.New("routing engine failure")

// ErrUnsupportedResponse is returned when the engine replies with a shape the
// gateway cannot forward.
var ErrUnsupportedResponse = errors.New("unsupported engine response")

// StageError records the stage at which Solve failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}

// Gateway composes the route and matrix queries into one payload.
type Gateway struct {
	cfg       Config
	newEngine EngineFactory
	logger    *log.Logger
}

// NewGateway creates a gateway. A fresh engine is built for every Solve call.
func NewGateway(cfg Config, factory EngineFactory, logger *log.Logger) *Gateway {
	if factory == nil {
		panic("routing.NewGateway: engine factory is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Gateway{cfg: cfg, newEngine: factory, logger: logger}
}

// Solve runs the route query then the matrix query and returns
// "[<route>,<matrix>]".
func (g *Gateway) Solve(ctx context.Context) ([]byte, error) {
	if g.cfg.Timeout.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout.Duration)
		defer cancel()
	}

	engineCfg, err := LoadEngineConfig(g.cfg.EngineConfig)
	if err != nil {
		return nil, &StageError{Stage: StageLoadConfig, Err: err}
	}
	engine, err := g.newEngine(ctx, engineCfg)
	if err != nil {
		return nil, &StageError{Stage: StageInitEngine, Err: err}
	}
	if c, ok := engine.(io.Closer); ok {
		defer c.Close()
	}

	resp, err := engine.Route(ctx, g.routeOptions())
	if err != nil {
		return nil, &StageError{Stage: StageRoute, Err: err}
	}
	route, err := g.jsonBody(StageRoute, resp)
	if err != nil {
		return nil, &StageError{Stage: StageRoute, Err: err}
	}

	resp, err = engine.Matrix(ctx, g.matrixOptions())
	if err != nil {
		return nil, &StageError{Stage: StageMatrix, Err: err}
	}
	matrix, err := g.jsonBody(StageMatrix, resp)
	if err != nil {
		return nil, &StageError{Stage: StageMatrix, Err: err}
	}

	out := make([]byte, 0, len(route)+len(matrix)+3)
	out = append(out, '[')
	out = append(out, route...)
	out = append(out, ',')
	out = append(out, matrix...)
	out = append(out, ']')
	return out, nil
}

func (g *Gateway) routeOptions() Options {
	return Options{
		Costing:   g.cfg.Costing,
		Format:    FormatJSON,
		Locations: append([]LatLon(nil), g.cfg.Locations...),
	}
}

func (g *Gateway) matrixOptions() Options {
	return Options{
		Costing: g.cfg.Costing,
		Sources: append([]LatLon(nil), g.cfg.Locations...),
		Targets: append([]LatLon(nil), g.cfg.Locations...),
	}
}

func (g *Gateway) jsonBody(stage string, resp Response) ([]byte, error) {
	if resp.Kind != ResponseJSON {
		g.logger.WithFields(log.Fields{"stage": stage, "kind": resp.Kind.String(), "content_type": resp.ContentType}).Warn("unsupported engine response")
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedResponse, resp.Kind)
	}
	if !sonic.Valid(resp.Body) {
		return nil, fmt.Errorf("%w: invalid json body", ErrUnsupportedResponse)
	}
	return resp.Body, nil
}
