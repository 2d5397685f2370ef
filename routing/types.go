package routing

import "context"

// LatLon is a geographic coordinate in decimal degrees.
type LatLon struct {
	Lat float64 `toml:"lat" json:"lat"`
	Lon float64 `toml:"lon" json:"lon"`
}

const (
	CostingAuto       = "auto"
	FormatJSON        = "json"
	routeEndpoint     = "/route"
	matrixEndpoint    = "/sources_to_targets"
	maxResponseLength = 32 << 20
)

// Options is a routing engine request. Route requests use Locations, matrix
// requests use Sources and Targets.
type Options struct {
	Costing   string   `json:"costing"`
	Format    string   `json:"format,omitempty"`
	Locations []LatLon `json:"locations,omitempty"`
	Sources   []LatLon `json:"sources,omitempty"`
	Targets   []LatLon `json:"targets,omitempty"`
}

// ResponseKind tags the payload shape returned by the engine.
type ResponseKind int

const (
	ResponseUnknown ResponseKind = iota
	ResponseJSON
	ResponsePBF
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseJSON:
		return "json"
	case ResponsePBF:
		return "pbf"
	default:
		return "unknown"
	}
}

// Response is an engine reply. Only ResponseJSON carries a usable Body.
type Response struct {
	Kind        ResponseKind
	ContentType string
	Body        []byte
}

// Engine submits queries to a routing engine.
type Engine interface {
	Route(ctx context.Context, opts Options) (Response, error)
	Matrix(ctx context.Context, opts Options) (Response, error)
}

// EngineFactory builds an engine from its loaded configuration.
type EngineFactory func(ctx context.Context, cfg EngineConfig) (Engine, error)
