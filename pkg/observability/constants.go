package observability

// Attribute and span names shared by the tracer, the HTTP middleware, and
// the debug exporter's capture filter.
const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"
	AttrAgentName      = "agent.name"
	AttrToolName       = "tool.name"
	AttrErrorType      = "error.type"

	AttrHTTPMethod       = "http.method"
	AttrHTTPPath         = "http.path"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPResponseSize = "http.response_size"

	// AttrEventID indexes a captured debug span by an application-defined
	// correlation id, when one is attached to the span.
	AttrEventID = "mcpmesh.event_id"

	SpanToolExecution = "mcpmesh.tool_execution"
	SpanHTTPRequest   = "mcpmesh.http_request"

	DefaultServiceName  = "mcpmesh"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
)
