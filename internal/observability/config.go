package observability

// Config captures opt-in observability toggles that wire into the server.
type Config struct {
	EnablePprofTrace bool
	// OTLPEndpoint is the collector URL traces are exported to. Empty disables
	// export.
	OTLPEndpoint string
	ServiceName  string
}
