package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	configFile string
	mcp        bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithConfigFile records where the configuration was loaded from so the
// hot-reload watcher can follow the file. Empty disables the watcher.
func WithConfigFile(path string) Option {
	return func(a *application) {
		a.configFile = path
	}
}

// WithMCP switches the process into MCP stdio mode: tools on
// stdin/stdout, no HTTP listener.
func WithMCP(enabled bool) Option {
	return func(a *application) {
		a.mcp = enabled
	}
}
