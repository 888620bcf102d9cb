package api

// Config holds server configuration.
type Config struct {
	Addr   string     // Listen address, e.g. ":8080"
	DBPath string     // SQLite database path
	Auth   AuthConfig // Authentication configuration
	CORS   CORSConfig // Cross-origin configuration
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Enabled bool
	APIKey  string
}
