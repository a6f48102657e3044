package broker

import "time"

// Config holds transport-agnostic connection settings.
// Transport plugins extract the fields they need.
type Config struct {
	// Addresses is a list of broker addresses (e.g., "localhost:5672").
	Addresses []string

	// DialTimeout bounds connection establishment; zero uses the plugin default.
	DialTimeout time.Duration

	// Extra holds plugin-specific configuration.
	Extra map[string]any
}

// String returns the Extra value for key, or def when absent.
func (c Config) String(key, def string) string {
	if v, ok := c.Extra[key].(string); ok {
		return v
	}
	return def
}

// Int returns the Extra value for key, or def when absent.
func (c Config) Int(key string, def int) int {
	if v, ok := c.Extra[key].(int); ok {
		return v
	}
	return def
}

// Bool returns the Extra value for key, or def when absent.
func (c Config) Bool(key string, def bool) bool {
	if v, ok := c.Extra[key].(bool); ok {
		return v
	}
	return def
}

// Duration returns the Extra value for key, or def when absent. String values
// are parsed with time.ParseDuration.
func (c Config) Duration(key string, def time.Duration) time.Duration {
	switch v := c.Extra[key].(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
