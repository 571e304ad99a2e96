package database

import (
	"context"
	"sort"
	"sync"

	"github.com/koustreak/piiscan/internal/errs"
)

// OpenFunc builds an Inspector from a validated config.
type OpenFunc func(ctx context.Context, cfg *Config) (Inspector, error)

// Driver is what each engine subpackage registers in its init function.
type Driver struct {
	// Open connects and verifies reachability.
	Open OpenFunc

	// HostFromDSN extracts the server host from an engine-native DSN so the
	// cloud classifier can run on DSN-only configs.
	HostFromDSN func(dsn string) (string, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[Engine]Driver{}
)

// Register makes a driver available for an engine. It panics on a nil
// Open function or a duplicate registration, like database/sql.Register.
func Register(engine Engine, d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if d.Open == nil {
		panic("database: Register driver with nil Open for " + string(engine))
	}
	if _, dup := registry[engine]; dup {
		panic("database: Register called twice for " + string(engine))
	}
	registry[engine] = d
}

// Lookup returns the registered driver for engine.
func Lookup(engine Engine) (Driver, error) {
	registryMu.RLock()
	d, ok := registry[engine]
	registryMu.RUnlock()
	if !ok {
		return Driver{}, errs.Newf(errs.ErrKindUnsupported, "no driver registered for engine %q", engine)
	}
	return d, nil
}

// Engines lists the registered engines in name order.
func Engines() []Engine {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Engine, 0, len(registry))
	for e := range registry {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Open validates cfg and hands it to the engine's registered driver.
func Open(ctx context.Context, cfg *Config) (Inspector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, err := Lookup(cfg.Engine)
	if err != nil {
		return nil, err
	}
	effective := cfg.Effective()
	return d.Open(ctx, &effective)
}

// HostName returns the host the config points at: Host when set, otherwise
// whatever the engine's DSN parser extracts. Errors are swallowed into an
// empty string since the host only feeds best-effort cloud classification.
func HostName(cfg *Config) string {
	if cfg == nil {
		return ""
	}
	if cfg.Host != "" {
		return cfg.Host
	}
	if cfg.DSN == "" {
		return ""
	}
	engine, err := ParseEngine(string(cfg.Engine))
	if err != nil {
		return ""
	}
	d, err := Lookup(engine)
	if err != nil || d.HostFromDSN == nil {
		return ""
	}
	host, err := d.HostFromDSN(cfg.DSN)
	if err != nil {
		return ""
	}
	return host
}
