// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package config defines an interface for configuring a stencil
// coordinator or node agent. The interface can be composed in
// multiple ways, allowing for layered configuration: a YAML file,
// command line overrides, and defaults supplied by the binaries.
//
// A configuration is a set of keys (corresponding to toplevel keys
// in a YAML document). A subset of keys, defined by the package's
// AllKeys, correspond to objects that are configured by the Config
// interface. These keys are provisioned by globally registered
// providers; the keys must be string formatted, and contain the
// (registered) name of the provider, followed by an optional comma
// and string argument. For example:
//
//	cluster: static,node0:9000,node1:9000
//
// configures the cluster key (corresponding to Config.Cluster) using
// the static provider with the argument "node0:9000,node1:9000".
//
// The remaining keys carry plain data that is decoded by Base:
//
//	stencil:
//	  nx: 1000
//	  np: 32
//	  nt: 100
//	migrate:
//	  node: 0
//	  step: 50
//	  target: 1
//	allocator: 64
package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	golog "log"
	"os"
	"strings"
	"sync"

	"github.com/grailbio/stencil"
	"github.com/grailbio/stencil/locality"
	"github.com/grailbio/stencil/log"
	"github.com/grailbio/stencil/metrics"
	"github.com/grailbio/stencil/partition"
	"github.com/grailbio/stencil/runner"
	"github.com/grailbio/stencil/trace"
	yaml "gopkg.in/yaml.v2"
)

// The following are the set of keys provisioned by Config.
const (
	Logger  = "logger"
	Labels  = "labels"
	Metrics = "metrics"
	Tracer  = "tracer"
	Cluster = "cluster"
)

// The following keys carry data decoded by Base.
const (
	Stencil   = "stencil"
	Migrate   = "migrate"
	Allocator = "allocator"
)

// AllKeys defines the order in which configuration keys are
// provisioned. Thus, providers for keys later in the list may use
// configuration provided by providers for keys earlier in the list.
var AllKeys = []string{
	Logger,
	Labels,
	Metrics,
	Tracer,
	Cluster,
}

// Keys is a map of string keys to configuration values.
type Keys map[string]interface{}

// A Config provides a number of methods to mint new objects used by
// the stencil binaries. It is safe to call each method multiple
// times, but they should not be called concurrently.
type Config interface {
	// Logger returns the configured logger.
	Logger() (*log.Logger, error)

	// Labels returns the labels attached to exported metrics.
	Labels() map[string]string

	// Params returns the stencil parameters. Keys absent from the
	// configuration take their default values.
	Params() (stencil.Params, error)

	// Migration returns the configured migration hook, or nil if
	// none is configured.
	Migration() (*runner.Migration, error)

	// Allocator returns the partition allocator for this process.
	Allocator() (*partition.Allocator, error)

	// Cluster returns the configured cluster.
	Cluster() (*locality.Cluster, error)

	// Metrics returns the configured metrics client.
	Metrics() (metrics.Client, error)

	// Tracer returns the configured tracer, or nil if tracing is
	// off.
	Tracer() (trace.Tracer, error)

	// Value returns the value of the given key.
	Value(key string) interface{}

	// Marshal marshals the current configuration into keys.
	Marshal(keys Keys) error

	// Keys returns all the keys as defined by this config.
	Keys() Keys
}

// Base defines a base configuration with reasonable defaults
// where they apply.
type Base Keys

// Logger returns a logger that outputs to standard error.
func (b Base) Logger() (*log.Logger, error) {
	return log.New(golog.New(os.Stderr, "", golog.LstdFlags), log.InfoLevel), nil
}

// Labels returns no labels.
func (b Base) Labels() map[string]string {
	return nil
}

// Params decodes the stencil key over the default parameters.
func (b Base) Params() (stencil.Params, error) {
	p := stencil.DefaultParams()
	if err := b.decode(Stencil, &p); err != nil {
		return stencil.Params{}, err
	}
	return p, nil
}

// Migration decodes the migrate key.
func (b Base) Migration() (*runner.Migration, error) {
	if b[Migrate] == nil {
		return nil, nil
	}
	m := new(runner.Migration)
	if err := b.decode(Migrate, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Allocator returns a new allocator whose free lists are bounded by
// the allocator key (0, the default, leaves them unbounded).
func (b Base) Allocator() (*partition.Allocator, error) {
	var depth int
	if err := b.decode(Allocator, &depth); err != nil {
		return nil, err
	}
	if depth < 0 {
		return nil, fmt.Errorf("invalid allocator depth %d", depth)
	}
	return partition.NewAllocator(depth), nil
}

// Cluster returns an error indicating no cluster was configured.
func (b Base) Cluster() (*locality.Cluster, error) {
	return nil, errors.New("cluster not configured")
}

// Metrics returns a client that discards all metrics.
func (b Base) Metrics() (metrics.Client, error) {
	return metrics.NopClient, nil
}

// Tracer returns a nil tracer.
func (b Base) Tracer() (trace.Tracer, error) {
	return nil, nil
}

// Keys returns the configured keys.
func (b Base) Keys() Keys {
	return Keys(b)
}

// Value returns the value for the provided key.
func (b Base) Value(key string) interface{} {
	return b[key]
}

// Marshal populates the provided key dictionary with the keys
// present in this configuration.
func (b Base) Marshal(keys Keys) error {
	for k, v := range b {
		keys[k] = v
	}
	return nil
}

// decode decodes the value of key into v by way of its YAML
// rendering. It leaves v untouched if key is absent.
func (b Base) decode(key string, v interface{}) error {
	val, ok := b[key]
	if !ok || val == nil {
		return nil
	}
	p, err := yaml.Marshal(val)
	if err != nil {
		return fmt.Errorf("key %s: %v", key, err)
	}
	if err := yaml.UnmarshalStrict(p, v); err != nil {
		return fmt.Errorf("key %s: %v", key, err)
	}
	return nil
}

// Unmarshal unmarshals the (YAML-configured) configuration in b into
// keys.
func Unmarshal(b []byte, keys Keys) error {
	return yaml.Unmarshal(b, keys)
}

// Marshal marshals the given keys into YAML-formatted bytes.
func Marshal(cfg Config) ([]byte, error) {
	keys := make(Keys)
	if err := cfg.Marshal(keys); err != nil {
		return nil, err
	}
	return yaml.Marshal(keys)
}

// Make evaluates a config's keys: for each key in AllKeys (and in
// the order defined by AllKeys), Make parses its provider, and
// provisions the key accordingly. Make returns errors if a provider
// cannot be found or if the provider fails to configure the given
// key.
func Make(cfg Config) (Config, error) {
	for _, key := range AllKeys {
		v := cfg.Value(key)
		if v == nil {
			continue
		}
		vstr, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string for key %s, got %T", key, v)
		}
		name, arg := peel(vstr, ",")
		provider, ok := Lookup(key, name)
		if !ok {
			return nil, fmt.Errorf("provider %s not defined for key %s", name, key)
		}
		var err error
		cfg, err = provider.Configure(cfg, arg)
		if err != nil {
			return nil, fmt.Errorf("configuring key %s with provider %s: %v", key, name, err)
		}
	}
	return cfg, nil
}

// Parse parses and provisions a configuration from the
// YAML-formatted bytes b.
func Parse(b []byte) (Config, error) {
	base := make(Base)
	if err := Unmarshal(b, Keys(base)); err != nil {
		return nil, err
	}
	return Make(base)
}

// ReadFile reads the unprovisioned configuration in filename. An
// empty filename yields an empty configuration.
func ReadFile(filename string) (Base, error) {
	base := make(Base)
	if filename == "" {
		return base, nil
	}
	b, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if err := Unmarshal(b, Keys(base)); err != nil {
		return nil, fmt.Errorf("%s: %v", filename, err)
	}
	return base, nil
}

// ParseFile reads and then parses the configuration from the
// provided filename.
func ParseFile(filename string) (Config, error) {
	base, err := ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Make(base)
}

// A Provider provisions a single key in a configuration. Providers
// must be registered via the package's Register function.
type Provider struct {
	Configure        func(cfg Config, arg string) (Config, error)
	Kind, Arg, Usage string
}

var (
	providers = make(map[string]map[string]Provider)
	mu        sync.Mutex
)

// Register the configuration provider kind for the given key. The
// arg and usage string should describe the provider's argument.
// Register panics if key is not in AllKeys or kind is already
// registered for key.
func Register(key, kind, arg, usage string, configure func(Config, string) (Config, error)) {
	var known bool
	for _, k := range AllKeys {
		known = known || k == key
	}
	if !known {
		panic(fmt.Sprintf("key %s is not provisioned by providers", key))
	}
	mu.Lock()
	defer mu.Unlock()
	kindmap := providers[key]
	if kindmap == nil {
		kindmap = make(map[string]Provider)
		providers[key] = kindmap
	}
	if _, ok := kindmap[kind]; ok {
		panic(fmt.Sprintf("provider %s already registered for key %s", kind, key))
	}
	kindmap[kind] = Provider{
		Configure: configure,
		Kind:      kind,
		Arg:       arg,
		Usage:     usage,
	}
}

// Lookup returns the Provider of kind for key.
func Lookup(key, kind string) (Provider, bool) {
	mu.Lock()
	defer mu.Unlock()
	p, ok := providers[key][kind]
	return p, ok
}

// Usage contains usage information for a provider.
type Usage struct {
	Kind, Arg, Usage string
}

// Help returns Usages, organized by key.
func Help() map[string][]Usage {
	mu.Lock()
	defer mu.Unlock()
	help := make(map[string][]Usage)
	for key, keyProviders := range providers {
		var usages []Usage
		for name, provider := range keyProviders {
			usages = append(usages, Usage{
				Kind:  name,
				Arg:   provider.Arg,
				Usage: provider.Usage,
			})
		}
		help[key] = usages
	}
	return help
}

func peel(s, sep string) (head, tail string) {
	switch parts := strings.SplitN(s, sep, 2); len(parts) {
	case 1:
		return parts[0], ""
	case 2:
		return parts[0], parts[1]
	default:
		panic("bug")
	}
}
