// Package envtree resolves a project environment from the host process
// environment and the .env files found at each level of a project hierarchy.
package envtree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/presbrey/projectenv/envfiles"
	"github.com/presbrey/projectenv/hierarchy"
	"github.com/presbrey/projectenv/propfile"
	"github.com/presbrey/projectenv/syncmap"
)

// Config holds the configuration for the environment loader
type Config struct {
	// Extensions lists the file extensions that mark an environment file (default: ["env"])
	Extensions []string

	// Recursive also scans subdirectories of each project directory (default: false)
	Recursive bool

	// Encoding used to decode environment files (default: UTF-8)
	Encoding propfile.Encoding

	// HostEnvironment supplies the base layer (default: OSEnvironment)
	HostEnvironment func() (map[string]string, error)

	// Logger receives per-file failures and load summaries.
	// If nil, a console logger on stderr is used.
	Logger *zerolog.Logger

	// Silent suppresses all log output
	Silent bool

	// Registerer receives the loader metrics; nil disables metrics
	Registerer prometheus.Registerer

	// StopDir bounds the upward search used by LoadDefault.
	// If empty, the search continues to the filesystem root.
	StopDir string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Extensions:      append([]string(nil), envfiles.DefaultExtensions...),
		Recursive:       false,
		Encoding:        propfile.UTF8,
		HostEnvironment: OSEnvironment,
		Silent:          false,
	}
}

// OSEnvironment returns the current process environment as a map
func OSEnvironment() (map[string]string, error) {
	environ := os.Environ()
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env, nil
}

// Loader resolves project environments into a single store
type Loader struct {
	config  *Config
	store   *syncmap.Map
	parser  propfile.Parser
	log     zerolog.Logger
	metrics *Metrics
}

// New creates a new Loader with the given configuration
func New(config *Config) *Loader {
	if config == nil {
		config = DefaultConfig()
	}
	if len(config.Extensions) == 0 {
		config.Extensions = append([]string(nil), envfiles.DefaultExtensions...)
	}
	if config.HostEnvironment == nil {
		config.HostEnvironment = OSEnvironment
	}

	l := &Loader{
		config: config,
		store:  syncmap.New(),
		parser: propfile.Parser{Encoding: config.Encoding},
	}

	switch {
	case config.Silent:
		l.log = zerolog.Nop()
	case config.Logger != nil:
		l.log = *config.Logger
	default:
		l.log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Str("component", "envtree").Logger()
	}

	if config.Registerer != nil {
		l.metrics = NewMetrics(config.Registerer)
	}
	return l
}

// Store returns the store populated by Load
func (l *Loader) Store() *syncmap.Map {
	return l.store
}

// Load seeds the store from the host environment and then applies the
// environment files of every node from the root down to leaf. Deeper layers
// override shallower ones and any file layer overrides the host environment.
//
// Unreadable directories and bad files are skipped and recorded in the
// returned Report. Load only fails when the host environment cannot be read
// or the hierarchy cannot be walked.
func (l *Loader) Load(leaf hierarchy.Node) (*Report, error) {
	start := time.Now()
	report := &Report{Session: uuid.NewString()}
	log := l.log.With().Str("session", report.Session).Logger()

	host, err := l.config.HostEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to read host environment: %w", err)
	}
	for key, value := range host {
		l.store.Set(key, value)
	}
	report.HostEntries = len(host)

	path, err := hierarchy.AncestryPath(leaf)
	if err != nil {
		return nil, fmt.Errorf("failed to walk project hierarchy: %w", err)
	}

	for _, node := range path {
		report.Layers = append(report.Layers, l.loadLayer(node, report, log))
	}

	report.Duration = time.Since(start)
	if l.metrics != nil {
		l.metrics.LoadDuration.Observe(report.Duration.Seconds())
	}

	log.Debug().
		Int("layers", len(report.Layers)).
		Int("files", len(report.Files())).
		Int("failures", len(report.Failures)).
		Int("entries", l.store.Size()).
		Dur("duration", report.Duration).
		Msg("project environment loaded")

	return report, nil
}

// MustLoad is Load that panics on error
func (l *Loader) MustLoad(leaf hierarchy.Node) *Report {
	report, err := l.Load(leaf)
	if err != nil {
		panic(err)
	}
	return report
}

// loadLayer applies every environment file directly owned by node
func (l *Loader) loadLayer(node hierarchy.Node, report *Report, log zerolog.Logger) Layer {
	layer := Layer{Dir: node.Dir()}

	files, err := envfiles.Discover(layer.Dir, l.config.Extensions, l.config.Recursive)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("dir", layer.Dir).Msg("project directory does not exist")
		} else {
			log.Warn().Err(err).Str("dir", layer.Dir).Msg("failed to list project directory")
			l.recordFailure(report, FileFailure{Path: layer.Dir, Kind: KindDiscovery, Err: err})
		}
		return layer
	}

	for _, file := range files {
		pairs, err := l.parser.ParseFile(file)
		if err != nil {
			log.Warn().Err(err).Str("path", file).Msg("skipping environment file")
			l.recordFailure(report, FileFailure{Path: file, Kind: kindOf(err), Err: err})
			continue
		}

		for _, pair := range pairs {
			l.store.Set(pair.Key, pair.Value)
		}
		layer.Files = append(layer.Files, file)
		layer.Entries += len(pairs)

		if l.metrics != nil {
			l.metrics.FilesLoaded.Inc()
			l.metrics.EntriesApplied.Add(float64(len(pairs)))
		}
		log.Debug().Str("path", file).Int("entries", len(pairs)).Msg("applied environment file")
	}
	return layer
}

func (l *Loader) recordFailure(report *Report, failure FileFailure) {
	report.Failures = append(report.Failures, failure)
	if l.metrics != nil {
		l.metrics.FileFailures.WithLabelValues(string(failure.Kind)).Inc()
	}
}

// Load resolves leaf with the default configuration and returns the store
func Load(leaf hierarchy.Node) (*syncmap.Map, error) {
	loader := New(nil)
	if _, err := loader.Load(leaf); err != nil {
		return nil, err
	}
	return loader.Store(), nil
}

// LoadDefault resolves the hierarchy from the current directory up to the
// filesystem root using the default configuration
func LoadDefault() (*syncmap.Map, error) {
	return New(nil).LoadWorkingDirectory()
}

// LoadWorkingDirectory resolves the hierarchy from the current directory up
// to Config.StopDir
func (l *Loader) LoadWorkingDirectory() (*syncmap.Map, error) {
	leaf, err := hierarchy.FromWorkingDirectory(l.config.StopDir)
	if err != nil {
		return nil, fmt.Errorf("failed to build project hierarchy: %w", err)
	}
	if _, err := l.Load(leaf); err != nil {
		return nil, err
	}
	return l.store, nil
}

// MustLoadDefault is LoadDefault that panics on error
func MustLoadDefault() *syncmap.Map {
	store, err := LoadDefault()
	if err != nil {
		panic(err)
	}
	return store
}

// AutoLoad is a convenience function for use in init() functions.
// It logs any error and always returns a usable store.
func AutoLoad() *syncmap.Map {
	loader := New(nil)
	store, err := loader.LoadWorkingDirectory()
	if err != nil {
		loader.log.Warn().Err(err).Msg("failed to auto-load project environment")
		return loader.Store()
	}
	return store
}
