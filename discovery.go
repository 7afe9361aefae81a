// discovery.go: filesystem scanning for plugin manifests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agilira/go-timecache"
	"golang.org/x/sync/errgroup"
)

// DiscoveryOptions controls how a directory is scanned.
type DiscoveryOptions struct {
	// Patterns are matched against file base names.
	Patterns []string `json:"patterns" yaml:"patterns"`

	// MaxDepth limits recursion; 0 scans only the root directory.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// ExcludeDirs are directory base names that are never entered.
	ExcludeDirs []string `json:"exclude_dirs" yaml:"exclude_dirs"`

	// Workers bounds concurrent manifest parsing.
	Workers int `json:"workers" yaml:"workers"`

	// ValidateSchema checks each manifest against ManifestSchema.
	ValidateSchema bool `json:"validate_schema" yaml:"validate_schema"`
}

// DefaultDiscoveryOptions returns the options used when none are set.
func DefaultDiscoveryOptions() DiscoveryOptions {
	return DiscoveryOptions{
		Patterns:       append([]string(nil), DefaultManifestPatterns...),
		MaxDepth:       3,
		ExcludeDirs:    []string{".git", "node_modules", "vendor"},
		Workers:        4,
		ValidateSchema: true,
	}
}

func (o DiscoveryOptions) withDefaults() DiscoveryOptions {
	def := DefaultDiscoveryOptions()
	if len(o.Patterns) == 0 {
		o.Patterns = def.Patterns
	}
	if o.MaxDepth < 0 {
		o.MaxDepth = 0
	}
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	return o
}

// DiscoveryResult describes one candidate found by a scan. Exactly one of
// Identity and Error is set.
type DiscoveryResult struct {
	// Source is the manifest file.
	Source string

	// Module is the path LoadPlugin should be given.
	Module string

	Identity     *PluginIdentity
	Manifest     *PluginManifest
	Error        string
	DiscoveredAt time.Time
}

// OK reports whether identity metadata was read successfully.
func (r DiscoveryResult) OK() bool {
	return r.Identity != nil && r.Error == ""
}

// Scanner enumerates candidate modules under a directory and reads their
// identity from manifests. It never runs plugin code and never touches a
// registry.
type Scanner struct {
	options func() DiscoveryOptions
	logger  Logger
}

// NewScanner creates a scanner. options is read at the start of every scan.
func NewScanner(options func() DiscoveryOptions, logger Logger) *Scanner {
	if logger == nil {
		logger = DefaultLogger()
	}
	if options == nil {
		options = DefaultDiscoveryOptions
	}
	return &Scanner{options: options, logger: logger}
}

// Discover scans dir. A missing or unreadable directory yields an empty
// slice. Each unreadable candidate yields a result with Error set; the scan
// continues. When ctx is cancelled the scan stops and returns the results
// gathered so far. Results are sorted by Source.
func (s *Scanner) Discover(ctx context.Context, dir string) []DiscoveryResult {
	opts := s.options().withDefaults()

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		s.logger.Debug("Discovery directory not available", "dir", dir, "error", err)
		return []DiscoveryResult{}
	}

	candidates := s.collectCandidates(ctx, dir, 0, opts, nil)
	if len(candidates) == 0 {
		return []DiscoveryResult{}
	}

	results := make([]*DiscoveryResult, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, candidate := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result := s.inspect(candidate, opts)
			results[i] = &result
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("Discovery interrupted", "dir", dir, "error", err)
	}

	out := make([]DiscoveryResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })

	s.logger.Debug("Discovery completed", "dir", dir, "candidates", len(candidates), "results", len(out))
	return out
}

// collectCandidates walks dir recursively and returns manifest paths.
// Unreadable subdirectories are logged and skipped.
func (s *Scanner) collectCandidates(ctx context.Context, dir string, depth int, opts DiscoveryOptions, acc []string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Warn("Failed to read directory", "dir", dir, "error", NewDiscoveryError("cannot read "+dir, err))
		return acc
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return acc
		default:
		}

		full := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if depth < opts.MaxDepth && !s.excluded(entry.Name(), opts) {
				acc = s.collectCandidates(ctx, full, depth+1, opts, acc)
			}
			continue
		}
		if entry.Type()&fs.ModeType != 0 && entry.Type()&fs.ModeSymlink == 0 {
			continue
		}
		if matchesAny(entry.Name(), opts.Patterns) {
			acc = append(acc, full)
		}
	}
	return acc
}

func (s *Scanner) excluded(name string, opts DiscoveryOptions) bool {
	for _, ex := range opts.ExcludeDirs {
		if strings.EqualFold(name, ex) {
			return true
		}
	}
	return false
}

// inspect reads the manifest at path and resolves its module.
func (s *Scanner) inspect(path string, opts DiscoveryOptions) DiscoveryResult {
	result := DiscoveryResult{
		Source:       path,
		DiscoveredAt: timecache.CachedTime(),
	}

	manifest, err := ParseManifestFile(path, opts.ValidateSchema)
	if err != nil {
		s.logger.Warn("Failed to analyze plugin", "path", path, "error", err)
		result.Error = err.Error()
		return result
	}

	module, err := ResolveModulePath(path)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if module != path {
		if _, statErr := os.Stat(module); statErr != nil {
			result.Error = NewModuleNotFoundError(module, statErr).Error()
			return result
		}
	}

	identity := manifest.Identity()
	result.Identity = &identity
	result.Manifest = manifest
	result.Module = module

	s.logger.Debug("Discovered plugin", "id", identity.ID, "version", identity.Version, "path", path)
	return result
}
