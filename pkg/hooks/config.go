// Package hooks runs user commands around the export step of a build.
// Hooks are configured in .slidetree/hooks.yaml and run before the outputs
// are written (pre-export) and after (post-export), for example to tell a
// running slideshow to reload its list.
package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/slidetree/pkg/config"
)

// HookPhase represents when a hook runs
type HookPhase string

const (
	// PreExport runs after the tree is built but before any output is
	// written. Failure cancels the export.
	PreExport HookPhase = "pre-export"
	// PostExport runs after every output is written. Failure is logged but
	// the outputs stay.
	PostExport HookPhase = "post-export"
)

// Hook defines a single hook configuration
type Hook struct {
	Name    string            `yaml:"name" json:"name"`                             // Human-readable name
	Command string            `yaml:"command" json:"command"`                       // Shell command to run
	Timeout time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`   // Execution timeout (default: 30s)
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`           // Additional environment variables
	OnError string            `yaml:"on_error,omitempty" json:"on_error,omitempty"` // "fail" (default for pre) or "continue" (default for post)
}

// Config holds all hook configurations
type Config struct {
	Hooks HooksByPhase `yaml:"hooks" json:"hooks"`
}

// HooksByPhase organizes hooks by their execution phase
type HooksByPhase struct {
	PreExport  []Hook `yaml:"pre-export,omitempty" json:"pre-export,omitempty"`
	PostExport []Hook `yaml:"post-export,omitempty" json:"post-export,omitempty"`
}

// ExportContext describes the build a hook runs for. It reaches the hook
// as environment variables.
type ExportContext struct {
	Outputs    []string  // SLIDETREE_HOOK_OUTPUTS: written files, joined by the path list separator
	Mode       string    // SLIDETREE_HOOK_MODE: resolved mode string
	ImageCount int       // SLIDETREE_HOOK_IMAGES: number of images in the tree
	Timestamp  time.Time // SLIDETREE_HOOK_TIMESTAMP: build time (RFC3339)
}

// ToEnv converts export context to environment variables
func (c ExportContext) ToEnv() []string {
	return []string{
		"SLIDETREE_HOOK_OUTPUTS=" + strings.Join(c.Outputs, string(os.PathListSeparator)),
		"SLIDETREE_HOOK_MODE=" + c.Mode,
		"SLIDETREE_HOOK_IMAGES=" + strconv.Itoa(c.ImageCount),
		"SLIDETREE_HOOK_TIMESTAMP=" + c.Timestamp.Format(time.RFC3339),
	}
}

// DefaultTimeout is the default hook execution timeout
const DefaultTimeout = 30 * time.Second

// HooksFile is where project hooks live, relative to the project directory.
// When it is absent, hooks.yaml in the user config directory is used.
const HooksFile = ".slidetree/hooks.yaml"

// Loader finds and parses the hooks file.
type Loader struct {
	projectDir string
	userDir    string
	source     string
	config     *Config
	warnings   []string
}

// LoaderOption configures the loader
type LoaderOption func(*Loader)

// WithProjectDir sets the project directory (default: current directory)
func WithProjectDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.projectDir = dir
	}
}

// WithUserDir sets the fallback directory holding hooks.yaml. An empty dir
// disables the fallback. Default: config.ConfigDir().
func WithUserDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.userDir = dir
	}
}

// NewLoader creates a new hook loader with options
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{userDir: config.ConfigDir()}
	for _, opt := range opts {
		opt(l)
	}
	if l.projectDir == "" {
		l.projectDir, _ = os.Getwd()
	}
	return l
}

func (l *Loader) candidates() []string {
	paths := []string{filepath.Join(l.projectDir, filepath.FromSlash(HooksFile))}
	if l.userDir != "" {
		paths = append(paths, filepath.Join(l.userDir, "hooks.yaml"))
	}
	return paths
}

// Load reads the first hooks file that exists. No file means no hooks.
func (l *Loader) Load() error {
	l.config = &Config{}
	l.source = ""
	l.warnings = nil

	for _, path := range l.candidates() {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading hooks config: %w", err)
		}
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		cfg.Hooks.PreExport = l.normalize(cfg.Hooks.PreExport, PreExport)
		cfg.Hooks.PostExport = l.normalize(cfg.Hooks.PostExport, PostExport)
		l.config = &cfg
		l.source = path
		return nil
	}
	return nil
}

// normalize fills in defaults and drops hooks without a command.
func (l *Loader) normalize(hooks []Hook, phase HookPhase) []Hook {
	var out []Hook
	for i, h := range hooks {
		if strings.TrimSpace(h.Command) == "" {
			l.warnings = append(l.warnings, fmt.Sprintf("%s hook %d has empty command; skipping", phase, i+1))
			continue
		}
		if h.Name == "" {
			h.Name = fmt.Sprintf("%s-%d", phase, i+1)
		}
		if h.Timeout <= 0 {
			h.Timeout = DefaultTimeout
		}
		switch h.OnError {
		case "fail", "continue":
		case "":
			h.OnError = "continue"
			if phase == PreExport {
				h.OnError = "fail"
			}
		default:
			l.warnings = append(l.warnings, fmt.Sprintf("hook %q: unknown on_error %q, using \"fail\"", h.Name, h.OnError))
			h.OnError = "fail"
		}
		out = append(out, h)
	}
	return out
}

// Source returns the file the hooks were read from, or "" if none.
func (l *Loader) Source() string { return l.source }

// Config returns the loaded configuration (or empty if not loaded)
func (l *Loader) Config() *Config {
	if l.config == nil {
		return &Config{}
	}
	return l.config
}

// HasHooks returns true if any hooks are configured
func (l *Loader) HasHooks() bool {
	return l.config != nil && len(l.config.Hooks.PreExport)+len(l.config.Hooks.PostExport) > 0
}

// GetHooks returns hooks for a specific phase
func (l *Loader) GetHooks(phase HookPhase) []Hook {
	if l.config == nil {
		return nil
	}
	switch phase {
	case PreExport:
		return l.config.Hooks.PreExport
	case PostExport:
		return l.config.Hooks.PostExport
	}
	return nil
}

// Warnings returns any warnings from loading
func (l *Loader) Warnings() []string {
	return l.warnings
}

// LoadDefault loads hooks for the working directory.
func LoadDefault() (*Loader, error) {
	loader := NewLoader()
	if err := loader.Load(); err != nil {
		return nil, err
	}
	return loader, nil
}

// UnmarshalYAML accepts timeouts as durations ("5s") or bare seconds.
func (h *Hook) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name    string            `yaml:"name"`
		Command string            `yaml:"command"`
		Timeout string            `yaml:"timeout,omitempty"`
		Env     map[string]string `yaml:"env,omitempty"`
		OnError string            `yaml:"on_error,omitempty"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*h = Hook{Name: raw.Name, Command: raw.Command, Env: raw.Env, OnError: raw.OnError}

	if raw.Timeout == "" {
		return nil
	}
	if d, err := time.ParseDuration(raw.Timeout); err == nil {
		h.Timeout = d
		return nil
	}
	secs, err := strconv.ParseFloat(raw.Timeout, 64)
	if err != nil {
		return fmt.Errorf("invalid timeout %q", raw.Timeout)
	}
	h.Timeout = time.Duration(secs * float64(time.Second))
	return nil
}
