// Package manifest handles quill.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up in project directories.
const FileName = "quill.toml"

// Manifest represents a quill.toml project configuration.
type Manifest struct {
	Project      Project      `toml:"project"`
	Script       Script       `toml:"script"`
	Runtime      Runtime      `toml:"runtime"`
	Capabilities Capabilities `toml:"capabilities"`

	// Dir is the directory containing the quill.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Script names the compiled bundle to run and its entry arguments.
type Script struct {
	Bundle string   `toml:"bundle"`
	Args   []string `toml:"args"`
}

// Runtime configures how the host drives threads.
type Runtime struct {
	Timeout      string `toml:"timeout"` // Go duration; empty means no limit
	LogVerbosity int    `toml:"log-verbosity"`
	LogFile      string `toml:"log-file"`
	Trace        bool   `toml:"trace"`
}

// Capabilities restricts the natives and templates a bundle may use.
type Capabilities struct {
	Allow []string `toml:"allow"`
	Deny  []string `toml:"deny"`
}

// Default returns the manifest used when no quill.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

// Load parses a quill.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if _, err := m.Timeout(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Script.Bundle == "" {
		name := m.Project.Name
		if name == "" {
			name = "main"
		}
		m.Script.Bundle = name + ".qb"
	}
	if m.Runtime.LogVerbosity == 0 {
		m.Runtime.LogVerbosity = 1
	}
}

// FindAndLoad walks up from startDir to find a quill.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// BundlePath returns the absolute path of the configured bundle.
func (m *Manifest) BundlePath() string {
	if filepath.IsAbs(m.Script.Bundle) {
		return m.Script.Bundle
	}
	return filepath.Join(m.Dir, m.Script.Bundle)
}

// LogFilePath returns the absolute log file path, or nil to log to stderr.
func (m *Manifest) LogFilePath() *string {
	if m.Runtime.LogFile == "" {
		return nil
	}
	p := m.Runtime.LogFile
	if !filepath.IsAbs(p) {
		p = filepath.Join(m.Dir, p)
	}
	return &p
}

// Timeout parses the runtime timeout. Zero means no limit.
func (m *Manifest) Timeout() (time.Duration, error) {
	if m.Runtime.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(m.Runtime.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid runtime timeout %q: %w", m.Runtime.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid runtime timeout %q: negative", m.Runtime.Timeout)
	}
	return d, nil
}
