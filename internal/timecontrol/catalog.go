package timecontrol

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	yaml "gopkg.in/yaml.v3"
)

//go:embed timecontrols.yaml
var defaultFiles embed.FS

var ErrUnknown = errors.New("unknown time control")

// TimeControl is a named {initial, increment} pair in whole seconds.
type TimeControl struct {
	Name             string `yaml:"-" json:"name"`
	InitialSeconds   int    `yaml:"initial" json:"initial"`
	IncrementSeconds int    `yaml:"increment" json:"increment"`
}

func (tc TimeControl) InitialMillis() int64   { return int64(tc.InitialSeconds) * 1000 }
func (tc TimeControl) IncrementMillis() int64 { return int64(tc.IncrementSeconds) * 1000 }

// Catalog holds the embedded defaults overlaid with YAML files from an optional directory.
type Catalog struct {
	mu   sync.RWMutex
	data map[string]TimeControl
}

// New loads the embedded catalog and then applies overrides from dir if provided.
func New(overrideDir string) (*Catalog, error) {
	c := &Catalog{data: make(map[string]TimeControl)}

	raw, err := fs.ReadFile(defaultFiles, "timecontrols.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded time controls: %w", err)
	}
	if err := c.applyYAML(raw); err != nil {
		return nil, fmt.Errorf("parse embedded time controls: %w", err)
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := c.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read time control dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := c.applyYAML(b); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
	}
	return nil
}

func (c *Catalog) applyYAML(b []byte) error {
	var m map[string]TimeControl
	if err := yaml.Unmarshal(b, &m); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, tc := range m {
		key := normalize(name)
		if key == "" {
			return errors.New("time control without name")
		}
		if tc.InitialSeconds <= 0 || tc.IncrementSeconds < 0 {
			return fmt.Errorf("time control %q: initial must be positive and increment non-negative", name)
		}
		tc.Name = key
		c.data[key] = tc
	}
	return nil
}

// Get resolves a time control by name (case-insensitive).
func (c *Catalog) Get(name string) (TimeControl, error) {
	c.mu.RLock()
	tc, ok := c.data[normalize(name)]
	c.mu.RUnlock()
	if !ok {
		return TimeControl{}, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return tc, nil
}

// Names returns every known time control name in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.data))
	for k := range c.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }
