// Package config loads the fixture configuration: the volume topology to
// build, the filesystem laid out on it and the device service settings.
//
// Configuration is read from the file named by --config or, failing
// that, the BLOCKLAYOUT_CONFIG environment variable. Without either the
// built-in default topology is used.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config path.
const EnvVar = "BLOCKLAYOUT_CONFIG"

// Config is the complete fixture configuration.
type Config struct {
	// Topology describes the volumes to build.
	Topology TopologyConfig `yaml:"topology"`

	// Fixture configures the test filesystem on the root volume.
	Fixture FixtureConfig `yaml:"fixture"`

	// Server configures the device service.
	Server ServerConfig `yaml:"server"`

	// IDAllocator selects how volume ids are assigned.
	IDAllocator IDAllocatorConfig `yaml:"id_allocator"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
}

// TopologyConfig is a set of named volumes and the one to export.
type TopologyConfig struct {
	Root    string                  `yaml:"root"`
	Volumes map[string]VolumeConfig `yaml:"volumes"`
}

// VolumeConfig describes one volume. Which fields apply depends on Type.
type VolumeConfig struct {
	// Type is simple, slice, concat or stripe.
	Type string `yaml:"type"`

	// simple
	Backing   string            `yaml:"backing,omitempty"`
	Create    bool              `yaml:"create,omitempty"`
	Size      Bytes             `yaml:"size,omitempty"`
	Signature []SignatureConfig `yaml:"signature,omitempty"`

	// slice
	Of     string `yaml:"of,omitempty"`
	Start  Bytes  `yaml:"start,omitempty"`
	Length Bytes  `yaml:"length,omitempty"`

	// concat and stripe
	Members []string `yaml:"members,omitempty"`
	Unit    Bytes    `yaml:"unit,omitempty"`
}

// SignatureConfig is one signature component. Negative offsets count
// back from the end of the volume.
type SignatureConfig struct {
	Offset   int64  `yaml:"offset"`
	Contents string `yaml:"contents"`
}

// FixtureConfig configures the block layout filesystem.
type FixtureConfig struct {
	BlockSize      Bytes        `yaml:"block_size"`
	FirstFreeBlock int64        `yaml:"first_free_block"`
	MarkBlocks     bool         `yaml:"mark_blocks"`
	StateFile      string       `yaml:"state_file,omitempty"`
	Files          []FileConfig `yaml:"files,omitempty"`
}

// FileConfig is a file created at startup. Files without extents start
// unmapped and get blocks from LAYOUTGET.
type FileConfig struct {
	Name    string         `yaml:"name"`
	Size    Bytes          `yaml:"size"`
	Extents []ExtentConfig `yaml:"extents,omitempty"`
}

// ExtentConfig places Length file blocks starting at File onto volume
// blocks starting at Disk, in units of fixture.block_size. The volume
// blocks must lie below first_free_block. Hole records a NONE_DATA
// extent and ignores Disk.
type ExtentConfig struct {
	File   int64 `yaml:"file"`
	Disk   int64 `yaml:"disk,omitempty"`
	Length int64 `yaml:"length"`
	Hole   bool  `yaml:"hole,omitempty"`
}

// ServerConfig configures the device service.
type ServerConfig struct {
	Listen         string `yaml:"listen"`
	MaxConcurrent  int    `yaml:"max_concurrent"`
	MaxConnections int    `yaml:"max_connections"`
}

// IDAllocatorConfig selects the volume id allocator.
type IDAllocatorConfig struct {
	// Kind is counter or snowflake.
	Kind string `yaml:"kind"`
	// Node is the snowflake node number.
	Node int64 `yaml:"node"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns the reference fixture: one 64MiB disk cut into
// quarters, exporting the concatenation of the third and first quarter.
func Default() *Config {
	const quarter = 16 << 20
	return &Config{
		Topology: TopologyConfig{
			Root: "c1",
			Volumes: map[string]VolumeConfig{
				"v1": {
					Type:    "simple",
					Backing: "blocklayout.img",
					Create:  true,
					Size:    4 * quarter,
					Signature: []SignatureConfig{
						{Offset: -512, Contents: "Fred's python test volume 1, comp 1"},
						{Offset: -1024, Contents: "Can we handle a second sig component?"},
					},
				},
				"s1": {Type: "slice", Of: "v1", Start: 0, Length: quarter},
				"s2": {Type: "slice", Of: "v1", Start: quarter, Length: quarter},
				"s3": {Type: "slice", Of: "v1", Start: 2 * quarter, Length: quarter},
				"c1": {Type: "concat", Members: []string{"s3", "s1"}},
			},
		},
		Fixture: FixtureConfig{
			BlockSize:      4096,
			FirstFreeBlock: 19,
			MarkBlocks:     true,
			Files: []FileConfig{
				{Name: "simple_extent", Size: 14336, Extents: []ExtentConfig{
					{File: 0, Disk: 1, Length: 6},
				}},
				{Name: "split_extent", Size: 14336, Extents: []ExtentConfig{
					{File: 0, Disk: 9, Length: 2},
					{File: 2, Disk: 7, Length: 2},
				}},
				{Name: "hole_between_extents", Size: 22528, Extents: []ExtentConfig{
					{File: 0, Disk: 11, Length: 2},
					{File: 2, Length: 2, Hole: true},
					{File: 4, Disk: 13, Length: 2},
				}},
				{Name: "partial_layout", Size: 14336, Extents: []ExtentConfig{
					{File: 0, Disk: 16, Length: 1},
					{File: 1, Disk: 15, Length: 1},
					{File: 2, Disk: 18, Length: 1},
					{File: 3, Disk: 17, Length: 1},
				}},
			},
		},
		Server: ServerConfig{
			Listen:         "127.0.0.1:2050",
			MaxConcurrent:  16,
			MaxConnections: 64,
		},
		IDAllocator: IDAllocatorConfig{Kind: "counter"},
		Log:         LogConfig{Level: "info", Format: "text"},
	}
}

// Load loads the file at path, or at $BLOCKLAYOUT_CONFIG when path is
// empty. With neither it returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path. Sections the
// file leaves out keep their defaults; a topology given in the file
// replaces the default one entirely.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse reads YAML configuration from r. Unknown keys are errors.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	cfg.Topology = TopologyConfig{}
	cfg.Fixture.Files = nil

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if cfg.Topology.Root == "" && len(cfg.Topology.Volumes) == 0 {
		cfg.Topology = Default().Topology
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Topology.Root == "" {
		errs = append(errs, fmt.Errorf("topology.root is required"))
	} else if _, ok := c.Topology.Volumes[c.Topology.Root]; !ok {
		errs = append(errs, fmt.Errorf("topology.root %q is not a defined volume", c.Topology.Root))
	}
	for name, v := range c.Topology.Volumes {
		if err := v.validate(); err != nil {
			errs = append(errs, fmt.Errorf("topology.volumes.%s: %w", name, err))
		}
	}

	if c.Fixture.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("fixture.block_size must be positive"))
	}
	if c.Fixture.FirstFreeBlock < 0 {
		errs = append(errs, fmt.Errorf("fixture.first_free_block must not be negative"))
	}
	seen := make(map[string]bool, len(c.Fixture.Files))
	for i, f := range c.Fixture.Files {
		if seen[f.Name] {
			errs = append(errs, fmt.Errorf("fixture.files[%d]: duplicate name %q", i, f.Name))
		}
		seen[f.Name] = true
		for j, e := range f.Extents {
			if e.File < 0 || e.Length <= 0 {
				errs = append(errs, fmt.Errorf("fixture.files[%d].extents[%d]: file block must not be negative and length must be positive", i, j))
			} else if !e.Hole && (e.Disk < 0 || e.Disk+e.Length > c.Fixture.FirstFreeBlock) {
				errs = append(errs, fmt.Errorf("fixture.files[%d].extents[%d]: disk blocks %d-%d not below first_free_block %d", i, j, e.Disk, e.Disk+e.Length-1, c.Fixture.FirstFreeBlock))
			}
		}
	}
	if c.Server.Listen == "" {
		errs = append(errs, fmt.Errorf("server.listen is required"))
	}
	if c.Server.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("server.max_concurrent must be positive"))
	}
	switch c.IDAllocator.Kind {
	case "counter", "snowflake":
	default:
		errs = append(errs, fmt.Errorf("id_allocator.kind must be counter or snowflake, got %q", c.IDAllocator.Kind))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (v VolumeConfig) validate() error {
	switch v.Type {
	case "simple":
		if v.Backing == "" && v.Size == 0 {
			return fmt.Errorf("simple volume needs size or backing")
		}
		if v.Create && (v.Backing == "" || v.Size == 0) {
			return fmt.Errorf("create needs both backing and size")
		}
	case "slice":
		if v.Of == "" {
			return fmt.Errorf("slice needs of")
		}
	case "concat":
		if len(v.Members) == 0 {
			return fmt.Errorf("concat needs members")
		}
	case "stripe":
		if len(v.Members) == 0 || v.Unit == 0 {
			return fmt.Errorf("stripe needs members and unit")
		}
	default:
		return fmt.Errorf("unknown volume type %q", v.Type)
	}
	return nil
}

func (c LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Level))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds the process logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := c.level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
