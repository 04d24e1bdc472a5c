package config

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Bytes is a byte count written either as a plain integer or with a
// unit suffix such as 64MiB or 4k.
type Bytes int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *Bytes) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", node.Line)
	}
	n, err := humanize.ParseBytes(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	if n > math.MaxInt64 {
		return fmt.Errorf("line %d: size %s too large", node.Line, node.Value)
	}
	*b = Bytes(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (b Bytes) MarshalYAML() (any, error) {
	return b.String(), nil
}

// String returns the size in IEC units.
func (b Bytes) String() string {
	return humanize.IBytes(uint64(b))
}
