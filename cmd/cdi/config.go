package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/openlcb-go/cdicore/pkg/cdi/transport"
)

// NodeConfig names one bus-attached node the CLI can talk to.
type NodeConfig struct {
	Endpoint string `toml:"endpoint"`
	ID       string `toml:"id"`
}

// Config is the on-disk node alias file.
type Config struct {
	Nodes map[string]NodeConfig `toml:"nodes"`
}

// LoadConfig reads a TOML node-alias file. A missing file is not an
// error: it yields an empty Config so --demo mode works without one.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{Nodes: make(map[string]NodeConfig)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// Resolve looks up alias and parses its node id into a transport.NodeID.
func (c *Config) Resolve(alias string) (NodeConfig, transport.NodeID, error) {
	nc, ok := c.Nodes[alias]
	if !ok {
		return NodeConfig{}, 0, errors.Errorf("no node named %q in config", alias)
	}
	id, err := parseNodeID(nc.ID)
	if err != nil {
		return NodeConfig{}, 0, errors.Wrapf(err, "node %q", alias)
	}
	return nc, id, nil
}

func parseNodeID(s string) (transport.NodeID, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing node id %q", s)
	}
	return transport.NodeID(v), nil
}
