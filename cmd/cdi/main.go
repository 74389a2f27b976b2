// Command cdi is a terminal client for the CDI representation engine:
// it fetches, resolves, and browses a remote OpenLCB/LCC node's
// configuration tree, using cobra for command parsing and fang to
// wrap execution with consistent help and error rendering.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/openlcb-go/cdicore/pkg/cdi"
	"github.com/openlcb-go/cdicore/pkg/cdi/transport"
	"github.com/openlcb-go/cdicore/transport/memtransport"
)

type rootFlags struct {
	configPath string
	demo       bool
	debug      bool
}

func main() {
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:   "cdi",
		Short: "Configuration Description Information client",
		Long:  "cdi fetches and resolves an OpenLCB/LCC node's CDI document and serves typed reads and writes against its memory spaces.",
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", defaultConfigPath(), "path to the node alias TOML file")
	rootCmd.PersistentFlags().BoolVar(&flags.demo, "demo", false, "use a built-in in-process fake node instead of a configured one")
	rootCmd.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "enable debug logging")

	rootCmd.AddCommand(
		dumpCmd(&flags),
		getCmd(&flags),
		setCmd(&flags),
		watchCmd(&flags),
	)

	ctx := context.Background()
	if err := fang.Execute(ctx, rootCmd,
		fang.WithVersion("v0.1.0"),
		fang.WithCommit("dev"),
		fang.WithErrorHandler(func(w io.Writer, styles fang.Styles, err error) {
			_, _ = fmt.Fprintln(w, err.Error())
		}),
	); err != nil {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cdi.toml"
	}
	return filepath.Join(home, ".cdi.toml")
}

func setupLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	return log
}

// resolveTransport returns the demo in-process fake transport when
// --demo is set. Otherwise it looks the alias up in the config file
// and returns an error: no configured endpoint is connected to a
// transport.Transport, so only --demo reaches a node.
func resolveTransport(flags *rootFlags, alias string) (transport.Transport, transport.NodeID, error) {
	if flags.demo {
		return demoTransport()
	}

	cfg, err := LoadConfig(flags.configPath)
	if err != nil {
		return nil, 0, err
	}
	_, id, err := cfg.Resolve(alias)
	if err != nil {
		return nil, 0, err
	}
	return nil, id, fmt.Errorf("no bus binding configured for endpoint resolution; pass --demo to use the built-in fake node")
}

// demoTransport builds a small, self-consistent fake node: one
// segment (space 251) with a replicated "channel" group of 2
// channels each holding a uint8 gain and a name string, so `cdi dump
// --demo demo` has something real to show without any network access.
func demoTransport() (transport.Transport, transport.NodeID, error) {
	const nodeID transport.NodeID = 0x0501010118FF
	const space = 251

	tp := memtransport.New()
	node := memtransport.NewNode()

	xmlDoc := []byte(`<cdi>
  <segment name="root" space="251" origin="0">
    <group name="channel" replication="2" offset="0">
      <int name="gain" size="1" offset="0"/>
      <string name="label" size="8" offset="0"/>
    </group>
  </segment>
</cdi>`)
	node.SetSpace(cdi.DefaultCDISpace, append(xmlDoc, 0x00))
	node.SetSpace(space, make([]byte, 32))
	tp.AddNode(nodeID, node)

	return tp, nodeID, nil
}

func newOrchestrator(log *slog.Logger, tp transport.Transport, node transport.NodeID, states chan cdi.StateChange) *cdi.Orchestrator {
	return cdi.New(node, tp, cdi.XMLParser{}, 0,
		cdi.WithLogger(log),
		cdi.WithStateObserver(func(sc cdi.StateChange) { states <- sc }),
	)
}
