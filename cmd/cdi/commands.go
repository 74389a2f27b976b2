package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openlcb-go/cdicore/pkg/cdi"
)

func dumpCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <alias>",
		Short: "fetch, resolve, and print a node's CDI tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := setupLogger(flags.debug)
			tp, node, err := resolveTransport(flags, args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			states := make(chan cdi.StateChange, 16)
			orch := newOrchestrator(log, tp, node, states)
			orch.Start(ctx)

			if err := waitReady(ctx, states); err != nil {
				return fmt.Errorf("cdi dump: %w", err)
			}

			RenderTree(cmd.OutOrStdout(), orch.Root(), orch)
			return nil
		},
	}
}

func getCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <alias> <key>",
		Short: "read one typed value from a node's resolved tree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, entry, err := resolveEntry(cmd.Context(), flags, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatValue(entry, orch))
			return nil
		},
	}
}

func setCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <alias> <key> <value>",
		Short: "write one typed value into a node's resolved tree",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, entry, err := resolveEntry(cmd.Context(), flags, args[0], args[1])
			if err != nil {
				return err
			}
			return setValue(cmd.Context(), entry, orch, args[2])
		},
	}
}

func watchCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <alias> <key>",
		Short: "print a value and every subsequent change until interrupted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			orch, entry, err := resolveEntry(ctx, flags, args[0], args[1])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), formatValue(entry, orch))

			changed := make(chan struct{}, 1)
			entry.AddListener(func(cdi.Entry) {
				select {
				case changed <- struct{}{}:
				default:
				}
			})

			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-changed:
					fmt.Fprintln(cmd.OutOrStdout(), formatValue(entry, orch))
				}
			}
		},
	}
}

func resolveEntry(ctx context.Context, flags *rootFlags, alias, key string) (*cdi.Orchestrator, cdi.Entry, error) {
	log := setupLogger(flags.debug)
	tp, node, err := resolveTransport(flags, alias)
	if err != nil {
		return nil, nil, err
	}

	states := make(chan cdi.StateChange, 16)
	orch := newOrchestrator(log, tp, node, states)
	orch.Start(ctx)
	if err := waitReady(ctx, states); err != nil {
		return nil, nil, fmt.Errorf("resolving %s: %w", alias, err)
	}

	entry, ok := orch.Root().ByKey(key)
	if !ok {
		return nil, nil, fmt.Errorf("no entry with key %q", key)
	}
	return orch, entry, nil
}

func formatValue(entry cdi.Entry, caches cdi.CacheProvider) string {
	switch e := entry.(type) {
	case *cdi.IntegerEntry:
		return strconv.FormatUint(cdi.NewIntegerAccessor(e, caches).Get(), 10)
	case *cdi.EventEntry:
		id, ok := cdi.NewEventAccessor(e, caches).Get()
		if !ok {
			return "<missing>"
		}
		return fmt.Sprintf("%x", id)
	case *cdi.StringEntry:
		s, ok := cdi.NewStringAccessor(e, caches).Get()
		if !ok {
			return "<missing>"
		}
		return s
	default:
		return fmt.Sprintf("<%T is not a leaf>", entry)
	}
}

func setValue(ctx context.Context, entry cdi.Entry, caches cdi.CacheProvider, raw string) error {
	done := make(chan error, 1)
	switch e := entry.(type) {
	case *cdi.IntegerEntry:
		v, err := strconv.ParseUint(raw, 0, 64)
		if err != nil {
			return fmt.Errorf("parsing integer value %q: %w", raw, err)
		}
		cdi.NewIntegerAccessor(e, caches).Set(ctx, v, func(err error) { done <- err })
	case *cdi.EventEntry:
		decoded, err := hex.DecodeString(raw)
		if err != nil || len(decoded) != 8 {
			return fmt.Errorf("parsing event id %q (expected 16 hex digits)", raw)
		}
		var id cdi.EventID
		copy(id[:], decoded)
		cdi.NewEventAccessor(e, caches).Set(ctx, id, func(err error) { done <- err })
	case *cdi.StringEntry:
		cdi.NewStringAccessor(e, caches).Set(ctx, raw, func(err error) { done <- err })
	default:
		return fmt.Errorf("<%T is not a leaf>", entry)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
