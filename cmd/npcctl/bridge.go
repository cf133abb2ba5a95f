package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/npcfleet/internal/game/geom"
	"github.com/cory-johannsen/npcfleet/internal/gameserver"
)

// dialBridge opens the client connection. Tests replace it with an in-memory dialer.
var dialBridge = func(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

type bridgeOptions struct {
	addr    string
	timeout time.Duration
}

func bridgeCmd() *cobra.Command {
	opts := &bridgeOptions{}
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Call the host bridge of a running NPC server",
	}
	cmd.PersistentFlags().StringVar(&opts.addr, "addr", "127.0.0.1:50061", "host bridge address")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "per-call deadline")

	cmd.AddCommand(
		bridgeListCmd(opts),
		bridgeSpawnCmd(opts),
		bridgeDestroyCmd(opts),
		bridgePlayerCmd(opts),
		bridgeInteractCmd(opts),
		bridgeTalkCmd(opts),
		bridgeChooseCmd(opts),
		bridgeSayCmd(opts),
		bridgeEndCmd(opts),
		bridgeStateCmd(opts),
		bridgeEventsCmd(opts),
	)
	return cmd
}

// callBridge dials opts.addr, runs fn under the call deadline and prints its
// result as YAML.
func callBridge(cmd *cobra.Command, opts *bridgeOptions, fn func(ctx context.Context, c *gameserver.Client) (any, error)) error {
	conn, err := dialBridge(opts.addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", opts.addr, err)
	}
	defer conn.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	out, err := fn(ctx, gameserver.NewClient(conn))
	if err != nil {
		return err
	}
	return printYAML(cmd.OutOrStdout(), out)
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func parseVec(s string) (geom.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return geom.Vec3{}, fmt.Errorf("vector %q: want x,y,z", s)
	}
	var xyz [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geom.Vec3{}, fmt.Errorf("vector %q: %w", s, err)
		}
		xyz[i] = f
	}
	return geom.V(xyz[0], xyz[1], xyz[2]), nil
}

func bridgeListCmd(opts *bridgeOptions) *cobra.Command {
	var faction, state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the fleet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return callBridge(cmd, opts, func(ctx context.Context, c *gameserver.Client) (any, error) {
				if faction == "" && state == "" {
					return c.ListNPCs(ctx)
				}
				in := map[string]any{}
				if faction != "" {
					in["faction"] = faction
				}
				if state != "" {
					in["state"] = state
				}
				return c.Call(ctx, gameserver.MethodListNPCs, in)
			})
		},
	}
	cmd.Flags().StringVar(&faction, "faction", "", "only NPCs of this faction")
	cmd.Flags().StringVar(&state, "state", "", "only NPCs in this behavior state")
	return cmd
}

func bridgeSpawnCmd(opts *bridgeOptions) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "spawn <npc-id> <template-id>",
		Short: "Spawn an NPC from a template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parseVec(at)
			if err != nil {
				return err
			}
			return callBridge(cmd, opts, func(ctx context.Context, c *gameserver.Client) (any, error) {
				return c.SpawnNPC(ctx, args[0], args[1], pos)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "0,0,0", "spawn position as x,y,z")
	return cmd
}

func bridgeDestroyCmd(opts *bridgeOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "destroy <npc-id>",
		Short: "Despawn an NPC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return callBridge(cmd, opts, func(ctx context.Context, c *gameserver.Client) (any, error) {
				return c.Call(ctx, gameserver.MethodDestroyNPC, map[string]any{"npc_id": args[0], "reason": reason})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "npcctl", "reason recorded on the destroy event")
	return cmd
}

func bridgePlayerCmd(opts *bridgeOptions) *cobra.Command {
	var at, facing string
	cmd := &cobra.Command{
		Use:   "player",
		Short: "Report the player position and facing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parseVec(at)
			if err != nil {
				return err
			}
			dir, err := parseVec(facing)
			if err != nil {
				return err
			}
			return callBridge(cmd, opts, func(ctx context.Context, c *gameserver.Client) (any, error) {
				return c.UpdatePlayerLocation(ctx, pos, dir)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "0,0,0", "player position as x,y,z")
	cmd.Flags().StringVar(&facing, "facing", "1,0,0", "player facing as x,y,z")
	return cmd
}

func bridgeInteractCmd(opts *bridgeOptions) *cobra.Command {
	var action, kind string
	cmd := &cobra.Command{
		Use:   "interact <npc-id>",
		Short: "Trigger an interaction with an NPC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return callBridge(cmd, opts, func(ctx context.Context, c *gameserver.Client) (any, error) {
				return c.TriggerInteraction(ctx, args[0], action, kind)
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", "greet", "player action passed to the NPC")
	cmd.Flags().StringVar(&kind, "type", "", "interaction type; empty means dialogue")
	return cmd
}

func bridgeTalkCmd(opts *bridgeOptions) *cobra.Command {
	var topic string
	cmd := &cobra.Command{
		Use:   "talk <npc-id>",
		Short: "Open a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return callBridge(cmd, opts, func(ctx context.Context, c *gameserver.Client) (any, error) {
				return c.StartConversation(ctx, args[0], topic)
			})
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "opening topic")
	return cmd
}

func bridgeChooseCmd(opts *bridgeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "choose <index|text>",
		Short: "Select a dialogue choice by index or by its text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return callBridge(cmd, opts, func(ctx context.Context, c *gameserver.Client) (any, error) {
				if i, err := strconv.Atoi(args[0]); err == nil {
					return c.SelectChoice(ctx, i)
				}
				return c.Call(ctx, gameserver.MethodSelectChoice, map[string]any{"text": args[0]})
			})
		},
	}
}

func bridgeSayCmd(opts *bridgeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "say <message>",
		Short: "Send a free-form player line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := strings.Join(args, " ")
			return callBridge(cmd, opts, func(ctx context.Context, c *gameserver.Client) (any, error) {
				return c.Call(ctx, gameserver.MethodSubmitPlayerMessage, map[string]any{"message": msg})
			})
		},
	}
}

func bridgeEndCmd(opts *bridgeOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "end",
		Short: "End the open conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return callBridge(cmd, opts, func(ctx context.Context, c *gameserver.Client) (any, error) {
				return c.EndConversation(ctx, reason)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "end reason; defaults to player_choice")
	return cmd
}

func bridgeStateCmd(opts *bridgeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the open conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return callBridge(cmd, opts, func(ctx context.Context, c *gameserver.Client) (any, error) {
				return c.DialogueState(ctx)
			})
		},
	}
}

func bridgeEventsCmd(opts *bridgeOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Drain buffered host events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return callBridge(cmd, opts, func(ctx context.Context, c *gameserver.Client) (any, error) {
				return c.DrainEvents(ctx, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum events; 0 drains everything")
	return cmd
}
