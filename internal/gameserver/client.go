package gameserver

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/npcfleet/internal/game/geom"
)

// Client calls a HostBridge over a gRPC connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with in and returns the reply as plain Go values.
func (c *Client) Call(ctx context.Context, method string, in map[string]any) (map[string]any, error) {
	if in == nil {
		in = map[string]any{}
	}
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+HostBridgeServiceName+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// UpdatePlayerLocation reports the player transform.
func (c *Client) UpdatePlayerLocation(ctx context.Context, pos, dir geom.Vec3) (map[string]any, error) {
	return c.Call(ctx, MethodUpdatePlayerLocation, map[string]any{
		"position":  vecValue(pos),
		"direction": vecValue(dir),
	})
}

// SpawnNPC spawns npcID from templateID at pos.
func (c *Client) SpawnNPC(ctx context.Context, npcID, templateID string, pos geom.Vec3) (map[string]any, error) {
	return c.Call(ctx, MethodSpawnNPC, map[string]any{
		"npc_id":      npcID,
		"template_id": templateID,
		"position":    vecValue(pos),
	})
}

// TriggerInteraction interacts with npcID. An empty interactionType means dialogue.
func (c *Client) TriggerInteraction(ctx context.Context, npcID, action, interactionType string) (map[string]any, error) {
	return c.Call(ctx, MethodTriggerInteraction, map[string]any{
		"npc_id": npcID,
		"action": action,
		"type":   interactionType,
	})
}

// StartConversation opens a conversation with npcID.
func (c *Client) StartConversation(ctx context.Context, npcID, topic string) (map[string]any, error) {
	return c.Call(ctx, MethodStartConversation, map[string]any{"npc_id": npcID, "topic": topic})
}

// SelectChoice picks the choice at index.
func (c *Client) SelectChoice(ctx context.Context, index int) (map[string]any, error) {
	return c.Call(ctx, MethodSelectChoice, map[string]any{"index": index})
}

// EndConversation closes the open conversation with reason.
func (c *Client) EndConversation(ctx context.Context, reason string) (map[string]any, error) {
	return c.Call(ctx, MethodEndConversation, map[string]any{"reason": reason})
}

// ListNPCs returns the fleet.
func (c *Client) ListNPCs(ctx context.Context) ([]map[string]any, error) {
	out, err := c.Call(ctx, MethodListNPCs, nil)
	if err != nil {
		return nil, err
	}
	raw, _ := out["npcs"].([]any)
	npcs := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			npcs = append(npcs, m)
		}
	}
	return npcs, nil
}

// DialogueState returns the open conversation view.
func (c *Client) DialogueState(ctx context.Context) (map[string]any, error) {
	return c.Call(ctx, MethodDialogueState, nil)
}

// DrainEvents returns up to limit buffered events; limit <= 0 drains all.
func (c *Client) DrainEvents(ctx context.Context, limit int) ([]map[string]any, error) {
	out, err := c.Call(ctx, MethodDrainEvents, map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	raw, _ := out["events"].([]any)
	events := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			events = append(events, m)
		}
	}
	return events, nil
}
