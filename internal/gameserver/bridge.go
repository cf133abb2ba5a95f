package gameserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/npcfleet/internal/game/dialogue"
	"github.com/cory-johannsen/npcfleet/internal/game/geom"
	"github.com/cory-johannsen/npcfleet/internal/game/npc"
)

// HostBridgeServiceName is the fully qualified gRPC service name.
const HostBridgeServiceName = "npcfleet.v1.HostBridge"

// Host bridge method names.
const (
	MethodUpdatePlayerLocation = "UpdatePlayerLocation"
	MethodTriggerInteraction   = "TriggerInteraction"
	MethodSpawnNPC             = "SpawnNPC"
	MethodDestroyNPC           = "DestroyNPC"
	MethodStartConversation    = "StartConversation"
	MethodSelectChoice         = "SelectChoice"
	MethodSubmitPlayerMessage  = "SubmitPlayerMessage"
	MethodEndConversation      = "EndConversation"
	MethodListNPCs             = "ListNPCs"
	MethodDialogueState        = "DialogueState"
	MethodDrainEvents          = "DrainEvents"
)

// HostBridgeServer is the server API of the host bridge. Every method takes
// and returns a structpb.Struct so hosts in any language can call it without
// generated stubs.
type HostBridgeServer interface {
	UpdatePlayerLocation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TriggerInteraction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SpawnNPC(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DestroyNPC(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartConversation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SelectChoice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitPlayerMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EndConversation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListNPCs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DialogueState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DrainEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type bridgeCall func(HostBridgeServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call bridgeCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(HostBridgeServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + HostBridgeServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(HostBridgeServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// HostBridgeServiceDesc describes the host bridge to grpc.Server.
var HostBridgeServiceDesc = grpc.ServiceDesc{
	ServiceName: HostBridgeServiceName,
	HandlerType: (*HostBridgeServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodUpdatePlayerLocation, HostBridgeServer.UpdatePlayerLocation),
		unaryMethod(MethodTriggerInteraction, HostBridgeServer.TriggerInteraction),
		unaryMethod(MethodSpawnNPC, HostBridgeServer.SpawnNPC),
		unaryMethod(MethodDestroyNPC, HostBridgeServer.DestroyNPC),
		unaryMethod(MethodStartConversation, HostBridgeServer.StartConversation),
		unaryMethod(MethodSelectChoice, HostBridgeServer.SelectChoice),
		unaryMethod(MethodSubmitPlayerMessage, HostBridgeServer.SubmitPlayerMessage),
		unaryMethod(MethodEndConversation, HostBridgeServer.EndConversation),
		unaryMethod(MethodListNPCs, HostBridgeServer.ListNPCs),
		unaryMethod(MethodDialogueState, HostBridgeServer.DialogueState),
		unaryMethod(MethodDrainEvents, HostBridgeServer.DrainEvents),
	},
	Metadata: "npcfleet/v1/host_bridge",
}

// RegisterHostBridgeServer registers srv on s.
func RegisterHostBridgeServer(s grpc.ServiceRegistrar, srv HostBridgeServer) {
	s.RegisterService(&HostBridgeServiceDesc, srv)
}

// HostBridge serves the host bridge by running every request as a command on
// the frame loop.
type HostBridge struct {
	sim    *Simulation
	loop   *FrameLoop
	events *HostEventBuffer
	logger *zap.Logger
}

var _ HostBridgeServer = (*HostBridge)(nil)

// NewHostBridge creates the bridge.
//
// Precondition: sim, loop and events must be non-nil.
func NewHostBridge(sim *Simulation, loop *FrameLoop, events *HostEventBuffer, logger *zap.Logger) *HostBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostBridge{sim: sim, loop: loop, events: events, logger: logger.Named("bridge")}
}

// run executes fn on the frame goroutine and converts its result.
func (b *HostBridge) run(ctx context.Context, method string, fn func(ctx context.Context) (map[string]any, error)) (*structpb.Struct, error) {
	start := time.Now()
	var out map[string]any
	err := b.loop.Submit(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil {
		st := toStatus(err)
		if st.Code() == codes.Internal || st.Code() == codes.Unavailable {
			b.logger.Error("bridge call failed", zap.String("method", method), zap.Error(err))
		} else {
			b.logger.Debug("bridge call rejected", zap.String("method", method), zap.Error(err))
		}
		return nil, st.Err()
	}
	if out == nil {
		out = map[string]any{}
	}
	res, err := structpb.NewStruct(out)
	if err != nil {
		b.logger.Error("encoding bridge reply", zap.String("method", method), zap.Error(err))
		return nil, status.Errorf(codes.Internal, "encoding reply: %v", err)
	}
	b.logger.Debug("bridge call", zap.String("method", method), zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// errInvalidArgument marks request decoding failures.
var errInvalidArgument = errors.New("invalid argument")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidArgument, fmt.Sprintf(format, args...))
}

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) *status.Status {
	code := codes.Internal
	switch {
	case errors.Is(err, errInvalidArgument),
		errors.Is(err, npc.ErrInvalidParams),
		errors.Is(err, dialogue.ErrInvalidChoice):
		code = codes.InvalidArgument
	case errors.Is(err, npc.ErrUnknownNPC),
		errors.Is(err, npc.ErrUnknownTemplate):
		code = codes.NotFound
	case errors.Is(err, npc.ErrDuplicateNPC):
		code = codes.AlreadyExists
	case errors.Is(err, npc.ErrPopulationCap):
		code = codes.ResourceExhausted
	case errors.Is(err, npc.ErrNotInteractable),
		errors.Is(err, npc.ErrInvalidTransition),
		errors.Is(err, dialogue.ErrNoActiveDialogue),
		errors.Is(err, dialogue.ErrWrongState),
		errors.Is(err, dialogue.ErrChoiceUnavailable),
		errors.Is(err, dialogue.ErrNPCMismatch),
		errors.Is(err, dialogue.ErrNPCUnavailable):
		code = codes.FailedPrecondition
	case errors.Is(err, ErrLoopStopped):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}
	return status.New(code, err.Error())
}

// UpdatePlayerLocation accepts {position, direction, camera_fov?}. A camera
// field of view enables frustum culling from the player's eye.
func (b *HostBridge) UpdatePlayerLocation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := fieldsOf(in)
	if !f.has("position") {
		return nil, toStatus(invalid("position is required")).Err()
	}
	pos, err := f.vec("position")
	if err != nil {
		return nil, toStatus(invalid("%v", err)).Err()
	}
	dir, err := f.vec("direction")
	if err != nil {
		return nil, toStatus(invalid("%v", err)).Err()
	}
	var camera *npc.Camera
	if f.has("camera_fov") {
		fov, err := f.number("camera_fov")
		if err != nil {
			return nil, toStatus(invalid("%v", err)).Err()
		}
		camera = &npc.Camera{Position: pos, Forward: dir, FOV: fov}
	}
	return b.run(ctx, MethodUpdatePlayerLocation, func(context.Context) (map[string]any, error) {
		b.sim.Fleet().UpdatePlayerLocation(pos, dir)
		if camera != nil {
			b.sim.SetCamera(camera)
		}
		return map[string]any{
			"interactable": len(b.sim.Fleet().GetInteractableNPCs()),
		}, nil
	})
}

// TriggerInteraction accepts {npc_id, action, type}. type defaults to the
// dialogue interaction.
func (b *HostBridge) TriggerInteraction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := fieldsOf(in)
	id := f.str("npc_id")
	if id == "" {
		return nil, toStatus(invalid("npc_id is required")).Err()
	}
	t := npc.InteractionDialogue
	if name := f.str("type"); name != "" {
		parsed, err := npc.ParseInteractionType(name)
		if err != nil {
			return nil, toStatus(invalid("%v", err)).Err()
		}
		t = parsed
	}
	action := f.str("action")
	return b.run(ctx, MethodTriggerInteraction, func(ctx context.Context) (map[string]any, error) {
		if err := b.sim.Fleet().TriggerPlayerInteraction(ctx, id, action, t); err != nil {
			return nil, err
		}
		c, ok := b.sim.Fleet().GetNPC(id)
		if !ok {
			return map[string]any{}, nil
		}
		return map[string]any{"state": c.State().String()}, nil
	})
}

// SpawnNPC accepts {npc_id, template_id, position, name?, faction?,
// personality?, relationship?, inactive?, hidden?}.
func (b *HostBridge) SpawnNPC(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := fieldsOf(in)
	pos, err := f.vec("position")
	if err != nil {
		return nil, toStatus(invalid("%v", err)).Err()
	}
	personality, err := f.numberMap("personality")
	if err != nil {
		return nil, toStatus(invalid("%v", err)).Err()
	}
	relationship, err := f.numberMap("relationship")
	if err != nil {
		return nil, toStatus(invalid("%v", err)).Err()
	}
	p := npc.SpawnParams{
		NPCID:        f.str("npc_id"),
		TemplateID:   f.str("template_id"),
		Transform:    geom.At(pos),
		Name:         f.str("name"),
		Personality:  personality,
		Relationship: relationship,
		Inactive:     f.m["inactive"].GetBoolValue(),
		Hidden:       f.m["hidden"].GetBoolValue(),
	}
	if name := f.str("faction"); name != "" {
		fac, err := npc.ParseFaction(name)
		if err != nil {
			return nil, toStatus(invalid("%v", err)).Err()
		}
		p.Faction = &fac
	}
	return b.run(ctx, MethodSpawnNPC, func(ctx context.Context) (map[string]any, error) {
		c, err := b.sim.Fleet().SpawnNPC(ctx, p)
		if err != nil {
			return nil, err
		}
		return npcView(c), nil
	})
}

// DestroyNPC accepts {npc_id, reason?}.
func (b *HostBridge) DestroyNPC(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := fieldsOf(in)
	id, reason := f.str("npc_id"), f.str("reason")
	if reason == "" {
		reason = "host"
	}
	return b.run(ctx, MethodDestroyNPC, func(ctx context.Context) (map[string]any, error) {
		if err := b.sim.Fleet().DestroyNPC(ctx, id, reason); err != nil {
			return nil, err
		}
		return map[string]any{"npcs": b.sim.Fleet().Count()}, nil
	})
}

// StartConversation accepts {npc_id, topic?}.
func (b *HostBridge) StartConversation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := fieldsOf(in)
	id, topic := f.str("npc_id"), f.str("topic")
	if id == "" {
		return nil, toStatus(invalid("npc_id is required")).Err()
	}
	return b.run(ctx, MethodStartConversation, func(ctx context.Context) (map[string]any, error) {
		if err := b.sim.Dialogue().StartConversation(ctx, id, topic); err != nil {
			return nil, err
		}
		return dialogueView(b.sim.Dialogue()), nil
	})
}

// SelectChoice accepts {index} or {text}.
func (b *HostBridge) SelectChoice(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := fieldsOf(in)
	if text := f.str("text"); text != "" {
		return b.run(ctx, MethodSelectChoice, func(ctx context.Context) (map[string]any, error) {
			if err := b.sim.Dialogue().SelectChoiceByText(ctx, text); err != nil {
				return nil, err
			}
			return dialogueView(b.sim.Dialogue()), nil
		})
	}
	index, err := f.integer("index")
	if err != nil {
		return nil, toStatus(invalid("%v", err)).Err()
	}
	return b.run(ctx, MethodSelectChoice, func(ctx context.Context) (map[string]any, error) {
		if err := b.sim.Dialogue().SelectChoice(ctx, index); err != nil {
			return nil, err
		}
		return dialogueView(b.sim.Dialogue()), nil
	})
}

// SubmitPlayerMessage accepts {message}.
func (b *HostBridge) SubmitPlayerMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	msg := fieldsOf(in).str("message")
	return b.run(ctx, MethodSubmitPlayerMessage, func(ctx context.Context) (map[string]any, error) {
		if err := b.sim.Dialogue().SubmitPlayerMessage(ctx, msg); err != nil {
			return nil, err
		}
		return dialogueView(b.sim.Dialogue()), nil
	})
}

// EndConversation accepts {reason?}; the default reason is player_choice.
func (b *HostBridge) EndConversation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	reason := dialogue.EndPlayerChoice
	if name := fieldsOf(in).str("reason"); name != "" {
		r, err := dialogue.ParseEndReason(name)
		if err != nil {
			return nil, toStatus(invalid("%v", err)).Err()
		}
		reason = r
	}
	return b.run(ctx, MethodEndConversation, func(ctx context.Context) (map[string]any, error) {
		if err := b.sim.Dialogue().EndConversation(ctx, reason); err != nil {
			return nil, err
		}
		return dialogueView(b.sim.Dialogue()), nil
	})
}

// ListNPCs accepts {faction?, state?} filters.
func (b *HostBridge) ListNPCs(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := fieldsOf(in)
	var (
		faction *npc.Faction
		state   *npc.State
	)
	if name := f.str("faction"); name != "" {
		fac, err := npc.ParseFaction(name)
		if err != nil {
			return nil, toStatus(invalid("%v", err)).Err()
		}
		faction = &fac
	}
	if name := f.str("state"); name != "" {
		st, err := npc.ParseState(name)
		if err != nil {
			return nil, toStatus(invalid("%v", err)).Err()
		}
		state = &st
	}
	return b.run(ctx, MethodListNPCs, func(context.Context) (map[string]any, error) {
		fleet := b.sim.Fleet()
		var cs []*npc.Controller
		switch {
		case faction != nil:
			cs = fleet.GetNPCsByFaction(*faction)
		case state != nil:
			cs = fleet.GetNPCsByState(*state)
		default:
			cs = fleet.NPCs()
		}
		views := make([]any, 0, len(cs))
		for _, c := range cs {
			if state != nil && c.State() != *state {
				continue
			}
			views = append(views, npcView(c))
		}
		stats := fleet.Stats()
		return map[string]any{
			"npcs":    views,
			"active":  stats.Active,
			"visible": stats.Visible,
			"frames":  float64(stats.Frames),
		}, nil
	})
}

// DialogueState returns the open conversation, if any.
func (b *HostBridge) DialogueState(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return b.run(ctx, MethodDialogueState, func(context.Context) (map[string]any, error) {
		return dialogueView(b.sim.Dialogue()), nil
	})
}

// DrainEvents accepts {limit?} and returns buffered events oldest first.
func (b *HostBridge) DrainEvents(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	limit := int(fieldsOf(in).num("limit"))
	drained := b.events.Drain(limit)
	views := make([]any, 0, len(drained))
	for _, e := range drained {
		v, err := eventView(e)
		if err != nil {
			b.logger.Warn("dropping unencodable event", zap.String("type", string(e.Type)), zap.Error(err))
			continue
		}
		views = append(views, v)
	}
	out, err := structpb.NewStruct(map[string]any{
		"events":    views,
		"remaining": b.events.Len(),
		"dropped":   float64(b.events.Dropped()),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding events: %v", err)
	}
	return out, nil
}
