package gameserver

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/npcfleet/internal/game/dialogue"
	"github.com/cory-johannsen/npcfleet/internal/game/event"
	"github.com/cory-johannsen/npcfleet/internal/game/geom"
	"github.com/cory-johannsen/npcfleet/internal/game/npc"
)

// fields reads typed values out of a request Struct. A nil Struct behaves as
// an empty one.
type fields struct {
	m map[string]*structpb.Value
}

func fieldsOf(s *structpb.Struct) fields {
	return fields{m: s.GetFields()}
}

func (f fields) has(key string) bool {
	_, ok := f.m[key]
	return ok
}

func (f fields) str(key string) string {
	return f.m[key].GetStringValue()
}

func (f fields) num(key string) float64 {
	return f.m[key].GetNumberValue()
}

func (f fields) integer(key string) (int, error) {
	v := f.m[key]
	if v == nil {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return int(n.NumberValue), nil
}

// number reads a finite number. The error names key and is meant for invalid.
func (f fields) number(key string) (float64, error) {
	return numberOf(key, f.m[key])
}

func numberOf(key string, v *structpb.Value) (float64, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	if math.IsNaN(n.NumberValue) || math.IsInf(n.NumberValue, 0) {
		return 0, fmt.Errorf("%s must be finite", key)
	}
	return n.NumberValue, nil
}

// vec reads {"x":..,"y":..,"z":..}. An absent key and missing components are
// zero; anything else that is not a finite number is an error.
func (f fields) vec(key string) (geom.Vec3, error) {
	v, ok := f.m[key]
	if !ok {
		return geom.Vec3{}, nil
	}
	st, ok := v.GetKind().(*structpb.Value_StructValue)
	if !ok {
		return geom.Vec3{}, fmt.Errorf("%s must be an object with x, y and z", key)
	}
	var out [3]float64
	for i, axis := range []string{"x", "y", "z"} {
		c, ok := st.StructValue.GetFields()[axis]
		if !ok {
			continue
		}
		n, err := numberOf(key+"."+axis, c)
		if err != nil {
			return geom.Vec3{}, err
		}
		out[i] = n
	}
	return geom.Vec3{X: out[0], Y: out[1], Z: out[2]}, nil
}

// numberMap reads an object of numbers. An absent key is a nil map.
func (f fields) numberMap(key string) (map[string]float64, error) {
	v, ok := f.m[key]
	if !ok {
		return nil, nil
	}
	st, ok := v.GetKind().(*structpb.Value_StructValue)
	if !ok {
		return nil, fmt.Errorf("%s must be an object of numbers", key)
	}
	inner := st.StructValue.GetFields()
	if len(inner) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(inner))
	for k, c := range inner {
		n, err := numberOf(key+"."+k, c)
		if err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, nil
}

func vecValue(v geom.Vec3) map[string]any {
	return map[string]any{"x": v.X, "y": v.Y, "z": v.Z}
}

func npcView(c *npc.Controller) map[string]any {
	rel := c.Relationship()
	return map[string]any{
		"id":           c.ID(),
		"name":         c.Name(),
		"faction":      c.Faction().String(),
		"type":         c.Role().String(),
		"state":        c.State().String(),
		"position":     vecValue(c.Position()),
		"distance":     finite(c.DistanceToPlayer()),
		"active":       c.IsActive(),
		"visible":      c.IsVisible(),
		"in_view":      c.InPlayerView(),
		"can_interact": c.CanInteract(),
		"relationship": map[string]any{
			"trust":     rel.Trust,
			"respect":   rel.Respect,
			"fear":      rel.Fear,
			"affection": rel.Affection,
		},
	}
}

func choiceView(ch dialogue.Choice) map[string]any {
	v := map[string]any{
		"text":      ch.Text,
		"type":      string(ch.Type),
		"impact":    ch.Impact,
		"available": ch.Available,
	}
	if ch.UnavailableReason != "" {
		v["unavailable_reason"] = ch.UnavailableReason
	}
	return v
}

func dialogueView(sys *dialogue.System) map[string]any {
	view := map[string]any{
		"active": false,
		"state":  sys.State().String(),
	}
	d, ok := sys.Active()
	if !ok {
		return view
	}
	choices := make([]any, 0, len(d.Choices))
	for _, ch := range d.Choices {
		choices = append(choices, choiceView(ch))
	}
	var last map[string]any
	if n := len(d.Exchanges); n > 0 {
		ex := d.Exchanges[n-1]
		last = map[string]any{
			"speaker": ex.Speaker,
			"message": ex.Message,
			"tone":    ex.Tone.String(),
		}
	}
	view["active"] = true
	view["npc_id"] = d.NPCID
	view["npc_name"] = d.NPCName
	view["npc_faction"] = d.NPCFaction
	view["topic"] = d.Topic
	view["exchanges"] = len(d.Exchanges)
	view["relationship_change"] = d.RelationshipChange
	view["choices"] = choices
	if last != nil {
		view["last_exchange"] = last
	}
	return view
}

// eventView renders e as JSON-shaped data so any payload fits a Struct.
func eventView(e event.Event) (map[string]any, error) {
	body, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", e.Type, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", e.Type, err)
	}
	return map[string]any{
		"type":     string(e.Type),
		"category": e.Category().String(),
		"time":     e.Time.UTC().Format(time.RFC3339Nano),
		"payload":  payload,
	}, nil
}

// finite maps the unset distance sentinel onto a value JSON can carry.
func finite(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return -1
	}
	return v
}
