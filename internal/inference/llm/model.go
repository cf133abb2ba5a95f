// Package llm implements the inference capability on a hosted language
// model. Model owns prompting and reply parsing; provider subpackages supply
// a Completer that performs one text completion.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/npcfleet/internal/inference"
)

// Completion is one prompt sent to a provider.
type Completion struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Completer performs a single non-streaming text completion.
//
// Implementations MUST be safe for concurrent use and honour ctx.
type Completer interface {
	Complete(ctx context.Context, c Completion) (string, error)
}

// CompleterFunc adapts a function into a Completer.
type CompleterFunc func(ctx context.Context, c Completion) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, c Completion) (string, error) {
	return f(ctx, c)
}

// Options tune the requests a Model sends.
type Options struct {
	// Model is the provider model name.
	Model string
	// MaxTokens caps the reply; <= 0 uses 512.
	MaxTokens int
	// Temperature is passed through unchanged.
	Temperature float64
}

// Model is an inference.Service that prompts a language model for strict
// JSON and validates the reply.
type Model struct {
	completer Completer
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a Model.
//
// Precondition: completer and logger must be non-nil.
func New(completer Completer, opts Options, logger *zap.Logger) *Model {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 512
	}
	return &Model{
		completer: completer,
		opts:      opts,
		logger:    logger.With(zap.String("model", opts.Model)),
		now:       time.Now,
	}
}

type dialogueReply struct {
	Response                 string             `json:"response"`
	EmotionalTone            string             `json:"emotional_tone"`
	SuggestedPlayerResponses []string           `json:"suggested_player_responses"`
	UpdatedEmotionalState    map[string]float64 `json:"updated_emotional_state"`
	Confidence               *float64           `json:"confidence"`
}

type behaviorReply struct {
	SelectedAction    string                       `json:"selected_action"`
	Confidence        *float64                     `json:"confidence"`
	Reasoning         string                       `json:"reasoning"`
	ActionConfidences []inference.ActionConfidence `json:"action_confidences"`
}

// GenerateDialogue implements inference.Service.
//
// Postcondition: On success Response is non-empty and Confidence is in [0,1].
func (m *Model) GenerateDialogue(ctx context.Context, req inference.DialogueRequest) (inference.DialogueResponse, error) {
	start := m.now()
	raw, err := m.complete(ctx, DialogueSystemPrompt(req.Faction), DialoguePrompt(req))
	if err != nil {
		return inference.DialogueResponse{}, err
	}
	var reply dialogueReply
	if err := decodeReply(raw, &reply); err != nil {
		m.logger.Warn("unparseable dialogue reply", zap.String("npc_id", req.NPCID), zap.Error(err))
		return inference.DialogueResponse{}, err
	}
	if strings.TrimSpace(reply.Response) == "" {
		return inference.DialogueResponse{}, fmt.Errorf("llm: empty response field: %w", inference.ErrMalformedReply)
	}
	tone := strings.ToLower(strings.TrimSpace(reply.EmotionalTone))
	if tone == "" {
		tone = "neutral"
	}
	state := reply.UpdatedEmotionalState
	if state == nil {
		state = req.EmotionalState
	}
	return inference.DialogueResponse{
		Response:                 strings.TrimSpace(reply.Response),
		EmotionalTone:            tone,
		SuggestedPlayerResponses: reply.SuggestedPlayerResponses,
		UpdatedEmotionalState:    state,
		Confidence:               confidenceOr(reply.Confidence, 0.5),
		InferenceTime:            m.now().Sub(start),
		Success:                  true,
	}, nil
}

// DecideBehavior implements inference.Service.
//
// Postcondition: On success SelectedAction is one of req.AvailableActions.
func (m *Model) DecideBehavior(ctx context.Context, req inference.BehaviorRequest) (inference.BehaviorResponse, error) {
	if len(req.AvailableActions) == 0 {
		return inference.BehaviorResponse{}, fmt.Errorf("llm: no actions offered: %w", inference.ErrMalformedReply)
	}
	start := m.now()
	raw, err := m.complete(ctx, BehaviorSystemPrompt(req.Faction), BehaviorPrompt(req))
	if err != nil {
		return inference.BehaviorResponse{}, err
	}
	var reply behaviorReply
	if err := decodeReply(raw, &reply); err != nil {
		m.logger.Warn("unparseable behavior reply", zap.String("npc_type", req.NPCType), zap.Error(err))
		return inference.BehaviorResponse{}, err
	}
	action := strings.TrimSpace(reply.SelectedAction)
	if !inference.ContainsAction(req.AvailableActions, action) {
		m.logger.Warn("model chose an action that was not offered",
			zap.String("action", action),
			zap.Strings("offered", req.AvailableActions),
		)
		return inference.BehaviorResponse{}, fmt.Errorf("llm: action %q not offered: %w", action, inference.ErrMalformedReply)
	}
	confs := filterConfidences(reply.ActionConfidences, req.AvailableActions)
	if len(confs) == 0 {
		confs = []inference.ActionConfidence{{Action: action, Confidence: confidenceOr(reply.Confidence, 0.5)}}
	}
	return inference.BehaviorResponse{
		SelectedAction:    action,
		ActionConfidences: confs,
		Reasoning:         reply.Reasoning,
		InferenceTime:     m.now().Sub(start),
		Success:           true,
	}, nil
}

func (m *Model) complete(ctx context.Context, system, prompt string) (string, error) {
	raw, err := m.completer.Complete(ctx, Completion{
		Model:       m.opts.Model,
		System:      system,
		Prompt:      prompt,
		MaxTokens:   m.opts.MaxTokens,
		Temperature: m.opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("llm: completion: %w", err)
	}
	return raw, nil
}

// decodeReply extracts the first JSON object from raw, tolerating code
// fences and prose around it, and decodes it into v.
func decodeReply(raw string, v any) error {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return fmt.Errorf("llm: no JSON object in reply: %w", inference.ErrMalformedReply)
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), v); err != nil {
		return fmt.Errorf("llm: %v: %w", err, inference.ErrMalformedReply)
	}
	return nil
}

func confidenceOr(v *float64, def float64) float64 {
	c := def
	if v != nil {
		c = *v
	}
	return max(0, min(1, c))
}

// filterConfidences keeps scores for offered actions only, clamped to [0,1].
func filterConfidences(in []inference.ActionConfidence, offered []string) []inference.ActionConfidence {
	var out []inference.ActionConfidence
	for _, ac := range in {
		if inference.ContainsAction(offered, ac.Action) {
			ac.Confidence = max(0, min(1, ac.Confidence))
			out = append(out, ac)
		}
	}
	return out
}
