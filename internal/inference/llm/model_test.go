package llm_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/npcfleet/internal/inference"
	"github.com/cory-johannsen/npcfleet/internal/inference/llm"
)

// canned replies with reply and records every completion it serves.
type canned struct {
	mu    sync.Mutex
	reply string
	err   error
	seen  []llm.Completion
}

func (c *canned) Complete(_ context.Context, comp llm.Completion) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, comp)
	return c.reply, c.err
}

func newModel(reply string) (*llm.Model, *canned) {
	c := &canned{reply: reply}
	return llm.New(c, llm.Options{Model: "test-model", Temperature: 0.4}, zap.NewNop()), c
}

func TestGenerateDialogue_ParsesFencedJSON(t *testing.T) {
	m, c := newModel("Sure.\n```json\n{\"response\": \" Well met. \", \"emotional_tone\": \"Friendly\", \"suggested_player_responses\": [\"Hi\"], \"confidence\": 0.9}\n```")
	resp, err := m.GenerateDialogue(context.Background(), inference.DialogueRequest{
		Faction:        "Ashvattha",
		NPCID:          "n1",
		EmotionalState: map[string]float64{"trust": 0.5},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Well met.", resp.Response)
	assert.Equal(t, "friendly", resp.EmotionalTone)
	assert.Equal(t, []string{"Hi"}, resp.SuggestedPlayerResponses)
	assert.InDelta(t, 0.9, resp.Confidence, 1e-9)
	assert.Equal(t, map[string]float64{"trust": 0.5}, resp.UpdatedEmotionalState)

	require.Len(t, c.seen, 1)
	comp := c.seen[0]
	assert.Equal(t, "test-model", comp.Model)
	assert.Equal(t, 512, comp.MaxTokens)
	assert.InDelta(t, 0.4, comp.Temperature, 1e-9)
	assert.Contains(t, comp.System, "Ashvattha")
	assert.Contains(t, comp.Prompt, "trust=0.50")
	assert.Contains(t, comp.Prompt, "Greet them")
}

func TestGenerateDialogue_Defaults(t *testing.T) {
	m, _ := newModel(`{"response": "Hm."}`)
	resp, err := m.GenerateDialogue(context.Background(), inference.DialogueRequest{PlayerMessage: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "neutral", resp.EmotionalTone)
	assert.InDelta(t, 0.5, resp.Confidence, 1e-9)
}

func TestGenerateDialogue_Malformed(t *testing.T) {
	for name, reply := range map[string]string{
		"prose only":     "I cannot answer that.",
		"broken json":    `{"response": "hi"`,
		"empty response": `{"response": "  ", "emotional_tone": "neutral"}`,
		"wrong type":     `{"response": 7}`,
	} {
		t.Run(name, func(t *testing.T) {
			m, _ := newModel(reply)
			_, err := m.GenerateDialogue(context.Background(), inference.DialogueRequest{})
			assert.ErrorIs(t, err, inference.ErrMalformedReply)
		})
	}
}

func TestDecideBehavior_ValidatesAction(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	c := &canned{reply: `{"selected_action": "dance", "confidence": 0.8, "reasoning": "fun"}`}
	m := llm.New(c, llm.Options{Model: "test-model"}, zap.New(core))

	_, err := m.DecideBehavior(context.Background(), inference.BehaviorRequest{AvailableActions: []string{"patrol", "work"}})
	assert.ErrorIs(t, err, inference.ErrMalformedReply)
	assert.Equal(t, 1, logs.FilterMessage("model chose an action that was not offered").Len())
}

func TestDecideBehavior_Success(t *testing.T) {
	m, c := newModel(`{"selected_action": "work", "confidence": 1.4, "reasoning": "busy day",
		"action_confidences": [{"action": "work", "confidence": 0.7}, {"action": "fly", "confidence": 0.3}]}`)
	resp, err := m.DecideBehavior(context.Background(), inference.BehaviorRequest{
		Faction:          "Vaikuntha",
		NPCType:          "Worker",
		Situation:        "morning shift",
		AvailableActions: []string{"patrol", "work"},
		WorldState:       map[string]float64{"fear": 0.1, "distance": 4},
	})
	require.NoError(t, err)
	assert.Equal(t, "work", resp.SelectedAction)
	assert.Equal(t, "busy day", resp.Reasoning)
	assert.Equal(t, []inference.ActionConfidence{{Action: "work", Confidence: 0.7}}, resp.ActionConfidences)

	prompt := c.seen[0].Prompt
	assert.Contains(t, prompt, "Offered actions: patrol, work")
	assert.Contains(t, prompt, "distance=4.00, fear=0.10")
	assert.Contains(t, c.seen[0].System, "Vaikuntha")
}

func TestDecideBehavior_ConfidenceFallback(t *testing.T) {
	m, _ := newModel(`{"selected_action": "patrol", "confidence": 1.4}`)
	resp, err := m.DecideBehavior(context.Background(), inference.BehaviorRequest{AvailableActions: []string{"patrol"}})
	require.NoError(t, err)
	assert.Equal(t, []inference.ActionConfidence{{Action: "patrol", Confidence: 1}}, resp.ActionConfidences)
}

func TestDecideBehavior_NoActions(t *testing.T) {
	m, c := newModel(`{}`)
	_, err := m.DecideBehavior(context.Background(), inference.BehaviorRequest{})
	assert.ErrorIs(t, err, inference.ErrMalformedReply)
	assert.Empty(t, c.seen, "no completion is requested without actions")
}

func TestCompleterError_Propagates(t *testing.T) {
	boom := errors.New("provider down")
	c := &canned{err: boom}
	m := llm.New(c, llm.Options{}, zap.NewNop())
	_, err := m.GenerateDialogue(context.Background(), inference.DialogueRequest{})
	assert.ErrorIs(t, err, boom)
	_, err = m.DecideBehavior(context.Background(), inference.BehaviorRequest{AvailableActions: []string{"work"}})
	assert.ErrorIs(t, err, boom)
}

func TestCompleterFunc(t *testing.T) {
	f := llm.CompleterFunc(func(_ context.Context, c llm.Completion) (string, error) {
		return `{"response": "` + c.Model + `"}`, nil
	})
	m := llm.New(f, llm.Options{Model: "echo"}, zap.NewNop())
	resp, err := m.GenerateDialogue(context.Background(), inference.DialogueRequest{})
	require.NoError(t, err)
	assert.Equal(t, "echo", resp.Response)
}

func TestPrompts(t *testing.T) {
	assert.Contains(t, llm.DialogueSystemPrompt("unknown"), "no faction loyalty")
	assert.Contains(t, llm.DialogueSystemPrompt("YugaStriders"), "Yuga Striders")

	p := llm.DialoguePrompt(inference.DialogueRequest{
		PlayerMessage: "Any news?",
		Context:       "greeting trade",
		RecentEvents:  []string{"storm", "raid"},
		Urgency:       0.75,
	})
	assert.Contains(t, p, "Situation: greeting trade")
	assert.Contains(t, p, "Recent events: storm; raid")
	assert.Contains(t, p, "Urgency: 0.75")
	assert.Contains(t, p, `The player says: "Any news?"`)
	assert.Contains(t, p, "feelings toward the player: none")
}

func TestProperty_SelectedActionAlwaysOffered(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		offered := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z_]{1,8}`), 1, 5, rapid.ID[string]).Draw(rt, "offered")
		chosen := rapid.StringMatching(`[a-z_]{1,8}`).Draw(rt, "chosen")
		m, _ := newModel(`{"selected_action": "` + chosen + `"}`)
		resp, err := m.DecideBehavior(context.Background(), inference.BehaviorRequest{AvailableActions: offered})
		if err != nil {
			assert.ErrorIs(rt, err, inference.ErrMalformedReply)
			assert.False(rt, inference.ContainsAction(offered, chosen))
			return
		}
		assert.True(rt, inference.ContainsAction(offered, resp.SelectedAction))
	})
}
