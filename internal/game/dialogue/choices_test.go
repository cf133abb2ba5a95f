package dialogue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/npcfleet/internal/game/dialogue"
	"github.com/cory-johannsen/npcfleet/internal/game/npc"
)

var allChoiceTypes = []dialogue.ChoiceType{
	dialogue.ChoiceNeutral, dialogue.ChoiceDiplomatic, dialogue.ChoiceAggressive,
	dialogue.ChoicePhilosophical, dialogue.ChoiceLogical, dialogue.ChoiceSupportive,
	dialogue.ChoiceQuestioning, dialogue.ChoiceRespectful, dialogue.ChoiceDismissive,
	dialogue.ChoiceEmphatic, dialogue.ChoiceHesitant, dialogue.ChoiceChallenging,
	dialogue.ChoiceRebellious, dialogue.ChoiceEfficiencyFocused, dialogue.ChoicePoliteExit,
	dialogue.ChoicePersuasion, dialogue.ChoiceIntimidation, dialogue.ChoiceKnowledge,
	dialogue.ChoiceHelpful, dialogue.ChoiceRude, dialogue.ChoiceInsulting,
}

func neutralPersonality() npc.Personality {
	return npc.FactionPersonality(npc.FactionNeutral)
}

func TestChoiceImpact_Table(t *testing.T) {
	p := neutralPersonality()
	cases := []struct {
		t    dialogue.ChoiceType
		f    npc.Faction
		want float64
	}{
		{dialogue.ChoiceRespectful, npc.FactionNeutral, 0.10},
		{dialogue.ChoiceHelpful, npc.FactionNeutral, 0.15},
		{dialogue.ChoiceSupportive, npc.FactionYugaStriders, 0.15},
		{dialogue.ChoiceRude, npc.FactionNeutral, -0.20},
		{dialogue.ChoiceInsulting, npc.FactionVaikuntha, -0.25},
		{dialogue.ChoiceDiplomatic, npc.FactionNeutral, 0.08},
		{dialogue.ChoiceQuestioning, npc.FactionNeutral, 0.02},
		{dialogue.ChoiceEmphatic, npc.FactionNeutral, 0},
		{dialogue.ChoicePhilosophical, npc.FactionAshvattha, 0},
	}
	for _, tc := range cases {
		t.Run(string(tc.t)+"/"+tc.f.String(), func(t *testing.T) {
			assert.InDelta(t, tc.want, dialogue.ChoiceImpact(tc.t, tc.f, p), 1e-9)
		})
	}
}

func TestChoiceImpact_AggressiveNPCHalvesAggression(t *testing.T) {
	p := neutralPersonality()
	p.Aggressiveness = 0.7
	assert.InDelta(t, -0.10, dialogue.ChoiceImpact(dialogue.ChoiceAggressive, npc.FactionNeutral, p), 1e-9)
	p.Aggressiveness = 0.6
	assert.InDelta(t, -0.20, dialogue.ChoiceImpact(dialogue.ChoiceAggressive, npc.FactionNeutral, p), 1e-9)
}

func TestPredictChoiceOutcome_UsesDeclaredImpactForUnlistedTypes(t *testing.T) {
	p := neutralPersonality()
	cases := []struct {
		ch   dialogue.Choice
		f    npc.Faction
		want float64
	}{
		{dialogue.Choice{Type: dialogue.ChoicePhilosophical, Impact: 0.10}, npc.FactionAshvattha, 0.15},
		{dialogue.Choice{Type: dialogue.ChoiceLogical, Impact: 0.10}, npc.FactionVaikuntha, 0.13},
		{dialogue.Choice{Type: dialogue.ChoiceRebellious, Impact: 0.10}, npc.FactionYugaStriders, 0.12},
		{dialogue.Choice{Type: dialogue.ChoiceRebellious, Impact: 0.10}, npc.FactionVaikuntha, 0.10},
		{dialogue.Choice{Type: dialogue.ChoiceQuestioning, Impact: 0.05}, npc.FactionNeutral, 0.02},
		{dialogue.Choice{Type: dialogue.ChoiceEmphatic, Impact: 3}, npc.FactionNeutral, 1},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, dialogue.PredictChoiceOutcome(tc.ch, tc.f, p), 1e-9, "%s on %s", tc.ch.Type, tc.f)
	}
}

func TestChoiceImpact_Bounded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ct := rapid.SampledFrom(allChoiceTypes).Draw(rt, "type")
		f := rapid.SampledFrom(npc.AllFactions()).Draw(rt, "faction")
		p := npc.Personality{Aggressiveness: rapid.Float64Range(0, 1).Draw(rt, "aggr")}
		declared := rapid.Float64Range(-5, 5).Draw(rt, "declared")

		impact := dialogue.ChoiceImpact(ct, f, p)
		assert.GreaterOrEqual(rt, impact, -1.0)
		assert.LessOrEqual(rt, impact, 1.0)
		pred := dialogue.PredictChoiceOutcome(dialogue.Choice{Type: ct, Impact: declared}, f, p)
		assert.GreaterOrEqual(rt, pred, -1.0)
		assert.LessOrEqual(rt, pred, 1.0)
	})
}

func TestFactionChoices(t *testing.T) {
	assert.Empty(t, dialogue.FactionChoices(npc.FactionNeutral))
	for _, f := range []npc.Faction{npc.FactionAshvattha, npc.FactionVaikuntha, npc.FactionYugaStriders} {
		assert.Len(t, dialogue.FactionChoices(f), 2, f.String())
	}
	v := dialogue.FactionChoices(npc.FactionVaikuntha)
	assert.Equal(t, dialogue.ChoiceEfficiencyFocused, v[1].Type)
	assert.InDelta(t, 0.12, v[1].Impact, 1e-9)
}

func TestResponseChoices(t *testing.T) {
	assert.Empty(t, dialogue.ResponseChoices("Lovely weather."))

	ask := dialogue.ResponseChoices("May I ask you something?")
	require.Len(t, ask, 1)
	assert.Equal(t, dialogue.ChoiceHelpful, ask[0].Type)

	dis := dialogue.ResponseChoices("I disagree entirely.")
	require.Len(t, dis, 2)
	assert.Equal(t, dialogue.ChoiceDiplomatic, dis[0].Type)
	assert.InDelta(t, 0.08, dis[0].Impact, 1e-9)
	assert.Equal(t, dialogue.ChoiceChallenging, dis[1].Type)
	assert.InDelta(t, -0.05, dis[1].Impact, 1e-9)
}

func TestPopulateChoiceMetadata_MarksChecks(t *testing.T) {
	p := neutralPersonality()
	cases := map[dialogue.ChoiceType]float64{
		dialogue.ChoicePersuasion:    0.6,
		dialogue.ChoiceIntimidation:  0.7,
		dialogue.ChoicePhilosophical: 0.5,
	}
	for ct, diff := range cases {
		ch := dialogue.PopulateChoiceMetadata(dialogue.Choice{Text: "x", Type: ct}, npc.FactionNeutral, p)
		assert.True(t, ch.RequiresCheck, string(ct))
		assert.InDelta(t, diff, ch.CheckDifficulty, 1e-9)
	}
	plain := dialogue.PopulateChoiceMetadata(dialogue.Choice{Text: "x", Type: dialogue.ChoiceRespectful}, npc.FactionNeutral, p)
	assert.False(t, plain.RequiresCheck)
	assert.NotEmpty(t, plain.ExpectedResponse)
	assert.InDelta(t, 0.10, plain.Impact, 1e-9)
}

func TestValidateChoiceAvailability(t *testing.T) {
	gated := dialogue.Choice{Type: dialogue.ChoiceIntimidation, RequiresCheck: true, CheckType: "intimidation", CheckDifficulty: 0.7}

	ok := dialogue.ValidateChoiceAvailability(gated, 0.5, npc.Relationship{Trust: 1, Respect: 1})
	assert.True(t, ok.Available)

	no := dialogue.ValidateChoiceAvailability(gated, 0.5, npc.Relationship{Trust: 0.5, Respect: 0.5})
	assert.False(t, no.Available)
	assert.Contains(t, no.UnavailableReason, "intimidation")

	free := dialogue.ValidateChoiceAvailability(dialogue.Choice{Type: dialogue.ChoiceNeutral}, 0, npc.Relationship{})
	assert.True(t, free.Available)
}

func TestGenerateChoices_Order(t *testing.T) {
	chs := dialogue.GenerateChoices(dialogue.ChoiceInput{
		Faction:      npc.FactionYugaStriders,
		Personality:  npc.FactionPersonality(npc.FactionYugaStriders),
		Relationship: npc.DefaultRelationship(),
		Response:     "You are wrong about that.",
		PlayerSkill:  0.5,
		MaxChoices:   10,
	})
	var types []dialogue.ChoiceType
	for _, ch := range chs {
		types = append(types, ch.Type)
	}
	assert.Equal(t, []dialogue.ChoiceType{
		dialogue.ChoiceNeutral,
		dialogue.ChoiceQuestioning,
		dialogue.ChoiceSupportive,
		dialogue.ChoiceRebellious,
		dialogue.ChoiceDiplomatic,
		dialogue.ChoiceChallenging,
		dialogue.ChoicePoliteExit,
	}, types)
	assert.InDelta(t, 0.12, chs[3].Impact, 1e-9)
}

func TestGenerateChoices_Suggestions(t *testing.T) {
	chs := dialogue.GenerateChoices(dialogue.ChoiceInput{
		Faction:     npc.FactionNeutral,
		Personality: neutralPersonality(),
		Suggested:   []string{"Where is the market?", "Thank you kindly.", "Goodbye.", ""},
		PlayerSkill: 0.5,
		MaxChoices:  10,
	})
	texts := make([]string, len(chs))
	for i, ch := range chs {
		texts[i] = ch.Text
	}
	assert.Equal(t, []string{
		dialogue.ContinueText, dialogue.QuestionText, "Where is the market?", "Thank you kindly.", dialogue.ExitText,
	}, texts)
	assert.Equal(t, dialogue.ChoiceRespectful, chs[3].Type)
}

func TestTruncateChoices_KeepsExitLast(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(rt, "n")
		exitAt := rapid.IntRange(-1, n-1).Draw(rt, "exitAt")
		limit := rapid.IntRange(1, 8).Draw(rt, "limit")
		chs := make([]dialogue.Choice, n)
		for i := range chs {
			chs[i] = dialogue.Choice{Text: string(rune('a' + i)), Type: dialogue.ChoiceNeutral}
		}
		if exitAt >= 0 {
			chs[exitAt] = dialogue.Choice{Text: dialogue.ExitText, Type: dialogue.ChoicePoliteExit}
		}

		out := dialogue.TruncateChoices(chs, limit)
		assert.LessOrEqual(rt, len(out), limit)
		if exitAt >= 0 {
			require.NotEmpty(rt, out)
			assert.Equal(rt, dialogue.ChoicePoliteExit, out[len(out)-1].Type)
		}
		for _, ch := range out[:max(len(out)-1, 0)] {
			assert.NotEqual(rt, dialogue.ChoicePoliteExit, ch.Type)
		}
	})
}

func TestClassifyText(t *testing.T) {
	cases := map[string]dialogue.ChoiceType{
		"Farewell, friend":          dialogue.ChoicePoliteExit,
		"You fool":                  dialogue.ChoiceInsulting,
		"Pay up or else":            dialogue.ChoiceIntimidation,
		"Let me help":               dialogue.ChoiceHelpful,
		"Thank you":                 dialogue.ChoiceRespectful,
		"Where does this road go?":  dialogue.ChoiceQuestioning,
		"The weather is fine today": dialogue.ChoiceNeutral,
	}
	for text, want := range cases {
		assert.Equal(t, want, dialogue.ClassifyText(text), text)
	}
}

func TestParseTone(t *testing.T) {
	cases := map[string]dialogue.Tone{
		"friendly":       dialogue.ToneFriendly,
		"Warm and Happy": dialogue.ToneFriendly,
		"angry":          dialogue.ToneHostile,
		"thoughtful":     dialogue.TonePhilosophical,
		"formal":         dialogue.ToneRespectful,
		"cold":           dialogue.ToneDismissive,
		"alarmed":        dialogue.ToneUrgent,
		"in a whisper":   dialogue.ToneSecretive,
		"":               dialogue.ToneNeutral,
		"indescribable":  dialogue.ToneNeutral,
	}
	for in, want := range cases {
		assert.Equal(t, want, dialogue.ParseTone(in), in)
	}
	assert.Equal(t, "philosophical", dialogue.TonePhilosophical.String())
}

func TestEndReason_String(t *testing.T) {
	assert.Equal(t, "player_choice", dialogue.EndPlayerChoice.String())
	assert.Equal(t, "npc_decision", dialogue.EndNPCDecision.String())
	assert.Equal(t, "timeout", dialogue.EndTimeout.String())
	assert.Equal(t, "interrupted", dialogue.EndInterrupted.String())
	assert.Equal(t, "error", dialogue.EndError.String())
}

func TestParseEndReason(t *testing.T) {
	for _, r := range []dialogue.EndReason{
		dialogue.EndPlayerChoice, dialogue.EndNPCDecision, dialogue.EndTimeout,
		dialogue.EndInterrupted, dialogue.EndError,
	} {
		got, err := dialogue.ParseEndReason(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	_, err := dialogue.ParseEndReason("boredom")
	assert.Error(t, err)
}
