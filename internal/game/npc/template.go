// Package npc implements the NPC simulation fleet: the per-NPC data model,
// immutable templates, the Controller that simulates a single NPC, and the
// Manager that owns, schedules, culls, and renders the population.
package npc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAIUpdateInterval is the behavior-model cadence when a template sets none.
const DefaultAIUpdateInterval = time.Second

// DefaultInteractionRange is used by the built-in templates.
const DefaultInteractionRange = 5.0

// Template defines a reusable NPC archetype. Templates are immutable once
// registered; the Manager stores and hands out copies.
type Template struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Faction     Faction     `yaml:"faction"`
	Role        Role        `yaml:"type"`
	Personality Personality `yaml:"personality"`

	MeshID    string `yaml:"mesh_id"`
	TextureID string `yaml:"texture_id"`

	BehaviorModelID string `yaml:"behavior_model_id"`
	DialogueModelID string `yaml:"dialogue_model_id"`

	InteractionRange   float64         `yaml:"interaction_range"`
	DefaultInteraction InteractionType `yaml:"default_interaction"`

	Topics    []string           `yaml:"topics"`
	Expertise map[string]float64 `yaml:"expertise"`
	Secrets   []string           `yaml:"secrets"`

	// AIUpdateInterval is a duration string (e.g. "1s", "750ms"). Empty means
	// DefaultAIUpdateInterval.
	AIUpdateInterval string `yaml:"ai_update_interval"`
}

// Validate checks that the template satisfies basic invariants.
//
// Precondition: t must not be nil.
// Postcondition: Returns nil iff ID and Name are non-empty, InteractionRange > 0,
// every personality trait and expertise value is in [0,1], and AIUpdateInterval
// is empty or a positive duration. Errors wrap ErrInvalidParams.
func (t *Template) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("npc template: id must not be empty: %w", ErrInvalidParams)
	}
	if t.Name == "" {
		return fmt.Errorf("npc template %q: name must not be empty: %w", t.ID, ErrInvalidParams)
	}
	if t.InteractionRange <= 0 {
		return fmt.Errorf("npc template %q: interaction_range must be > 0: %w", t.ID, ErrInvalidParams)
	}
	if t.Personality != t.Personality.Clamped() {
		return fmt.Errorf("npc template %q: personality traits must be in [0,1]: %w", t.ID, ErrInvalidParams)
	}
	for topic, v := range t.Expertise {
		if v < 0 || v > 1 {
			return fmt.Errorf("npc template %q: expertise %q must be in [0,1]: %w", t.ID, topic, ErrInvalidParams)
		}
	}
	if t.AIUpdateInterval != "" {
		d, err := time.ParseDuration(t.AIUpdateInterval)
		if err != nil {
			return fmt.Errorf("npc template %q: ai_update_interval %q is not a valid duration: %w", t.ID, t.AIUpdateInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("npc template %q: ai_update_interval must be positive: %w", t.ID, ErrInvalidParams)
		}
	}
	return nil
}

// UpdateInterval returns the parsed AIUpdateInterval or the default.
//
// Precondition: t has passed Validate.
func (t *Template) UpdateInterval() time.Duration {
	if t.AIUpdateInterval == "" {
		return DefaultAIUpdateInterval
	}
	d, err := time.ParseDuration(t.AIUpdateInterval)
	if err != nil || d <= 0 {
		return DefaultAIUpdateInterval
	}
	return d
}

// Clone returns a deep copy of t.
func (t *Template) Clone() *Template {
	c := *t
	c.Topics = append([]string(nil), t.Topics...)
	c.Secrets = append([]string(nil), t.Secrets...)
	if t.Expertise != nil {
		c.Expertise = make(map[string]float64, len(t.Expertise))
		for k, v := range t.Expertise {
			c.Expertise[k] = v
		}
	}
	return &c
}

// LoadTemplateFromBytes parses a single NPC template from raw YAML bytes.
//
// Precondition: data must be valid YAML for a single Template.
// Postcondition: Returns a validated *Template, or an error.
func LoadTemplateFromBytes(data []byte) (*Template, error) {
	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("parsing template YAML: %w", err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// LoadTemplates reads all *.yaml files in dir and returns the parsed templates.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns all templates in file-name order or an error on the
// first parse or validate failure; on error, the partial result is discarded.
func LoadTemplates(dir string) ([]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading npc dir %q: %w", dir, err)
	}

	var templates []*Template
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}

		tmpl, err := LoadTemplateFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		templates = append(templates, tmpl)
	}
	return templates, nil
}

// FactionPersonality returns the personality defaults of f.
func FactionPersonality(f Faction) Personality {
	switch f {
	case FactionAshvattha:
		return Personality{Aggressiveness: 0.2, Curiosity: 0.7, Trustfulness: 0.6, Helpfulness: 0.7, Intelligence: 0.8, Loyalty: 0.8}
	case FactionVaikuntha:
		return Personality{Aggressiveness: 0.3, Curiosity: 0.6, Trustfulness: 0.4, Helpfulness: 0.5, Intelligence: 0.9, Loyalty: 0.7}
	case FactionYugaStriders:
		return Personality{Aggressiveness: 0.6, Curiosity: 0.6, Trustfulness: 0.3, Helpfulness: 0.6, Intelligence: 0.6, Loyalty: 0.9}
	default:
		return Personality{Aggressiveness: 0.3, Curiosity: 0.5, Trustfulness: 0.5, Helpfulness: 0.5, Intelligence: 0.5, Loyalty: 0.5}
	}
}

var factionTopics = map[Faction][]string{
	FactionNeutral:      {"local_news", "weather", "trade_routes"},
	FactionAshvattha:    {"sacred_tree", "meditation", "ancient_wisdom"},
	FactionVaikuntha:    {"technology", "efficiency", "order"},
	FactionYugaStriders: {"freedom", "rebellion", "survival"},
}

type roleDefaults struct {
	adjust      Personality
	interaction InteractionType
	rangeScale  float64
	topics      []string
	description string
}

var builtinRoles = map[Role]roleDefaults{
	RoleCivilian: {
		adjust:      Personality{Aggressiveness: -0.1, Helpfulness: 0.1},
		interaction: InteractionDialogue,
		rangeScale:  1,
		topics:      []string{"family", "rumors"},
		description: "a resident going about their day",
	},
	RoleGuard: {
		adjust:      Personality{Aggressiveness: 0.2, Trustfulness: -0.1, Loyalty: 0.1},
		interaction: InteractionInformation,
		rangeScale:  1.5,
		topics:      []string{"security", "danger"},
		description: "a watchful guard",
	},
	RoleMerchant: {
		adjust:      Personality{Helpfulness: 0.1, Curiosity: 0.1},
		interaction: InteractionTrade,
		rangeScale:  1,
		topics:      []string{"trade", "prices"},
		description: "a merchant with goods to sell",
	},
	RoleScholar: {
		adjust:      Personality{Curiosity: 0.2, Intelligence: 0.1, Aggressiveness: -0.1},
		interaction: InteractionDialogue,
		rangeScale:  1,
		topics:      []string{"history", "lore"},
		description: "a scholar steeped in study",
	},
}

// DefaultTemplates returns the built-in seed set: civilian, guard, merchant,
// and scholar for each faction, with ids "<role>_<faction>" (for example
// "civilian_neutral").
//
// Postcondition: Every returned template passes Validate.
func DefaultTemplates() []*Template {
	roles := []Role{RoleCivilian, RoleGuard, RoleMerchant, RoleScholar}
	out := make([]*Template, 0, len(roles)*len(AllFactions()))
	for _, f := range AllFactions() {
		base := FactionPersonality(f)
		for _, r := range roles {
			rd := builtinRoles[r]
			p := Personality{
				Aggressiveness: base.Aggressiveness + rd.adjust.Aggressiveness,
				Curiosity:      base.Curiosity + rd.adjust.Curiosity,
				Trustfulness:   base.Trustfulness + rd.adjust.Trustfulness,
				Helpfulness:    base.Helpfulness + rd.adjust.Helpfulness,
				Intelligence:   base.Intelligence + rd.adjust.Intelligence,
				Loyalty:        base.Loyalty + rd.adjust.Loyalty,
			}.Clamped()

			topics := append(append([]string(nil), factionTopics[f]...), rd.topics...)
			expertise := make(map[string]float64, len(topics))
			for i, topic := range topics {
				// Faction lore first, role craft after; earlier topics are deeper.
				expertise[topic] = Clamp01(0.8 - 0.1*float64(i))
			}

			out = append(out, &Template{
				ID:                 r.Key() + "_" + f.Key(),
				Name:               f.String() + " " + r.String(),
				Description:        fmt.Sprintf("%s of the %s", rd.description, f),
				Faction:            f,
				Role:               r,
				Personality:        p,
				MeshID:             "npc_" + r.Key(),
				TextureID:          "npc_" + r.Key() + "_" + f.Key(),
				BehaviorModelID:    "behavior_" + f.Key(),
				DialogueModelID:    "dialogue_" + f.Key(),
				InteractionRange:   DefaultInteractionRange * rd.rangeScale,
				DefaultInteraction: rd.interaction,
				Topics:             topics,
				Expertise:          expertise,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
