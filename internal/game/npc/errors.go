package npc

import "errors"

var (
	// ErrNotInitialized is returned by operations on a controller that has not
	// been initialized or has been shut down.
	ErrNotInitialized = errors.New("npc: not initialized")
	// ErrMissingCollaborator is returned when a required dependency is nil.
	ErrMissingCollaborator = errors.New("npc: missing collaborator")
	// ErrInvalidParams is returned for malformed spawn parameters or templates.
	ErrInvalidParams = errors.New("npc: invalid parameters")
	// ErrUnknownTemplate is returned when a template id is not registered.
	ErrUnknownTemplate = errors.New("npc: unknown template")
	// ErrDuplicateNPC is returned when spawning an id that already exists.
	ErrDuplicateNPC = errors.New("npc: duplicate npc id")
	// ErrPopulationCap is returned when the fleet is full.
	ErrPopulationCap = errors.New("npc: population cap reached")
	// ErrUnknownNPC is returned when an npc id is not in the fleet.
	ErrUnknownNPC = errors.New("npc: unknown npc")
	// ErrInvalidTransition is returned when the transition table forbids a state change.
	ErrInvalidTransition = errors.New("npc: invalid state transition")
	// ErrNotInteractable is returned when an NPC refuses an interaction.
	ErrNotInteractable = errors.New("npc: not interactable")
	// ErrInference is returned when the inference service fails or declines.
	ErrInference = errors.New("npc: inference failed")
)

var errModelDeclined = errors.New("model declined")
