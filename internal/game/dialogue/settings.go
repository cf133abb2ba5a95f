package dialogue

import "time"

// Settings tune the Dialogue System.
type Settings struct {
	// ConversationTimeout ends a conversation this long after its last exchange.
	ConversationTimeout time.Duration
	// AIResponseTimeout bounds every dialogue inference call.
	AIResponseTimeout time.Duration
	// MaxExchanges ends a conversation once this many turns were recorded.
	MaxExchanges     int
	MaxPlayerChoices int
	MaxHistoryPerNPC int

	EnableTypingEffect bool
	// TypingSpeed is the typing-effect rate in characters per second.
	TypingSpeed float64
	// ProcessingDelay is how long a free-text player line is held in
	// Processing before the NPC is asked to answer.
	ProcessingDelay time.Duration
	// PlayerSkill feeds choice availability checks, in [0,1].
	PlayerSkill float64
	// AutoStart opens a conversation when a Dialogue interaction is published.
	AutoStart bool
	// MaxConsecutiveFailures ends a conversation with EndError.
	MaxConsecutiveFailures int
}

// DefaultSettings returns the stock dialogue settings.
func DefaultSettings() Settings {
	return Settings{
		ConversationTimeout:    60 * time.Second,
		AIResponseTimeout:      10 * time.Second,
		MaxExchanges:           20,
		MaxPlayerChoices:       4,
		MaxHistoryPerNPC:       5,
		TypingSpeed:            40,
		ProcessingDelay:        2 * time.Second,
		PlayerSkill:            0.5,
		AutoStart:              true,
		MaxConsecutiveFailures: 3,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.ConversationTimeout <= 0 {
		s.ConversationTimeout = d.ConversationTimeout
	}
	if s.AIResponseTimeout <= 0 {
		s.AIResponseTimeout = d.AIResponseTimeout
	}
	if s.MaxExchanges <= 0 {
		s.MaxExchanges = d.MaxExchanges
	}
	if s.MaxPlayerChoices <= 0 {
		s.MaxPlayerChoices = d.MaxPlayerChoices
	}
	if s.MaxHistoryPerNPC <= 0 {
		s.MaxHistoryPerNPC = d.MaxHistoryPerNPC
	}
	if s.TypingSpeed <= 0 {
		s.TypingSpeed = d.TypingSpeed
	}
	if s.ProcessingDelay < 0 {
		s.ProcessingDelay = 0
	}
	if s.MaxConsecutiveFailures <= 0 {
		s.MaxConsecutiveFailures = d.MaxConsecutiveFailures
	}
	return s
}
