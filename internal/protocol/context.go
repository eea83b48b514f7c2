package protocol

import "time"

// Game state constants for GameContext.GameState.
const (
	GameStateDisconnected = 0
	GameStateLobby        = 1
	GameStateInGame       = 2
)

// GameContext is the mutable per-connection state exposed to handlers. Its
// lifetime matches the connection.
type GameContext struct {
	SessionID     uint32
	GameState     int
	CharacterID   *uint32
	AccountID     *uint32
	RemoteAddr    string
	ConnectedAt   time.Time
	LastActivity  time.Time
}

// NewGameContext creates a context for a freshly accepted connection.
// SessionID is assigned later, on transition to Authenticated.
func NewGameContext(remoteAddr string) *GameContext {
	now := time.Now()
	return &GameContext{
		GameState:    GameStateDisconnected,
		RemoteAddr:   remoteAddr,
		ConnectedAt:  now,
		LastActivity: now,
	}
}

// IsGameStateActive reports whether the context is in lobby or in-game.
func (c *GameContext) IsGameStateActive() bool {
	return c.GameState == GameStateLobby || c.GameState == GameStateInGame
}

// Touch updates the last-activity timestamp.
func (c *GameContext) Touch() {
	c.LastActivity = time.Now()
}
