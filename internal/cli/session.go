package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrNoGame = errors.New("not in a game, run `stk join <game>` first")

// Session is the local player record. Identity survives leaving a game so a
// later join reconnects to the same slot.
type Session struct {
	Identity string `json:"identity"`
	GameID   string `json:"game_id,omitempty"`
	Slot     int    `json:"slot"`
	Name     string `json:"name,omitempty"`
}

func (s Session) InGame() bool {
	return strings.TrimSpace(s.GameID) != ""
}

// dirOverride redirects the session directory, for tests.
var dirOverride string

func baseDir() (string, error) {
	dir := dirOverride
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".stk")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func sessionPath() (string, error) {
	dir, err := baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.json"), nil
}

func SaveSession(s Session) error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return err
	}
	return nil
}

// LoadSession reads the session, creating one with a fresh identity when
// none exists yet.
func LoadSession() (Session, error) {
	path, err := sessionPath()
	if err != nil {
		return Session{}, err
	}
	body, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s := Session{Identity: uuid.NewString()}
		return s, SaveSession(s)
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, fmt.Errorf("corrupt session %s: %w", path, err)
	}
	if strings.TrimSpace(s.Identity) == "" {
		s.Identity = uuid.NewString()
		if err := SaveSession(s); err != nil {
			return Session{}, err
		}
	}
	return s, nil
}

// RequireGame loads the session and fails when it has no game.
func RequireGame() (Session, error) {
	s, err := LoadSession()
	if err != nil {
		return Session{}, err
	}
	if !s.InGame() {
		return Session{}, ErrNoGame
	}
	return s, nil
}

// ClearGame forgets the current game but keeps the identity.
func ClearGame() error {
	s, err := LoadSession()
	if err != nil {
		return err
	}
	s.GameID = ""
	s.Slot = 0
	return SaveSession(s)
}
