package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Profile caches who is signed in so commands can print it without a round trip.
type Profile struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	City     string    `json:"city,omitempty"`
	APIURL   string    `json:"api_url"`
	SavedAt  time.Time `json:"saved_at"`
}

func GetStateFilePath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".bookswap", "profile.json")
}

func SaveProfile(profile *Profile) error {
	stateDir := filepath.Dir(GetStateFilePath())
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return err
	}
	if profile.SavedAt.IsZero() {
		profile.SavedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(GetStateFilePath(), data, 0600)
}

// LoadProfile returns nil, nil when nobody has logged in.
func LoadProfile() (*Profile, error) {
	data, err := os.ReadFile(GetStateFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func ClearProfile() error {
	err := os.Remove(GetStateFilePath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
