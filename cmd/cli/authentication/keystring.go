package authentication

// KeyString holds the credentials of the signed-in user in the OS keyring.
import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	serviceName = "bookswap-cli"
	tokenKey    = "auth_tokens"
)

// ErrNotLoggedIn is returned when the keyring holds no credentials.
var ErrNotLoggedIn = errors.New("not logged in, run 'bookswap auth login' first")

type StoredCredentials struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	APIURL      string `json:"api_url"`
}

func StoreTokens(creds *StoredCredentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return keyring.Set(serviceName, tokenKey, string(data))
}

func GetTokens() (*StoredCredentials, error) {
	value, err := keyring.Get(serviceName, tokenKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, err
	}

	var creds StoredCredentials
	if err := json.Unmarshal([]byte(value), &creds); err != nil {
		return nil, fmt.Errorf("stored credentials are corrupt: %w", err)
	}
	if creds.AccessToken == "" {
		return nil, ErrNotLoggedIn
	}
	return &creds, nil
}

func DeleteTokens() error {
	err := keyring.Delete(serviceName, tokenKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// KeyringTokens reads the bearer token from the keyring on every request, so
// a logout in another terminal takes effect immediately.
type KeyringTokens struct{}

func (KeyringTokens) Token(context.Context) (string, error) {
	creds, err := GetTokens()
	if err != nil {
		return "", err
	}
	return creds.AccessToken, nil
}
