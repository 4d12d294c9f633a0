// Package credential stores the portal session token in the system keyring.
package credential

import (
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const serviceName = "portal-notify"

// tokenKey is the keyring entry holding the portal session token.
const tokenKey = "session-token"

// EnvToken is the environment variable that overrides the stored token.
const EnvToken = "PORTAL_TOKEN"

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/portal-notify/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("portal-notify-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Token returns the portal session token. The PORTAL_TOKEN environment
// variable wins when set; otherwise the system keyring is consulted.
// Returns "" when neither holds a token.
func Token() string {
	if t := os.Getenv(EnvToken); t != "" {
		return t
	}

	ring, err := openKeyring()
	if err != nil {
		return ""
	}
	item, err := ring.Get(tokenKey)
	if err != nil {
		return ""
	}
	return string(item.Data)
}

// SaveToken stores the portal session token in the system keyring.
func SaveToken(token string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  tokenKey,
		Data: []byte(token),
	})
	if err != nil {
		return fmt.Errorf("storing session token: %w", err)
	}
	return nil
}
