package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups this app's secrets in the OS keychain.
const KeyringService = "leadscout"

const (
	skipTraceAccount = "leadscout:skiptrace"
	analysisAccount  = "leadscout:analysis"
)

// GetSkipTraceKey resolves the skip-trace bearer token: keychain first,
// then the SKIPTRACE_API_KEY env var (godotenv loads .env at startup).
// Empty means enrichment is disabled, not an error.
func GetSkipTraceKey() string {
	if pw, err := keyring.Get(KeyringService, skipTraceAccount); err == nil && strings.TrimSpace(pw) != "" {
		return strings.TrimSpace(pw)
	}
	return strings.TrimSpace(os.Getenv("SKIPTRACE_API_KEY"))
}

func SetSkipTraceKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("skip-trace key is empty")
	}
	return keyring.Set(KeyringService, skipTraceAccount, key)
}

// GetAnalysisKey resolves the text-analysis API key the same way.
func GetAnalysisKey() string {
	if pw, err := keyring.Get(KeyringService, analysisAccount); err == nil && strings.TrimSpace(pw) != "" {
		return strings.TrimSpace(pw)
	}
	return strings.TrimSpace(os.Getenv("ANALYSIS_API_KEY"))
}

func SetAnalysisKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("analysis key is empty")
	}
	return keyring.Set(KeyringService, analysisAccount, key)
}

// IMAP passwords are keyed per account so switching mailboxes keeps old
// credentials intact.

func IMAPKeyringAccount(username, host string) string {
	return fmt.Sprintf("leadscout:imap:%s@%s", username, host)
}

func GetIMAPPassword(keyringAccount string) (string, error) {
	if strings.TrimSpace(keyringAccount) != "" {
		pw, err := keyring.Get(KeyringService, keyringAccount)
		if err == nil && strings.TrimSpace(pw) != "" {
			return pw, nil
		}
	}
	if pw := strings.TrimSpace(os.Getenv("IMAP_PASSWORD")); pw != "" {
		return pw, nil
	}
	return "", errors.New("IMAP password not found (set it in keychain or via env)")
}

func SetIMAPPassword(keyringAccount string, password string) error {
	if strings.TrimSpace(keyringAccount) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password is empty")
	}
	return keyring.Set(KeyringService, keyringAccount, password)
}
