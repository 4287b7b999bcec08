package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/fxchange/internal/auth"
	"github.com/pelletier/go-toml/v2"
)

// CredentialsFile is the on-disk credential table.
type CredentialsFile struct {
	Users []UserEntry `toml:"users"`
}

type UserEntry struct {
	Name         string `toml:"name"`
	Password     string `toml:"password"`
	PasswordHash string `toml:"password_hash"`
}

// LoadCredentials reads and validates a credentials TOML file.
func LoadCredentials(path string) ([]auth.Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	creds, err := ParseCredentials(data)
	if err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return creds, nil
}

func ParseCredentials(data []byte) ([]auth.Credential, error) {
	var file CredentialsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if err := ValidateCredentials(file); err != nil {
		return nil, err
	}
	return file.Credentials(), nil
}

func ValidateCredentials(file CredentialsFile) error {
	if len(file.Users) == 0 {
		return fmt.Errorf("credentials file has no users")
	}
	seen := make(map[string]struct{}, len(file.Users))
	for i, u := range file.Users {
		name := strings.TrimSpace(u.Name)
		if name == "" {
			return fmt.Errorf("users[%d] missing name", i)
		}
		if u.Password == "" && u.PasswordHash == "" {
			return fmt.Errorf("users[%d] (%s) needs password or password_hash", i, name)
		}
		if u.Password != "" && u.PasswordHash != "" {
			return fmt.Errorf("users[%d] (%s) sets both password and password_hash", i, name)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("users[%d] duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func (f CredentialsFile) Credentials() []auth.Credential {
	out := make([]auth.Credential, 0, len(f.Users))
	for _, u := range f.Users {
		out = append(out, auth.Credential{
			User:         strings.TrimSpace(u.Name),
			Password:     u.Password,
			PasswordHash: strings.TrimSpace(u.PasswordHash),
		})
	}
	return out
}
