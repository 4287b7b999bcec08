package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server":
		return serverTemplate, nil
	case "client":
		return clientTemplate, nil
	case "users":
		return usersTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serverTemplate = `addr = ":9999"
root = "server_files"
obfuscation_key = "mysecretkey"
chunk_size = 4096
max_frame_bytes = 1048576
max_connections = 0
idle_timeout = "5m"
read_timeout = "30s"
write_timeout = "30s"
credentials_file = "users.toml"
admin_listen_addr = "127.0.0.1:9998"
cors_origins = ["http://localhost:3000"]
`

const clientTemplate = `addr = "127.0.0.1:9999"
dir = "client_files"
obfuscation_key = "mysecretkey"
chunk_size = 2048
connect_timeout = "5s"
read_timeout = "30s"
write_timeout = "30s"
max_connect_attempts = 5
`

const usersTemplate = `[[users]]
name = "user"
password = "pass123"

[[users]]
name = "admin"
password = "adminpass"
`
