package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/danmuck/fxchange/internal/auth"
	"github.com/danmuck/fxchange/internal/config"
)

func defaultPath(kind string) (string, error) {
	switch kind {
	case "server":
		return "cmd/fxserver/config.toml", nil
	case "client":
		return "cmd/fxclient/config.toml", nil
	case "users":
		return "cmd/fxserver/users.toml", nil
	default:
		return "", fmt.Errorf("unknown kind: %s", kind)
	}
}

func main() {
	kind := flag.String("kind", "server", "config kind: server|client|users")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing users file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	hash := flag.String("hash", "", "print a bcrypt password_hash for the given password")
	flag.Parse()

	if *hash != "" {
		h, err := auth.HashPassword(*hash)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Fprintln(os.Stdout, h)
		return
	}

	if *validate {
		if *kind != "users" {
			log.Fatalf("validation is supported for kind=users, got %s", *kind)
		}
		path := *input
		if path == "" {
			p, err := defaultPath(*kind)
			if err != nil {
				log.Fatal(err)
			}
			path = p
		}
		creds, err := config.LoadCredentials(path)
		if err != nil {
			log.Fatal(err)
		}
		if _, err := auth.NewTable(creds); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %d users at %s", len(creds), path)
		return
	}

	target := *output
	if target == "" {
		p, err := defaultPath(*kind)
		if err != nil {
			log.Fatal(err)
		}
		target = p
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
