package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/fxchange/internal/client"
	"github.com/danmuck/fxchange/internal/observability"
	"github.com/danmuck/fxchange/internal/protocol"
	"github.com/danmuck/fxchange/internal/protocol/session"
)

func main() {
	configPath := flag.String("config", "cmd/fxclient/config.toml", "client config path")
	addr := flag.String("addr", "", "server address override")
	dir := flag.String("dir", "", "local file directory override")
	flag.Parse()

	logger := observability.InitLogger("fxclient")

	cfg, err := loadClientConfig(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = client.DefaultConfig(), nil
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if *addr != "" {
		cfg.Address = *addr
	}
	if *dir != "" {
		cfg.Dir = *dir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	c, err := client.Dial(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Address).Msg("connect")
	}
	defer c.Close()

	app := NewApp(c, os.Stdin, os.Stdout)
	if err := app.Run(); err != nil {
		logger.Error().Err(err).Msg("fxclient session ended")
		os.Exit(1)
	}
}

// App is the interactive prompt over one client session.
type App struct {
	client *client.Client
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(c *client.Client, in io.Reader, out io.Writer) *App {
	return &App{
		client: c,
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run authenticates and then executes commands until quit or end of input.
func (a *App) Run() error {
	if err := a.login(); err != nil {
		if errors.Is(err, io.EOF) {
			return a.client.Quit()
		}
		return err
	}
	for {
		line, err := a.promptLine("fx> ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return a.client.Quit()
			}
			return err
		}
		quit, err := a.execute(line)
		if err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
			if a.client.State() == session.StateClosed {
				return err
			}
		}
		if quit {
			return nil
		}
	}
}

func (a *App) login() error {
	for {
		user, err := a.promptLine("Username: ")
		if err != nil {
			return err
		}
		pass, err := a.promptLine("Password: ")
		if err != nil {
			return err
		}
		err = a.client.Auth(strings.TrimSpace(user), strings.TrimSpace(pass))
		if err == nil {
			fmt.Fprintln(a.out, "Authentication successful.")
			return nil
		}
		switch {
		case errors.Is(err, client.ErrAuthRejected):
			fmt.Fprintln(a.out, "Authentication failed. Try again.")
		case errors.Is(err, protocol.ErrMalformedCommand):
			fmt.Fprintln(a.out, "Username and password must be non-empty and contain no spaces. Try again.")
		default:
			return err
		}
	}
}

// execute runs one prompt line. quit reports that the session ended.
func (a *App) execute(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	switch strings.ToLower(fields[0]) {
	case "list", "ls":
		names, err := a.client.List()
		if err != nil {
			return false, err
		}
		if len(names) == 0 {
			fmt.Fprintln(a.out, "(no files)")
		}
		for _, name := range names {
			fmt.Fprintln(a.out, name)
		}
	case "download", "get":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: download <file>")
		}
		n, err := a.client.Download(fields[1], a.progress(fields[1]))
		if err != nil {
			return false, err
		}
		fmt.Fprintf(a.out, "\nDownloaded %s (%d bytes).\n", fields[1], n)
	case "upload", "put":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: upload <file>")
		}
		n, err := a.client.Upload(fields[1], a.progress(fields[1]))
		if err != nil {
			return false, err
		}
		fmt.Fprintf(a.out, "\nUploaded %s (%d bytes).\n", fields[1], n)
	case "quit", "exit":
		return true, a.client.Quit()
	case "help":
		fmt.Fprintln(a.out, "commands: list | download <file> | upload <file> | quit")
	default:
		return false, fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	return false, nil
}

func (a *App) progress(name string) func(done, total int64) {
	return func(done, total int64) {
		pct := int64(100)
		if total > 0 {
			pct = done * 100 / total
		}
		fmt.Fprintf(a.out, "\r%s: %d/%d bytes (%d%%)", name, done, total, pct)
	}
}

func (a *App) promptLine(label string) (string, error) {
	if label != "" {
		fmt.Fprint(a.out, label)
	}
	line, err := a.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
