package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Verb is the leading token of a command payload.
type Verb string

const (
	VerbAuth     Verb = "AUTH"
	VerbList     Verb = "LIST"
	VerbDownload Verb = "DOWNLOAD"
	VerbUpload   Verb = "UPLOAD"
	VerbQuit     Verb = "QUIT"
)

// Readiness replies sent by a client after OK_DOWNLOAD.
const (
	ReplyStart  = "START"
	ReplyCancel = "CANCEL"
)

var arity = map[Verb]int{
	VerbAuth:     2,
	VerbList:     0,
	VerbDownload: 1,
	VerbUpload:   2,
	VerbQuit:     0,
}

// Command is one parsed command frame.
type Command struct {
	Verb Verb
	Args []string
	// Size is the parsed UPLOAD size.
	Size int64
}

// KnownVerb reports whether v is part of the command set.
func KnownVerb(v Verb) bool {
	_, ok := arity[v]
	return ok
}

// ParseCommand splits payload into a verb and whitespace-separated arguments.
// On ErrMalformedCommand the returned Command still carries the verb so the
// caller can apply state checks before answering.
func ParseCommand(payload []byte) (Command, error) {
	fields := strings.Fields(string(payload))
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty command", ErrUnknownCommand)
	}
	cmd := Command{Verb: Verb(fields[0]), Args: fields[1:]}
	want, ok := arity[cmd.Verb]
	if !ok {
		return cmd, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}
	if len(cmd.Args) != want {
		return cmd, fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrMalformedCommand, cmd.Verb, want, len(cmd.Args))
	}
	if cmd.Verb == VerbUpload {
		size, err := strconv.ParseInt(cmd.Args[1], 10, 64)
		if err != nil || size < 0 {
			return cmd, fmt.Errorf("%w: invalid upload size %q", ErrMalformedCommand, cmd.Args[1])
		}
		cmd.Size = size
	}
	return cmd, nil
}

// Encode renders the command as it travels on the wire.
func (c Command) Encode() []byte {
	if len(c.Args) == 0 {
		return []byte(c.Verb)
	}
	return []byte(string(c.Verb) + " " + strings.Join(c.Args, " "))
}

func AuthCommand(user, pass string) Command {
	return Command{Verb: VerbAuth, Args: []string{user, pass}}
}

func ListCommand() Command {
	return Command{Verb: VerbList}
}

func DownloadCommand(name string) Command {
	return Command{Verb: VerbDownload, Args: []string{name}}
}

func UploadCommand(name string, size int64) Command {
	return Command{Verb: VerbUpload, Args: []string{name, strconv.FormatInt(size, 10)}, Size: size}
}

func QuitCommand() Command {
	return Command{Verb: VerbQuit}
}
