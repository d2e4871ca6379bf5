package gate

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandKind identifies an admin command.
type CommandKind int

const (
	CommandApprove CommandKind = iota + 1
	CommandReject
)

// Command is a parsed admin command.
type Command struct {
	Kind    CommandKind
	Subject int64
	Reason  string
}

var commandWords = map[string]CommandKind{
	"/approve": CommandApprove,
	"手动通过":     CommandApprove,
	"/reject":  CommandReject,
	"手动拒绝":     CommandReject,
}

var helpWords = map[string]bool{
	"手性碳帮助":   true,
	"cchelp":  true,
	"/cchelp": true,
}

// IsHelp reports whether text asks for the help message.
func IsHelp(text string) bool {
	return helpWords[strings.ToLower(strings.TrimSpace(text))]
}

// ParseCommand recognises an admin command. ok is false when text is not a
// command at all; a command with bad arguments returns ErrInvalidInput.
func ParseCommand(text string) (cmd Command, ok bool, err error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Command{}, false, nil
	}
	kind, known := commandWords[strings.ToLower(fields[0])]
	if !known {
		return Command{}, false, nil
	}
	cmd.Kind = kind
	if len(fields) < 2 {
		return cmd, true, fmt.Errorf("%w: %s", ErrInvalidInput, usage(kind))
	}
	if kind == CommandApprove && len(fields) > 2 {
		return cmd, true, fmt.Errorf("%w: %s", ErrInvalidInput, usage(kind))
	}
	subject, perr := strconv.ParseInt(fields[1], 10, 64)
	if perr != nil || subject <= 0 {
		return cmd, true, fmt.Errorf("%w: %q is not a user id; %s", ErrInvalidInput, fields[1], usage(kind))
	}
	cmd.Subject = subject
	if kind == CommandReject && len(fields) > 2 {
		cmd.Reason = strings.Join(fields[2:], " ")
	}
	return cmd, true, nil
}

func usage(kind CommandKind) string {
	if kind == CommandReject {
		return "usage: /reject <user id> [reason]"
	}
	return "usage: /approve <user id>"
}
