package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sharemesh/sharemesh/internal/mesh"
	"github.com/sharemesh/sharemesh/internal/ui"
	"github.com/sharemesh/sharemesh/internal/utils"
)

type commandKind int

const (
	cmdChat commandKind = iota
	cmdSend
	cmdAccept
	cmdReject
	cmdPeers
	cmdLeave
	cmdQuit
	cmdHelp
)

type command struct {
	kind commandKind
	peer string
	path string
	text string
}

const helpText = "/send <peer> <file> offers a file, /accept <peer> or /reject <peer> answers an offer, " +
	"/peers toggles the peer list, /leave or /quit ends the session. Anything else is chat."

// parseInput turns one input line into a command. Lines that do not start
// with a slash are chat; "//" escapes a leading slash.
func parseInput(line string) (command, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "//") {
		return command{kind: cmdChat, text: line[1:]}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdChat, text: line}, nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "send", "s":
		peerName, path, _ := strings.Cut(rest, " ")
		path = unquote(strings.TrimSpace(path))
		if peerName == "" || path == "" {
			return command{}, errors.New("usage: /send <peer> <file>")
		}
		return command{kind: cmdSend, peer: peerName, path: path}, nil

	case "accept", "a", "reject", "r":
		kind, usage := cmdAccept, "usage: /accept <peer>"
		if n := strings.ToLower(name); n == "reject" || n == "r" {
			kind, usage = cmdReject, "usage: /reject <peer>"
		}
		fields := strings.Fields(rest)
		if len(fields) != 1 {
			return command{}, errors.New(usage)
		}
		return command{kind: kind, peer: fields[0]}, nil

	case "peers":
		return command{kind: cmdPeers}, nil
	case "leave":
		return command{kind: cmdLeave}, nil
	case "quit", "exit", "q":
		return command{kind: cmdQuit}, nil
	case "help", "?":
		return command{kind: cmdHelp}, nil
	}
	return command{}, fmt.Errorf("unknown command /%s, try /help", name)
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// room is the part of mesh.Node the input line drives.
type room interface {
	Say(text string) error
	SendFile(peerName, path string) error
	Accept(peerName string) error
	Reject(peerName string) error
	Pending(peerName string) (name string, size int64, ok bool)
	LeaveRoom() error
}

var _ room = (*mesh.Node)(nil)

func newExecutor(r room) ui.Executor {
	return func(line string) (string, error) {
		c, err := parseInput(line)
		if err != nil {
			return "", err
		}

		switch c.kind {
		case cmdChat:
			return "", r.Say(c.text)

		case cmdSend:
			if err := r.SendFile(c.peer, c.path); err != nil {
				return "", err
			}
			return fmt.Sprintf("Offered %s to %s, waiting for an answer", filepath.Base(c.path), c.peer), nil

		case cmdAccept, cmdReject:
			file, size, ok := r.Pending(c.peer)
			verb, answer := "Accepted", r.Accept
			if c.kind == cmdReject {
				verb, answer = "Rejected", r.Reject
			}
			if err := answer(c.peer); err != nil {
				return "", err
			}
			if !ok {
				return fmt.Sprintf("%s offer from %s", verb, c.peer), nil
			}
			return fmt.Sprintf("%s %s (%s) from %s", verb, file, utils.FormatSize(size), c.peer), nil

		case cmdLeave:
			if err := r.LeaveRoom(); err != nil && !errors.Is(err, mesh.ErrNotInRoom) {
				return "", err
			}
			return "", ui.ErrQuit

		case cmdQuit:
			return "", ui.ErrQuit

		case cmdHelp:
			return helpText, nil
		}
		return "", nil
	}
}
