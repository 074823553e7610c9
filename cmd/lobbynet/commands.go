package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/lobbynet/internal/protocol"
	"github.com/1ureka/lobbynet/internal/replica"
	"github.com/1ureka/lobbynet/internal/session"
	"github.com/1ureka/lobbynet/internal/util"
)

// command is one parsed stdin line.
type command struct {
	name string // empty for plain chat
	arg  string
}

// parseCommand splits "/name rest" lines. Anything else is plain chat.
func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{arg: line}
	}
	name, arg, _ := strings.Cut(line[1:], " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}
}

// shell runs stdin commands on the tick goroutine.
type shell struct {
	ctx       context.Context
	quit      func()
	mem       member
	browser   browser // nil offline
	sess      *session.Session
	tracker   *replica.Tracker
	publisher *replica.Publisher
	output    chan string // background command results
}

const outputBacklog = 64

func printHelp() {
	pterm.DefaultBox.WithTitle("Commands").Println(strings.Join([]string{
		"<text>           lobby chat",
		"/p2p <text>      chat envelope to every member",
		"/pos <x> <y> <z> publish your position",
		"/where           latest known positions",
		"/list            open lobbies",
		"/create [max]    open a new lobby",
		"/join <id>       join a lobby",
		"/nick <name>     change display name",
		"/leave           leave the lobby",
		"/quit            exit",
	}, "\n"))
}

func (sh *shell) exec(line string) {
	cmd := parseCommand(line)
	var err error

	switch cmd.name {
	case "":
		if cmd.arg != "" {
			sh.sess.SendLobbyChat(cmd.arg)
		}
	case "p2p":
		err = sh.broadcast(protocol.KindChat, []byte(cmd.arg), protocol.Reliable)
	case "pos":
		err = sh.publish(strings.Fields(cmd.arg))
	case "where":
		sh.where()
	case "list":
		err = sh.list()
	case "create":
		capacity := 0
		if cmd.arg != "" {
			if capacity, err = strconv.Atoi(cmd.arg); err != nil {
				err = fmt.Errorf("bad capacity %q", cmd.arg)
				break
			}
		}
		err = sh.mem.Create(capacity)
	case "join":
		err = sh.join(cmd.arg)
	case "nick":
		err = sh.mem.SetLocalDisplayName(cmd.arg)
	case "leave":
		err = sh.mem.Leave()
	case "quit", "exit":
		sh.quit()
	case "help":
		printHelp()
	default:
		util.LogWarning("unknown command /%s (try /help)", cmd.name)
	}

	if err != nil {
		util.LogWarning("%v", err)
	}
}

// broadcast sends one envelope to every lobby member, including ourselves.
func (sh *shell) broadcast(kind protocol.Kind, payload []byte, rel protocol.Reliability) error {
	if !sh.mem.IsInLobby() {
		return fmt.Errorf("not in a lobby")
	}
	for _, to := range sh.mem.Members() {
		if err := sh.sess.SendPacket(to, kind, payload, rel); err != nil {
			return err
		}
	}
	return nil
}

func (sh *shell) publish(fields []string) error {
	pos, err := parseFloats(fields)
	if err != nil {
		return fmt.Errorf("/pos: %w", err)
	}
	t := replica.Identity
	t.Position = pos

	sent, err := sh.publisher.Publish(time.Now(), t, sh.mem.Members())
	if err != nil {
		return err
	}
	if !sent {
		return fmt.Errorf("/pos: publishing too fast")
	}
	return nil
}

func (sh *shell) where() {
	owners := sh.tracker.Owners()
	if len(owners) == 0 {
		pterm.Println("no positions yet")
		return
	}
	data := pterm.TableData{{"Peer", "Position", "Tick"}}
	for _, o := range owners {
		s, _ := sh.tracker.Latest(o)
		p := s.Transform.Position
		data = append(data, []string{
			sh.mem.DisplayName(o),
			fmt.Sprintf("%.2f %.2f %.2f", p[0], p[1], p[2]),
			strconv.FormatUint(uint64(s.Tick), 10),
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// list asks the hub for open lobbies off the tick goroutine. The answer
// shows up in pending.
func (sh *shell) list() error {
	if sh.browser == nil {
		return fmt.Errorf("/list needs a lobby hub")
	}
	go func() {
		ctx, cancel := context.WithTimeout(sh.ctx, 5*time.Second)
		defer cancel()

		list, err := sh.browser.RequestLobbies(ctx)
		switch {
		case err != nil:
			sh.emit("/list: " + err.Error())
		case len(list) == 0:
			sh.emit("no open lobbies")
		default:
			for _, info := range list {
				sh.emit(describeLobby(info))
			}
		}
	}()
	return nil
}

func (sh *shell) emit(line string) {
	select {
	case sh.output <- line:
	default:
		util.LogWarning("output backlog full, dropping: %s", line)
	}
}

// pending returns lines produced by background commands since the last call.
func (sh *shell) pending() []string {
	var lines []string
	for {
		select {
		case l := <-sh.output:
			lines = append(lines, l)
		default:
			return lines
		}
	}
}

func (sh *shell) join(arg string) error {
	if sh.browser == nil {
		return fmt.Errorf("/join needs a lobby hub")
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("bad lobby id %q", arg)
	}
	return sh.browser.Join(protocol.LobbyID(id))
}
