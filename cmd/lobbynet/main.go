// Lobbynet is the peer CLI entry point.
//
// Joins a lobby on a lobbyd hub, builds a WebRTC mesh to the other members
// and runs the envelope session at a fixed tick rate. Lines typed on stdin
// go to lobby chat; slash commands send envelopes and manage the lobby.
//
// It can be launched interactively (no -create/-join) or non-interactively
// via CLI flags. -offline runs without a hub against an in-process loopback.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"

	"github.com/1ureka/lobbynet/internal/config"
	"github.com/1ureka/lobbynet/internal/lobby"
	"github.com/1ureka/lobbynet/internal/protocol"
	"github.com/1ureka/lobbynet/internal/replica"
	"github.com/1ureka/lobbynet/internal/session"
	"github.com/1ureka/lobbynet/internal/transport"
	"github.com/1ureka/lobbynet/internal/util"
)

var version = "dev"

// member is what the CLI needs from either lobby backend.
type member interface {
	session.Lobby
	session.Chat
	session.Pump
	Self() protocol.PeerID
	Members() []protocol.PeerID
	CurrentLobby() protocol.LobbyID
	Create(maxMembers int) error
	Leave() error
	SetLocalDisplayName(name string) error
}

// browser is implemented only by the hub-backed lobby.
type browser interface {
	Join(id protocol.LobbyID) error
	RequestLobbies(ctx context.Context) ([]lobby.Info, error)
}

func main() {
	// Root context, cancelled on Ctrl+C or /quit.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_ = godotenv.Load(".env")

	// CLI flags.
	lobbyURL := flag.String("url", "", "Lobby hub WebSocket URL (e.g. ws://localhost:8787/ws)")
	name := flag.String("name", "", "Display name")
	create := flag.Int("create", 0, "Create a lobby with room for N members")
	join := flag.Uint64("join", 0, "Join the lobby with this id")
	hz := flag.Int("hz", 0, "Tick rate override")
	cfgPath := flag.String("config", "", "Path to a YAML config file")
	offline := flag.Bool("offline", false, "Run without a hub, looping envelopes back locally")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	if *lobbyURL != "" {
		cfg.LobbyURL = *lobbyURL
	}
	if *name != "" {
		cfg.Name = *name
	}
	if *hz > 0 {
		cfg.TickRate = *hz
	}
	if *debugMode || cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Lobbynet — v%s", version))
	pterm.Println()

	interactive := !*offline && *create == 0 && *join == 0
	if interactive && cfg.Name == "" {
		cfg.Name = askText("Display name", "")
	}

	self := util.NewPeerID()
	util.LogInfoKV("local peer", "id", self, "name", cfg.Name)

	var (
		mem  member
		tr   session.Transport
		mesh *transport.Mesh
	)

	if *offline {
		off := lobby.NewOffline(self, cfg.Name)
		mem = off
		tr = transport.NewLoopback().Endpoint(self)
		_ = off.Create(0)
	} else {
		if interactive {
			cfg.LobbyURL = askURL(cfg.LobbyURL)
		}
		wsURL, err := normalizeWSURL(cfg.LobbyURL)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}

		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		cl, err := lobby.Dial(dialCtx, wsURL, self, cfg.Name)
		cancel()
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		util.LogSuccess("connected to lobby hub %s", wsURL)

		mesh = transport.NewMesh(ctx, cl, transport.Options{STUNServers: cfg.STUNServers})
		defer mesh.Close()
		mem, tr = cl, mesh

		switch {
		case *join != 0:
			err = cl.Join(protocol.LobbyID(*join))
		case *create > 0:
			err = cl.Create(*create)
		default:
			err = chooseLobby(ctx, cl, cfg.MaxMembers)
		}
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
	}

	opts := []session.Option{
		session.WithBatchSize(cfg.ReceiveBatch),
		session.WithChatLogCapacity(cfg.ChatLogCapacity),
	}
	if cfg.LocalEcho {
		opts = append(opts, session.WithLocalEcho())
	}
	if cfg.ResetDedupOnLeave {
		opts = append(opts, session.WithResetOnLeave())
	}
	sess := session.New(mem, tr, mem, opts...)

	tracker := replica.NewTracker(sess)
	defer tracker.Close()

	util.StartStatsReporter(ctx, 10*time.Second)
	printHelp()

	lines := readLines(os.Stdin)
	sh := &shell{
		ctx:       ctx,
		quit:      stop,
		mem:       mem,
		sess:      sess,
		tracker:   tracker,
		publisher: replica.NewPublisher(sess, self, replica.DefaultPublishRate),
		output:    make(chan string, outputBacklog),
	}
	if b, ok := mem.(browser); ok {
		sh.browser = b
	}

	var mark uint64
	rt := session.NewRuntime(mem, sess)
	rt.Run(ctx, cfg.TickRate, func() {
	drain:
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					lines = nil // stdin closed; keep running until Ctrl+C
					break drain
				}
				sh.exec(line)
			default:
				break drain
			}
		}

		for _, l := range sh.pending() {
			pterm.Println(l)
		}

		var fresh []string
		fresh, mark = sess.ChatLogSince(mark)
		for _, l := range fresh {
			pterm.Println(l)
		}
	})

	util.LogInfo("left the lobby network")
}

// readLines feeds stdin lines to a channel so the tick loop never blocks on
// input. The channel closes at EOF.
func readLines(f *os.File) <-chan string {
	ch := make(chan string, 16)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

// chooseLobby lets the user create a lobby or pick one from the hub listing.
func chooseLobby(ctx context.Context, cl *lobby.Client, maxMembers int) error {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Create — Open a new lobby", "Join   — Pick an open lobby"}).
		WithDefaultText("Select an action").
		Show()
	pterm.Println()

	if strings.HasPrefix(choice, "Create") {
		return cl.Create(maxMembers)
	}

	listCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	list, err := cl.RequestLobbies(listCtx)
	if err != nil {
		return fmt.Errorf("list lobbies: %w", err)
	}
	if len(list) == 0 {
		util.LogWarning("no open lobbies, creating one")
		return cl.Create(maxMembers)
	}

	options := make([]string, len(list))
	for i, info := range list {
		options[i] = describeLobby(info)
	}
	picked, _ := pterm.DefaultInteractiveSelect.
		WithOptions(options).
		WithDefaultText("Select a lobby").
		Show()
	pterm.Println()

	for i, opt := range options {
		if opt == picked {
			return cl.Join(list[i].Lobby)
		}
	}
	return fmt.Errorf("no lobby selected")
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// normalizeWSURL validates a hub URL and defaults the path to /ws.
func normalizeWSURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	scheme := "wss"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}
	path := u.Path
	if path == "" || path == "/" {
		path = "/ws"
	}
	return fmt.Sprintf("%s://%s%s", scheme, u.Host, path), nil
}

func describeLobby(info lobby.Info) string {
	owner := info.OwnerName
	if owner == "" {
		owner = info.Owner.String()
	}
	return fmt.Sprintf("#%s  %s  (%d/%d)", info.Lobby, owner, info.Members, info.Max)
}

func askText(prompt, fallback string) string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(prompt).
		Show()
	pterm.Println()
	if raw = strings.TrimSpace(raw); raw == "" {
		return fallback
	}
	return raw
}

// askURL prompts for a hub URL until a valid one is entered. Blank keeps
// the configured one.
func askURL(current string) string {
	for {
		raw := askText("Lobby hub URL (blank for "+current+")", current)
		if _, err := normalizeWSURL(raw); err == nil {
			return raw
		}
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

func parseFloats(fields []string) ([3]float32, error) {
	var out [3]float32
	if len(fields) != 3 {
		return out, fmt.Errorf("need 3 numbers, got %d", len(fields))
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return out, fmt.Errorf("bad number %q", f)
		}
		out[i] = float32(v)
	}
	return out, nil
}
