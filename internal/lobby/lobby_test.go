package lobby

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/lobbynet/internal/protocol"
)

const (
	alice protocol.PeerID = 1001
	bob   protocol.PeerID = 1002
	carol protocol.PeerID = 1003
)

const waitFor = 2 * time.Second
const poll = 5 * time.Millisecond

func startHub(t *testing.T, opts HubOptions) string {
	t.Helper()
	srv := httptest.NewServer(NewHub(opts).Routes())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string, peer protocol.PeerID, name string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	c, err := Dial(ctx, url, peer, name)
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c
}

// seat creates a lobby with host and joins every guest to it.
func seat(t *testing.T, host *Client, guests ...*Client) protocol.LobbyID {
	t.Helper()
	require.NoError(t, host.Create(4))
	require.Eventually(t, host.IsInLobby, waitFor, poll)
	id := host.CurrentLobby()

	for _, g := range guests {
		require.NoError(t, g.Join(id))
	}
	want := len(guests) + 1
	for _, c := range append([]*Client{host}, guests...) {
		c := c
		require.Eventually(t, func() bool { return len(c.Members()) == want }, waitFor, poll)
	}
	return id
}

func TestDialHandshake(t *testing.T) {
	url := startHub(t, HubOptions{})
	c := dial(t, url, alice, "  Alice ")

	assert.True(t, c.IsReady())
	assert.False(t, c.IsInLobby())
	assert.Equal(t, alice, c.Self())
	assert.Equal(t, "Alice", c.DisplayName(alice))
	assert.False(t, c.IsMember(alice), "not seated yet")
}

func TestDialRejectsDuplicatePeer(t *testing.T) {
	url := startHub(t, HubOptions{})
	dial(t, url, alice, "Alice")

	_, err := Dial(context.Background(), url, alice, "Impostor")
	require.ErrorIs(t, err, ErrRejected)
}

func TestDialRejectsInvalidPeer(t *testing.T) {
	url := startHub(t, HubOptions{})
	_, err := Dial(context.Background(), url, 0, "Nobody")
	require.Error(t, err)
}

func TestCreateAndJoinRoster(t *testing.T) {
	url := startHub(t, HubOptions{})
	a := dial(t, url, alice, "Alice")
	b := dial(t, url, bob, "Bob")
	c := dial(t, url, carol, "Carol")

	id := seat(t, a, b)

	assert.Equal(t, id, b.CurrentLobby())
	assert.Equal(t, []protocol.PeerID{alice, bob}, a.Members())
	assert.True(t, a.IsMember(bob))
	assert.True(t, b.IsMember(alice))
	assert.False(t, a.IsMember(carol))
	assert.False(t, a.IsMember(0))
	assert.Equal(t, "Bob", a.DisplayName(bob))
	assert.Equal(t, carol.String(), a.DisplayName(carol))
	assert.False(t, c.IsInLobby())
}

func TestEventsFireOnlyOnTick(t *testing.T) {
	url := startHub(t, HubOptions{})
	a := dial(t, url, alice, "Alice")
	b := dial(t, url, bob, "Bob")

	var entered []protocol.LobbyID
	var chats []string
	a.OnEntered(func(id protocol.LobbyID) { entered = append(entered, id) })
	a.OnMessage(func(from protocol.PeerID, text string) {
		chats = append(chats, from.String()+":"+text)
	})

	seat(t, a, b)
	b.Send("hello")

	// Give the reader time to queue the chat before ticking.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, entered)
	assert.Empty(t, chats)

	require.Eventually(t, func() bool {
		a.Tick()
		return len(chats) == 1
	}, waitFor, poll)
	assert.Equal(t, []protocol.LobbyID{a.CurrentLobby()}, entered)
	assert.Equal(t, []string{bob.String() + ":hello"}, chats)
}

func TestChatIncludesSenderAndIgnoresBlank(t *testing.T) {
	url := startHub(t, HubOptions{})
	a := dial(t, url, alice, "Alice")
	b := dial(t, url, bob, "Bob")
	seat(t, a, b)

	var got []string
	b.OnMessage(func(from protocol.PeerID, text string) { got = append(got, text) })

	b.Send("   ")
	b.Send("mine")

	require.Eventually(t, func() bool {
		b.Tick()
		return len(got) == 1
	}, waitFor, poll)
	assert.Equal(t, []string{"mine"}, got)
}

func TestChatOutsideLobbyIgnored(t *testing.T) {
	url := startHub(t, HubOptions{})
	a := dial(t, url, alice, "Alice")

	var got int
	a.OnMessage(func(protocol.PeerID, string) { got++ })
	a.Send("into the void")

	time.Sleep(50 * time.Millisecond)
	a.Tick()
	assert.Zero(t, got)
}

func TestChatRateLimited(t *testing.T) {
	url := startHub(t, HubOptions{ChatRate: 0.001, ChatBurst: 2})
	a := dial(t, url, alice, "Alice")
	seat(t, a)

	var got int
	a.OnMessage(func(protocol.PeerID, string) { got++ })
	for i := 0; i < 5; i++ {
		a.Send("spam")
	}

	time.Sleep(100 * time.Millisecond)
	a.Tick()
	assert.Equal(t, 2, got)
}

func TestSignalRelay(t *testing.T) {
	url := startHub(t, HubOptions{})
	a := dial(t, url, alice, "Alice")
	b := dial(t, url, bob, "Bob")
	c := dial(t, url, carol, "Carol")
	seat(t, a, b)

	type relayed struct {
		from    protocol.PeerID
		payload string
	}
	var mu sync.Mutex
	var got []relayed
	b.OnSignal(func(from protocol.PeerID, payload json.RawMessage) {
		mu.Lock()
		got = append(got, relayed{from, string(payload)})
		mu.Unlock()
	})

	require.NoError(t, a.SendSignal(bob, json.RawMessage(`{"type":"offer","sdp":"x"}`)))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, waitFor, poll)
	assert.Equal(t, alice, got[0].from)
	assert.JSONEq(t, `{"type":"offer","sdp":"x"}`, got[0].payload)

	// Carol is connected but not seated with Alice.
	require.ErrorIs(t, c.SendSignal(alice, json.RawMessage(`{}`)), ErrNotInLobby)
}

func TestLeaveUpdatesRoster(t *testing.T) {
	url := startHub(t, HubOptions{})
	a := dial(t, url, alice, "Alice")
	b := dial(t, url, bob, "Bob")
	seat(t, a, b)

	var left int
	b.OnLeft(func() { left++ })

	var mu sync.Mutex
	var rosters [][]protocol.PeerID
	a.OnRoster(func(m []protocol.PeerID) {
		mu.Lock()
		rosters = append(rosters, m)
		mu.Unlock()
	})

	require.NoError(t, b.Leave())
	require.Eventually(t, func() bool { return !b.IsInLobby() }, waitFor, poll)
	require.Eventually(t, func() bool { return len(a.Members()) == 1 }, waitFor, poll)

	assert.False(t, a.IsMember(bob))
	assert.Zero(t, left, "left fires on tick")
	b.Tick()
	assert.Equal(t, 1, left)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, rosters)
	assert.Equal(t, []protocol.PeerID{alice}, rosters[len(rosters)-1])
}

func TestDisconnectCountsAsLeave(t *testing.T) {
	url := startHub(t, HubOptions{})
	a := dial(t, url, alice, "Alice")
	b := dial(t, url, bob, "Bob")
	seat(t, a, b)

	b.Shutdown()
	<-b.Done()
	assert.False(t, b.IsReady())
	assert.False(t, b.IsMember(alice))

	require.Eventually(t, func() bool { return !a.IsMember(bob) }, waitFor, poll)
	b.Shutdown() // idempotent
}

func TestRequestLobbies(t *testing.T) {
	url := startHub(t, HubOptions{MaxMembers: 3})
	a := dial(t, url, alice, "Alice")
	b := dial(t, url, bob, "Bob")
	c := dial(t, url, carol, "Carol")

	require.NoError(t, a.Create(10))
	require.Eventually(t, a.IsInLobby, waitFor, poll)
	require.NoError(t, b.Create(2))
	require.Eventually(t, b.IsInLobby, waitFor, poll)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	list, err := c.RequestLobbies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, a.CurrentLobby(), list[0].Lobby)
	assert.Equal(t, "Alice", list[0].OwnerName)
	assert.Equal(t, 3, list[0].Max, "capped at hub maximum")
	assert.Equal(t, 1, list[0].Members)
	assert.Equal(t, b.CurrentLobby(), list[1].Lobby)
	assert.Equal(t, 2, list[1].Max)
}

func TestJoinFullLobbyRejected(t *testing.T) {
	url := startHub(t, HubOptions{})
	a := dial(t, url, alice, "Alice")
	b := dial(t, url, bob, "Bob")

	require.NoError(t, a.Create(1))
	require.Eventually(t, a.IsInLobby, waitFor, poll)

	require.NoError(t, b.Join(a.CurrentLobby()))
	time.Sleep(50 * time.Millisecond)
	assert.False(t, b.IsInLobby())
	assert.Equal(t, []protocol.PeerID{alice}, a.Members())
}

func TestNickRebroadcastsRoster(t *testing.T) {
	url := startHub(t, HubOptions{})
	a := dial(t, url, alice, "Alice")
	b := dial(t, url, bob, "Bob")
	seat(t, a, b)

	require.NoError(t, b.SetLocalDisplayName("   "))
	require.NoError(t, b.SetLocalDisplayName(" Robert "))
	require.Eventually(t, func() bool { return a.DisplayName(bob) == "Robert" }, waitFor, poll)
}

func TestOfflineEchoesChat(t *testing.T) {
	o := NewOffline(alice, "Alice")
	assert.True(t, o.IsReady())
	assert.False(t, o.IsInLobby())

	var entered, left int
	var chats []string
	o.OnEntered(func(protocol.LobbyID) { entered++ })
	o.OnLeft(func() { left++ })
	o.OnMessage(func(from protocol.PeerID, text string) { chats = append(chats, text) })

	o.Send("before seat")
	require.NoError(t, o.Create(0))
	o.Send("hi")
	assert.Zero(t, entered)

	o.Tick()
	assert.Equal(t, 1, entered)
	assert.Equal(t, []string{"hi"}, chats)
	assert.True(t, o.IsMember(alice))
	assert.False(t, o.IsMember(bob))
	assert.Equal(t, "Alice", o.DisplayName(alice))

	require.NoError(t, o.Leave())
	o.Tick()
	assert.Equal(t, 1, left)
	assert.Nil(t, o.Members())

	o.Shutdown()
	assert.False(t, o.IsReady())
}

func TestHubRoutes(t *testing.T) {
	srv := httptest.NewServer(NewHub(HubOptions{}).Routes())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, 200, resp.StatusCode, path)
	}
}
