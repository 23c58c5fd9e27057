// Screenlink Versus
//
// Head to head rooms: every player races from the same start actor to the same
// goal actor, one validated link at a time.
//
// - WebSockets per room: /versus/:gameid and /versus/:gameid/ws
// - First connection to a room becomes moderator
// - Moderator can lock/unlock the lobby, kick players and start a new round
// - Players identified by cookie, usernames unique per room
// - Each move is checked against the mover's own chain
// - First player to reach the goal wins the round
// - Idle rooms and disconnected players are reaped after configurable timeouts
// - QR code for sharing the room, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"html"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	playerCookieName = "screenlink_id"
	roomIDLength     = 8
	roomIDLetters    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	maxUsername      = 32
)

// versusLink is one accepted step of a player's chain, ready for display.
type versusLink struct {
	Title  string `json:"title"`
	Actor  string `json:"actor"`
	Poster string `json:"poster,omitempty"`
	Image  string `json:"image,omitempty"`
}

type versusPlayer struct {
	playerID string
	username string
	chain    []Actor
	links    []versusLink
}

func (p *versusPlayer) last(start Actor) Actor {
	if len(p.chain) == 0 {
		return start
	}
	return p.chain[len(p.chain)-1]
}

// Messages coming from clients
type clientMessage struct {
	Type           string `json:"type"`                      // "join", "move", "lock_lobby", "kick", "new_round"
	Username       string `json:"username,omitempty"`        // join
	Title          string `json:"title,omitempty"`           // move
	Actor          string `json:"actor,omitempty"`           // move
	Lock           *bool  `json:"lock,omitempty"`            // lock_lobby
	TargetUsername string `json:"target_username,omitempty"` // kick
}

// noticeMessage is for one-off notifications ("kicked", "lobby_locked", etc.)
type noticeMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// sessionInfoMessage is sent on connect so the client knows its role.
type sessionInfoMessage struct {
	Type        string `json:"type"` // "session_info"
	Room        string `json:"room"`
	LobbyLocked bool   `json:"lobby_locked"`
	IsExisting  bool   `json:"is_existing"`
	IsModerator bool   `json:"is_moderator"`
	Username    string `json:"username,omitempty"`
}

type playerState struct {
	Username string       `json:"username"`
	Steps    int          `json:"steps"`
	Links    []versusLink `json:"links"`
}

// roomStateMessage is broadcast whenever the round, the roster or a chain changes.
type roomStateMessage struct {
	Type        string        `json:"type"` // "room_state"
	Round       int           `json:"round"`
	Start       *PuzzleActor  `json:"start,omitempty"`
	Goal        *PuzzleActor  `json:"goal,omitempty"`
	Players     []playerState `json:"players"`
	Winner      string        `json:"winner,omitempty"`
	LobbyLocked bool          `json:"lobby_locked"`
}

// moveResultMessage goes to the mover only.
type moveResultMessage struct {
	Type     string `json:"type"` // "move_result"
	Valid    bool   `json:"valid"`
	Title    string `json:"title"`
	Actor    string `json:"actor"`
	Finished bool   `json:"finished"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type hubRequest struct {
	client *Client
	msg    clientMessage
}

// Hub is one versus room.
type Hub struct {
	id      string
	cfg     *Config
	game    *Game
	puzzles *Puzzles

	clients map[*Client]bool
	players []*versusPlayer

	register chan *Client
	unreg    chan *Client
	joins    chan hubRequest
	mods     chan hubRequest
	done     chan struct{}
	stop     sync.Once

	mu sync.RWMutex

	createdAt         time.Time
	lastActive        time.Time
	lobbyLocked       bool
	moderatorPlayerID string

	round  int
	start  Actor
	goal   Actor
	winner string
}

func newHub(cfg *Config, game *Game, puzzles *Puzzles, roomID string) *Hub {
	now := time.Now()
	return &Hub{
		id:         roomID,
		cfg:        cfg,
		game:       game,
		puzzles:    puzzles,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		joins:      make(chan hubRequest),
		mods:       make(chan hubRequest),
		done:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unreg:
			h.handleUnregister(c)
		case req := <-h.joins:
			h.handleJoin(req)
		case req := <-h.mods:
			h.handleModCommand(req)
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	if h.moderatorPlayerID == "" {
		h.moderatorPlayerID = c.playerID
	}

	h.clients[c] = true

	info := sessionInfoMessage{
		Type:        "session_info",
		Room:        h.id,
		LobbyLocked: h.lobbyLocked,
		IsModerator: h.moderatorPlayerID == c.playerID,
	}
	if p := h.playerLocked(c.playerID); p != nil {
		info.IsExisting = true
		info.Username = p.username
	}

	h.sendLocked(c, info)
	h.sendLocked(c, h.stateLocked())
}

func (h *Hub) handleUnregister(c *Client) {
	h.mu.Lock()
	h.lastActive = time.Now()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	if c.playerID != "" {
		go h.scheduleRemoval(c.playerID, h.cfg.playerTimeout)
	}
}

// playerLocked returns the player behind a cookie, if they have joined.
func (h *Hub) playerLocked(playerID string) *versusPlayer {
	for _, p := range h.players {
		if p.playerID == playerID {
			return p
		}
	}
	return nil
}

// sendLocked queues msg for c, dropping the client if it cannot keep up.
func (h *Hub) sendLocked(c *Client, msg any) {
	if !h.clients[c] {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcastLocked(msg any) {
	for c := range h.clients {
		h.sendLocked(c, msg)
	}
}

func (h *Hub) stateLocked() roomStateMessage {
	msg := roomStateMessage{
		Type:        "room_state",
		Round:       h.round,
		Players:     make([]playerState, 0, len(h.players)),
		Winner:      h.winner,
		LobbyLocked: h.lobbyLocked,
	}

	if h.round > 0 {
		msg.Start = &PuzzleActor{Name: h.start.Name, Image: h.cfg.imageURL(h.start.Image)}
		msg.Goal = &PuzzleActor{Name: h.goal.Name, Image: h.cfg.imageURL(h.goal.Image)}
	}

	for _, p := range h.players {
		links := make([]versusLink, len(p.links))
		copy(links, p.links)

		msg.Players = append(msg.Players, playerState{
			Username: p.username,
			Steps:    len(p.links),
			Links:    links,
		})
	}

	return msg
}

func (h *Hub) broadcastStateLocked() {
	h.broadcastLocked(h.stateLocked())
}

// scheduleRemoval waits for d, and drops the player unless they reconnected.
func (h *Hub) scheduleRemoval(playerID string, d time.Duration) {
	select {
	case <-time.After(d):
	case <-h.done:
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if c.playerID == playerID {
			return
		}
	}

	if !h.removePlayerLocked(func(p *versusPlayer) bool { return p.playerID == playerID }) {
		return
	}

	h.lastActive = time.Now()
	h.broadcastStateLocked()
}

func (h *Hub) removePlayerLocked(match func(*versusPlayer) bool) bool {
	dst := h.players[:0]
	removed := false

	for _, p := range h.players {
		if match(p) {
			removed = true
			continue
		}
		dst = append(dst, p)
	}
	h.players = dst

	return removed
}

func (h *Hub) handleJoin(req hubRequest) {
	c := req.client
	username := strings.TrimSpace(req.msg.Username)

	if username == "" || c.playerID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	if len([]rune(username)) > maxUsername {
		h.sendLocked(c, noticeMessage{Type: "collision", Message: "That username is too long."})
		return
	}

	existing := h.playerLocked(c.playerID)

	if h.lobbyLocked && existing == nil {
		h.sendLocked(c, noticeMessage{Type: "lobby_locked", Message: "The lobby is locked; no new players may join."})
		return
	}

	key := normalizeName(username)
	for _, p := range h.players {
		if p.playerID != c.playerID && normalizeName(p.username) == key {
			h.sendLocked(c, noticeMessage{Type: "collision", Message: "That username is already taken. Please choose a different username."})
			return
		}
	}

	if existing != nil {
		existing.username = username
	} else {
		h.players = append(h.players, &versusPlayer{playerID: c.playerID, username: username})
		logf(h.cfg, "GAMES: Player %q joined %s", username, h.id)
	}

	h.broadcastStateLocked()
}

func (h *Hub) handleModCommand(req hubRequest) {
	c := req.client
	msg := req.msg

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	if h.moderatorPlayerID == "" || c.playerID != h.moderatorPlayerID {
		return
	}

	switch msg.Type {
	case "lock_lobby":
		h.lobbyLocked = msg.Lock != nil && *msg.Lock
		h.broadcastStateLocked()

	case "kick":
		target := normalizeName(msg.TargetUsername)
		if target == "" {
			return
		}

		kicked := ""
		removed := h.removePlayerLocked(func(p *versusPlayer) bool {
			if normalizeName(p.username) == target {
				kicked = p.playerID
				return true
			}
			return false
		})
		if !removed {
			return
		}

		for client := range h.clients {
			if client.playerID != kicked {
				continue
			}
			h.sendLocked(client, noticeMessage{Type: "kicked", Message: "You have been removed by the moderator."})
			if h.clients[client] {
				delete(h.clients, client)
				close(client.send)
			}
		}

		h.broadcastStateLocked()

	case "new_round":
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), h.cfg.requestTimeout)
			defer cancel()

			h.startRound(ctx)
		}()
	}
}

// startRound draws a fresh pair from the puzzle pool and resets every chain.
func (h *Hub) startRound(ctx context.Context) {
	startName, goalName := h.puzzles.randomPair()

	start, goal, err := h.game.resolvePair(ctx, startName, goalName)
	if err != nil {
		logf(h.cfg, "GAMES: Cannot start a round in %s: %v", h.id, err)

		h.mu.Lock()
		h.broadcastLocked(noticeMessage{Type: "round_error", Message: "Could not set up a new round. Please try again."})
		h.mu.Unlock()

		return
	}

	h.beginRound(start, goal)
}

func (h *Hub) beginRound(start, goal Actor) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()
	h.round++
	h.start, h.goal = start, goal
	h.winner = ""

	for _, p := range h.players {
		p.chain, p.links = nil, nil
	}

	logf(h.cfg, "GAMES: Round %d of %s: %q to %q", h.round, h.id, start.Name, goal.Name)

	h.broadcastStateLocked()
}

// move checks one link of the sender's chain. The credit source is queried
// without holding the room lock; the result is dropped if the round or the
// chain moved on in the meantime.
func (h *Hub) move(ctx context.Context, c *Client, msg clientMessage) {
	title, next := strings.TrimSpace(msg.Title), strings.TrimSpace(msg.Actor)
	if title == "" || next == "" {
		return
	}

	h.mu.Lock()
	h.lastActive = time.Now()

	player := h.playerLocked(c.playerID)
	if player == nil || h.round == 0 || h.winner != "" {
		h.sendLocked(c, noticeMessage{Type: "move_rejected", Message: "There is no round in progress."})
		h.mu.Unlock()
		return
	}

	round, steps, from := h.round, len(player.chain), player.last(h.start)
	h.mu.Unlock()

	verdict := h.game.validateFrom(ctx, from, title, Actor{Name: next})

	h.mu.Lock()
	defer h.mu.Unlock()

	player = h.playerLocked(c.playerID)
	if player == nil || h.round != round || h.winner != "" || len(player.chain) != steps {
		return
	}

	result := moveResultMessage{
		Type:  "move_result",
		Valid: verdict.Valid,
		Title: title,
		Actor: next,
	}

	if verdict.Valid {
		player.chain = append(player.chain, *verdict.Actor)
		player.links = append(player.links, versusLink{
			Title:  verdict.Production.Title,
			Actor:  verdict.Actor.Name,
			Poster: h.cfg.imageURL(verdict.Poster),
			Image:  h.cfg.imageURL(verdict.ActorImage),
		})

		result.Title, result.Actor = verdict.Production.Title, verdict.Actor.Name

		if sameActor(*verdict.Actor, h.goal) {
			h.winner = player.username
			result.Finished = true

			logf(h.cfg, "GAMES: %q won round %d of %s in %d steps", player.username, h.round, h.id, len(player.chain))
		}
	}

	h.sendLocked(c, result)

	if verdict.Valid {
		h.broadcastStateLocked()
	}
}

// closeAll disconnects all clients of this hub and stops it.
func (h *Hub) closeAll() {
	h.stop.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

func validRoomID(id string) bool {
	if len(id) != roomIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !strings.ContainsRune(roomIDLetters, rune(id[i])) {
			return false
		}
	}
	return true
}

// RoomManager holds the open rooms keyed by room ID.
type RoomManager struct {
	cfg     *Config
	game    *Game
	puzzles *Puzzles

	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
}

func newRoomManager(cfg *Config, game *Game, puzzles *Puzzles) *RoomManager {
	rm := &RoomManager{
		cfg:         cfg,
		game:        game,
		puzzles:     puzzles,
		hubs:        make(map[string]*Hub),
		idleTimeout: cfg.roomTimeout,
	}
	if rm.idleTimeout > 0 {
		go rm.reaperLoop()
	}
	return rm
}

func (rm *RoomManager) getHub(roomID string) *Hub {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if hub, ok := rm.hubs[roomID]; ok {
		return hub
	}

	hub := newHub(rm.cfg, rm.game, rm.puzzles, roomID)
	rm.hubs[roomID] = hub
	activeRooms.Set(float64(len(rm.hubs)))

	go hub.run()

	return hub
}

// newRoomID generates a crypto-random room ID not used by an open room.
func (rm *RoomManager) newRoomID() string {
	for {
		buf := make([]byte, roomIDLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, roomIDLength)
		for i := range out {
			out[i] = roomIDLetters[int(buf[i])%len(roomIDLetters)]
		}
		id := string(out)

		rm.mu.Lock()
		_, exists := rm.hubs[id]
		rm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

func (rm *RoomManager) reap(now time.Time) {
	cutoff := now.Add(-rm.idleTimeout)

	rm.mu.Lock()
	defer rm.mu.Unlock()

	for id, hub := range rm.hubs {
		hub.mu.RLock()
		last := hub.lastActive
		hub.mu.RUnlock()

		if last.Before(cutoff) {
			delete(rm.hubs, id)
			go hub.closeAll()

			logf(rm.cfg, "GAMES: Closed idle room %s", id)
		}
	}

	activeRooms.Set(float64(len(rm.hubs)))
}

func (rm *RoomManager) reaperLoop() {
	ticker := time.NewTicker(rm.idleTimeout / 2)
	for now := range ticker.C {
		rm.reap(now)
	}
}

func serveRoomSocket(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("gameid")
		if !validRoomID(roomID) {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Websocket upgrade for %s: %v", roomID, err)
			return
		}

		hub := rm.getHub(roomID)

		client := &Client{
			conn:     conn,
			send:     make(chan any, 16),
			playerID: playerID,
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		var queue chan hubRequest
		switch msg.Type {
		case "join":
			queue = h.joins
		case "lock_lobby", "kick", "new_round":
			queue = h.mods
		case "move":
			ctx, cancel := context.WithTimeout(context.Background(), h.cfg.requestTimeout)
			h.move(ctx, c, msg)
			cancel()

			continue
		default:
			continue
		}

		select {
		case queue <- hubRequest{client: c, msg: msg}:
		case <-h.done:
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// serveRoomQR renders a PNG QR code pointing at the room page.
func serveRoomQR(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !validRoomID(ps.ByName("gameid")) {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}

		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		png, err := qrcode.Encode(url, qrcode.Medium, 320)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

func serveRoomPage(cfg *Config, path string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("gameid")
		if !validRoomID(roomID) {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}

		_ = getOrSetPlayerID(w, r)

		room := cfg.prefix + path + "/" + html.EscapeString(roomID)

		var body strings.Builder
		body.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		body.WriteString(`<title>screenlink versus ` + html.EscapeString(roomID) + `</title></head><body>`)
		body.WriteString(`<h1>Room ` + html.EscapeString(roomID) + `</h1>`)
		body.WriteString(`<p>Connect a websocket client to <code>` + room + `/ws</code> to play.</p>`)
		body.WriteString(`<img src="` + room + `/qr" alt="Room QR code" width="320" height="320">`)
		body.WriteString(`</body></html>`)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(body.String()))
	}
}

// redirectNewRoom sends GET $path to a freshly allocated $path/:gameid.
func redirectNewRoom(cfg *Config, path string, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		roomID := rm.newRoomID()
		logf(cfg, "GAMES: Created room %s%s/%s", cfg.prefix, path, roomID)
		http.Redirect(w, r, cfg.prefix+path+"/"+roomID, http.StatusTemporaryRedirect)
	}
}

// registerVersusGame sets up:
//   - $path              → redirect to a new room
//   - $path/:gameid      → room page
//   - $path/:gameid/ws   → websocket for that room
//   - $path/:gameid/qr   → PNG QR code for the room page
func registerVersusGame(cfg *Config, path string, game *Game, puzzles *Puzzles, mux *httprouter.Router) *RoomManager {
	rm := newRoomManager(cfg, game, puzzles)

	mux.GET(cfg.prefix+path, redirectNewRoom(cfg, path, rm))
	mux.GET(cfg.prefix+path+"/:gameid", serveRoomPage(cfg, path))
	mux.GET(cfg.prefix+path+"/:gameid/ws", serveRoomSocket(cfg, rm))
	mux.GET(cfg.prefix+path+"/:gameid/qr", serveRoomQR(cfg))

	return rm
}
