package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/gamehall/broadcast"
	"github.com/wfunc/gamehall/hall"
	"github.com/wfunc/gamehall/logger"
	"github.com/wfunc/gamehall/matchqueue"
	"github.com/wfunc/gamehall/models"
	"github.com/wfunc/gamehall/monitor"
	"github.com/wfunc/gamehall/network"
	"github.com/wfunc/gamehall/room"
	"github.com/wfunc/gamehall/session"
	"github.com/wfunc/gamehall/state"
)

const (
	requestTimeout = 5 * time.Second
	keyWatching    = "watching" // 当前订阅的 tier 频道
)

// StatsGetter reads a player's statistics for tier listing and queueing.
type StatsGetter interface {
	Get(ctx context.Context, playerID, gameType string) (models.PlayerStats, error)
}

type Options struct {
	Addr              string
	HeartbeatInterval time.Duration
	SendBuffer        int
	RateLimit         float64
	RateBurst         int
	AllowedOrigins    []string
}

type GameServer struct {
	opts     Options
	hall     *hall.Hall
	queue    *matchqueue.Queue
	hub      *broadcast.Hub
	stats    StatsGetter
	monitor  *monitor.Monitor
	sessions *session.Manager
	upgrader websocket.Upgrader
	router   chi.Router
	http     *http.Server
}

func NewGameServer(opts Options, h *hall.Hall, q *matchqueue.Queue, hub *broadcast.Hub, stats StatsGetter, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		opts:     opts,
		hall:     h,
		queue:    q,
		hub:      hub,
		stats:    stats,
		monitor:  mon,
		sessions: session.NewManager(),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *GameServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/ws", s.handleWebSocket)
	r.Handle("/metrics", s.monitor.Handler())
	r.Route("/api/{gameType}", func(r chi.Router) {
		r.Get("/tiers", s.handleTiers)
		r.Get("/tiers/{tierId}/tables", s.handleTables)
	})
	return r
}

// Handler exposes the router, mainly for tests.
func (s *GameServer) Handler() http.Handler { return s.router }

// Sessions returns the live session registry.
func (s *GameServer) Sessions() *session.Manager { return s.sessions }

// Start serves HTTP until Shutdown.
func (s *GameServer) Start() error {
	logger.Log.Infof("Game server listening on %s", s.opts.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes every websocket.
func (s *GameServer) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	for _, sess := range s.sessions.All() {
		sess.Close()
	}
	return err
}

func (s *GameServer) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// --- REST ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warnf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, network.ErrorPayload{Code: hall.ErrorCode(err), Message: err.Error()})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, hall.ErrUnknownGame), errors.Is(err, hall.ErrUnknownTier):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *GameServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	})
}

// GET /api/{gameType}/tiers?playerId=&rating=
func (s *GameServer) handleTiers(w http.ResponseWriter, r *http.Request) {
	gameType := chi.URLParam(r, "gameType")
	rating := models.DefaultRating
	if raw := r.URL.Query().Get("rating"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, network.ErrorPayload{Code: network.CodeBadRequest, Message: "invalid rating"})
			return
		}
		rating = n
	} else if playerID := r.URL.Query().Get("playerId"); playerID != "" && s.stats != nil {
		stats, err := s.stats.Get(r.Context(), playerID, gameType)
		if err != nil {
			logger.Log.Warnf("tiers: stats for %s: %v", playerID, err)
		} else {
			rating = stats.Rating
		}
	}
	tiers, err := s.hall.Tiers(gameType, rating)
	if err != nil {
		writeError(w, httpStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rating": rating, "tiers": tiers})
}

// GET /api/{gameType}/tiers/{tierId}/tables
func (s *GameServer) handleTables(w http.ResponseWriter, r *http.Request) {
	list, err := s.hall.RoomList(chi.URLParam(r, "gameType"), chi.URLParam(r, "tierId"))
	if err != nil {
		writeError(w, httpStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// --- websocket ---

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	if playerID == "" {
		writeJSON(w, http.StatusBadRequest, network.ErrorPayload{Code: network.CodeBadRequest, Message: "playerId required"})
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = playerID
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.serve(conn, playerID, name)
}

func (s *GameServer) serve(conn *websocket.Conn, playerID, name string) {
	wsConn := network.NewWSConnection(uuid.NewString(), conn, s.opts.SendBuffer)
	wsConn.SetHeartbeat(s.opts.HeartbeatInterval)

	sess := session.NewSession(wsConn.ID(), wsConn)
	sess.PlayerID = playerID
	sess.DisplayName = name
	sess.SetRateLimit(s.opts.RateLimit, s.opts.RateBurst)

	s.hub.Register(wsConn)
	s.sessions.Add(sess)
	s.monitor.IncOnlinePlayers()
	logger.Log.Infof("New connection from %s, player %s, session %s", wsConn.RemoteAddr(), playerID, sess.ID)

	defer s.closeSession(sess)

	for {
		env, err := wsConn.ReadEnvelope()
		if err != nil {
			var syntax *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntax) || errors.As(err, &typeErr) {
				sess.Send(network.EventError, network.ErrorPayload{Code: network.CodeBadRequest, Message: "malformed message"})
				continue
			}
			return
		}
		s.monitor.IncMessagesReceived()
		if !sess.Allow() {
			sess.Send(network.EventError, network.ErrorPayload{Code: network.CodeRateLimited, Message: "too many messages"})
			continue
		}
		start := time.Now()
		s.dispatch(sess, env)
		s.monitor.ObserveMessageLatency(env.Event, time.Since(start))
	}
}

func (s *GameServer) closeSession(sess *session.Session) {
	logger.Log.Infof("Connection closed, player %s, session %s", sess.PlayerID, sess.ID)
	s.sessions.Remove(sess.ID)
	s.hub.Unregister(sess.ID)
	if len(s.sessions.GetByPlayerID(sess.PlayerID)) == 0 {
		s.queue.RemovePlayer(sess.PlayerID)
	}
	s.hall.Disconnect(sess.PlayerID, sess.ID)
	s.monitor.DecOnlinePlayers()
	sess.Close()
}

// --- 消息分发 ---

type getRoomsRequest struct {
	GameType string `json:"gameType"`
	TierID   string `json:"tierId"`
}

type joinRequest struct {
	TierID   string               `json:"tierId"`
	TableID  string               `json:"tableId"`
	Settings *state.MatchSettings `json:"settings"`
}

type spectateRequest struct {
	TierID  string `json:"tierId"`
	TableID string `json:"tableId"`
}

type autoMatchRequest struct {
	GameType string              `json:"gameType"`
	Settings state.MatchSettings `json:"settings"`
}

type cancelMatchRequest struct {
	GameType string `json:"gameType"`
}

func (s *GameServer) dispatch(sess *session.Session, env *network.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var err error
	switch env.Event {
	case network.EventPing:
		err = sess.Send(network.EventPong, struct{}{})
	case network.EventGetRooms:
		err = s.onGetRooms(sess, env)
	case network.EventPlayerReady:
		err = s.hall.SetReady(ctx, sess.PlayerID, true)
	case network.EventPlayerUnready:
		err = s.hall.SetReady(ctx, sess.PlayerID, false)
	case network.EventNextRound:
		err = s.hall.NextRound(ctx, sess.PlayerID)
	case network.EventAutoMatch:
		err = s.onAutoMatch(ctx, sess, env)
	case network.EventCancelMatch:
		err = s.onCancelMatch(sess, env)
	default:
		gameType, suffix, ok := network.SplitGameEvent(env.Event)
		if !ok {
			err = sess.Send(network.EventError, network.ErrorPayload{Code: network.CodeBadRequest, Message: "unknown event " + env.Event})
			break
		}
		err = s.onGameEvent(ctx, sess, gameType, suffix, env)
	}
	if err != nil {
		s.fail(sess, env.Event, err)
	}
}

func (s *GameServer) fail(sess *session.Session, event string, err error) {
	code := errorCode(err)
	if code == network.CodeInternal {
		logger.Log.Errorf("%s from %s: %v", event, sess.PlayerID, err)
	} else {
		logger.Log.Debugf("%s from %s rejected: %v", event, sess.PlayerID, err)
	}
	sess.Send(network.EventError, network.ErrorPayload{Code: code, Message: err.Error()})
}

var errBadRequest = errors.New("bad request")

func errorCode(err error) string {
	switch {
	case errors.Is(err, errBadRequest):
		return network.CodeBadRequest
	case errors.Is(err, matchqueue.ErrAlreadyQueued):
		return network.CodeAlreadyQueued
	case errors.Is(err, matchqueue.ErrUnknownGame):
		return network.CodeBadRequest
	}
	return hall.ErrorCode(err)
}

func decode(env *network.Envelope, v any) error {
	if err := env.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

// defaultGame resolves an omitted game type to the session's table or the
// only registered game.
func (s *GameServer) defaultGame(sess *session.Session, gameType string) string {
	if gameType != "" {
		return gameType
	}
	if gt, _, _ := sess.Table(); gt != "" {
		return gt
	}
	if gts := s.hall.GameTypes(); len(gts) > 0 {
		return gts[0]
	}
	return ""
}

func (s *GameServer) onGetRooms(sess *session.Session, env *network.Envelope) error {
	var req getRoomsRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	gameType := s.defaultGame(sess, req.GameType)
	if prev, ok := sess.Get(keyWatching).(getRoomsRequest); ok && prev != (getRoomsRequest{GameType: gameType, TierID: req.TierID}) {
		s.hall.UnwatchTier(prev.GameType, prev.TierID, sess.ID)
	}
	if _, err := s.hall.WatchTier(gameType, req.TierID, sess.ID); err != nil {
		return err
	}
	sess.Set(keyWatching, getRoomsRequest{GameType: gameType, TierID: req.TierID})
	return nil
}

func (s *GameServer) onAutoMatch(ctx context.Context, sess *session.Session, env *network.Envelope) error {
	var req autoMatchRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	gameType := s.defaultGame(sess, req.GameType)
	stats := models.NewPlayerStats(sess.PlayerID, gameType)
	if s.stats != nil {
		if st, err := s.stats.Get(ctx, sess.PlayerID, gameType); err == nil {
			stats = st
		} else {
			logger.Log.Warnf("auto_match: stats for %s: %v", sess.PlayerID, err)
		}
	}
	return s.queue.Enqueue(gameType, matchqueue.Entry{
		PlayerID:    sess.PlayerID,
		ConnID:      sess.ID,
		DisplayName: sess.DisplayName,
		Stats:       stats,
		Preferences: req.Settings,
	})
}

func (s *GameServer) onCancelMatch(sess *session.Session, env *network.Envelope) error {
	var req cancelMatchRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	if req.GameType != "" {
		s.queue.Cancel(req.GameType, sess.PlayerID)
		return nil
	}
	for _, gt := range s.hall.GameTypes() {
		s.queue.Cancel(gt, sess.PlayerID)
	}
	return nil
}

func (s *GameServer) onGameEvent(ctx context.Context, sess *session.Session, gameType, suffix string, env *network.Envelope) error {
	switch suffix {
	case network.SuffixJoin:
		var req joinRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		snap, err := s.hall.Join(ctx, gameType, req.TierID, req.TableID, room.JoinRequest{
			PlayerID:    sess.PlayerID,
			ConnID:      sess.ID,
			DisplayName: sess.DisplayName,
			Settings:    req.Settings,
		})
		if err != nil {
			code := errorCode(err)
			logger.Log.Infof("%s: %s join failed: %s", gameType, sess.PlayerID, code)
			return sess.Send(network.EventJoinFailed, network.ErrorPayload{Code: code, Message: err.Error()})
		}
		sess.SetTable(gameType, snap.TierID, snap.TableID)
		s.queue.RemovePlayer(sess.PlayerID)
		return nil

	case network.SuffixLeave:
		if err := s.hall.Leave(ctx, sess.PlayerID); err != nil {
			return err
		}
		sess.ClearTable()
		return nil

	case network.SuffixSpectate:
		var req spectateRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		_, err := s.hall.Spectate(ctx, gameType, req.TierID, req.TableID, room.SpectateRequest{
			PlayerID:    sess.PlayerID,
			ConnID:      sess.ID,
			DisplayName: sess.DisplayName,
		})
		return err

	case network.SuffixMove:
		return s.hall.Move(ctx, sess.PlayerID, env.Data)
	}
	return errBadRequest
}
