package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wfunc/gamehall/backfill"
	"github.com/wfunc/gamehall/game"
	"github.com/wfunc/gamehall/logger"
	"github.com/wfunc/gamehall/models"
	"github.com/wfunc/gamehall/network"
	"github.com/wfunc/gamehall/state"
	"github.com/wfunc/gamehall/table"
	"github.com/wfunc/gamehall/timer"
)

// --- 广播 ---

func (r *Room) publish(event string, data any) {
	if err := r.deps.Broadcaster.Publish(r.channel(), event, data); err != nil {
		logger.Log.Warnf("room %s: publish %s: %v", r.ID, event, err)
	}
}

func (r *Room) sendTo(connID, event string, data any) {
	if connID == "" {
		return
	}
	if err := r.deps.Broadcaster.SendTo(connID, event, data); err != nil {
		logger.Log.Debugf("room %s: send %s to %s: %v", r.ID, event, connID, err)
	}
}

func (r *Room) broadcastState() {
	r.publish(network.EventTableState, r.table.Snapshot())
	r.noteChange()
}

func (r *Room) noteChange() {
	if st := r.table.Status; st != r.lastStatus {
		r.deps.Observer.StatusChanged(r.cfg.GameType, r.lastStatus, st)
		r.lastStatus = st
	}
	sum := r.table.Summary()
	prev := r.Summary()
	r.summary.Store(sum)
	if sum != prev && r.deps.OnChange != nil {
		r.deps.OnChange(sum)
	}
}

func (r *Room) playerIDs() []string {
	ids := make([]string, 0, len(r.table.Players))
	for _, p := range r.table.Players {
		ids = append(ids, p.PlayerID)
	}
	return ids
}

// --- 入座 / 离座 ---

func (r *Room) handleJoin(req JoinRequest) (table.Snapshot, error) {
	if p := r.table.Player(req.PlayerID); p != nil {
		// same player on a new connection
		if req.ConnID != "" && req.ConnID != p.ConnID {
			r.deps.Broadcaster.Unsubscribe(r.channel(), p.ConnID)
			p.ConnID = req.ConnID
			r.deps.Broadcaster.Subscribe(r.channel(), req.ConnID)
		}
		return r.table.Snapshot(), nil
	}

	if err := r.admit(req); err != nil {
		r.deps.Observer.JoinRejected(r.cfg.GameType, ErrorCode(err))
		logger.Log.Infof("room %s: join %s rejected: %v", r.ID, req.PlayerID, err)
		return table.Snapshot{}, err
	}
	logger.Log.Infof("room %s: %s joined (%d/%d)", r.ID, req.PlayerID, len(r.table.Players), r.table.MaxPlayers)
	r.broadcastState()
	return r.table.Snapshot(), nil
}

// admit is the single admission path for humans and backfill participants.
// A rejection leaves the table untouched.
func (r *Room) admit(req JoinRequest) error {
	if r.phase == PhaseCountdown || r.phase == PhaseRound || r.table.Locked {
		return ErrTableLocked
	}
	if r.table.IsFull() {
		return ErrRoomFull
	}

	stats := r.loadStats(req)
	settings := state.DefaultMatchSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}
	if res := state.CheckMatchCriteria(stats, settings, r.table.MatchSettings, r.table.IsEmpty()); !res.Allowed {
		return fmt.Errorf("%w: %s", ErrCriteriaNotMet, res.Reason)
	}

	err := r.table.AddPlayer(table.JoinData{
		PlayerID:    req.PlayerID,
		ConnID:      req.ConnID,
		DisplayName: req.DisplayName,
		IsBackfill:  req.IsBackfill,
		Stats:       stats,
		Preferences: req.Settings,
	})
	switch {
	case errors.Is(err, table.ErrTableFull):
		return ErrRoomFull
	case errors.Is(err, table.ErrTableLocked):
		return ErrTableLocked
	case errors.Is(err, table.ErrInvalidTransition):
		logger.Log.Errorf("room %s: %v", r.ID, err)
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	case err != nil:
		return err
	}

	if req.ConnID != "" {
		r.deps.Broadcaster.Subscribe(r.channel(), req.ConnID)
	}
	r.sameMatch = false
	r.afterJoin()
	return nil
}

func (r *Room) loadStats(req JoinRequest) models.PlayerStats {
	if req.Stats != nil {
		return *req.Stats
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.StatsTimeout)
	defer cancel()
	stats, err := r.deps.Stats.Get(ctx, req.PlayerID, r.cfg.GameType)
	if err != nil {
		logger.Log.Warnf("room %s: stats for %s unavailable, using defaults: %v", r.ID, req.PlayerID, err)
		return models.NewPlayerStats(req.PlayerID, r.cfg.GameType)
	}
	return stats
}

func (r *Room) afterJoin() {
	switch {
	case r.table.IsFull():
		r.startReadyCheck()
	default:
		// an armed backfill keeps its deadline
		r.armBackfill()
	}
}

func (r *Room) handleSpectate(req SpectateRequest) (table.Snapshot, error) {
	if !r.cfg.AllowSpectators {
		return table.Snapshot{}, ErrSpectatorsDisabled
	}
	err := r.table.AddSpectator(table.Spectator{
		PlayerID:    req.PlayerID,
		ConnID:      req.ConnID,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return table.Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	if req.ConnID != "" {
		r.deps.Broadcaster.Subscribe(r.channel(), req.ConnID)
	}
	snap := r.table.Snapshot()
	r.sendTo(req.ConnID, network.EventSpectateJoined, snap)
	r.broadcastState()
	return snap, nil
}

func (r *Room) removeSpectator(sp *table.Spectator) {
	r.table.RemoveSpectator(sp.PlayerID)
	if sp.ConnID != "" {
		r.deps.Broadcaster.Unsubscribe(r.channel(), sp.ConnID)
	}
	r.broadcastState()
}

func (r *Room) handleLeave(playerID string) error {
	if sp := r.table.Spectator(playerID); sp != nil {
		r.removeSpectator(sp)
		return nil
	}
	p := r.table.Player(playerID)
	if p == nil {
		return ErrNotSeated
	}
	if r.phase == PhaseCountdown || r.phase == PhaseRound || r.table.Locked {
		return ErrTableLocked
	}
	r.removeSeated(p, "player_left")
	return nil
}

func (r *Room) handleDisconnect(playerID, connID string) {
	if sp := r.table.Spectator(playerID); sp != nil {
		if connID == "" || sp.ConnID == connID {
			r.removeSpectator(sp)
		}
		return
	}
	p := r.table.Player(playerID)
	if p == nil {
		return
	}
	if connID != "" && p.ConnID != connID {
		logger.Log.Debugf("room %s: stale disconnect for %s ignored", r.ID, playerID)
		return
	}

	if r.phase == PhaseRound {
		logger.Log.Warnf("room %s: %s disconnected during round %d", r.ID, playerID, r.table.RoundNumber)
		if !p.IsBackfill {
			r.recordDisconnect(playerID)
		}
		r.finishRound(r.adjudicate(playerID))
	}
	r.removeSeated(p, "player_disconnected")
}

func (r *Room) adjudicate(playerID string) models.RoundResult {
	if adj, ok := r.game.(game.DisconnectAdjudicator); ok {
		if res := adj.AdjudicateDisconnect(playerID); res != nil {
			return *res
		}
	}
	return models.RoundResult{Aborted: true, Forfeits: []string{playerID}}
}

func (r *Room) recordDisconnect(playerID string) {
	r.async.Add(1)
	go func() {
		defer r.async.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.StatsTimeout)
		defer cancel()
		if err := r.deps.Stats.RecordDisconnect(ctx, playerID, r.cfg.GameType); err != nil {
			logger.Log.Warnf("room %s: record disconnect for %s: %v", r.ID, playerID, err)
		}
	}()
}

// evict unseats a player without touching the phase.
func (r *Room) evict(p *table.Player) {
	r.table.RemovePlayer(p.PlayerID)
	if p.ConnID != "" {
		r.deps.Broadcaster.Unsubscribe(r.channel(), p.ConnID)
	}
	if t, ok := r.botTimers[p.PlayerID]; ok {
		t.Cancel()
		delete(r.botTimers, p.PlayerID)
	}
	if p.IsBackfill && r.deps.Backfill != nil {
		r.deps.Backfill.Release(p.PlayerID)
	}
	r.sameMatch = false
}

func (r *Room) removeSeated(p *table.Player, reason string) {
	r.evict(p)
	logger.Log.Infof("room %s: %s removed (%s)", r.ID, p.PlayerID, reason)

	switch r.phase {
	case PhaseCountdown:
		r.disarm()
		r.publish(network.EventGameCountdownCancelled, struct{}{})
	case PhaseReadyCheck:
		r.disarm()
		r.publish(network.EventReadyCheckCancelled, network.ReadyCheckCancelledPayload{
			Reason:           reason,
			RemainingPlayers: r.playerIDs(),
		})
	case PhaseRematch:
		r.disarm()
		r.stopRematch()
	default:
		r.disarm()
	}
	r.settleOccupancy()
	r.broadcastState()
}

// settleOccupancy picks the idle phase for the current occupants. The phase
// timer must already be disarmed.
func (r *Room) settleOccupancy() {
	r.phase = PhaseIdle
	if r.table.HumanCount() == 0 {
		for _, p := range append([]*table.Player(nil), r.table.Players...) {
			r.evict(p)
		}
	}
	if !r.table.IsEmpty() && !r.table.IsFull() {
		r.armBackfill()
	}
}

// --- 准备 / 倒计时 ---

func (r *Room) startReadyCheck() {
	r.arm(PhaseReadyCheck, timer.KindReadyCheck, r.cfg.ReadyTimeout)
	r.table.StartReadyWindow(time.Now().Add(r.cfg.ReadyTimeout))
	r.publish(network.EventReadyCheckStart, network.ReadyCheckStartPayload{
		TimeoutMs: r.cfg.ReadyTimeout.Milliseconds(),
	})
	for _, p := range r.table.Players {
		if p.IsBackfill && !p.Ready {
			r.scheduleBotReady(p)
		}
	}
}

func (r *Room) handleReady(playerID string, ready bool) error {
	if r.table.Player(playerID) == nil {
		return ErrNotSeated
	}
	if r.phase == PhaseCountdown || r.phase == PhaseRound {
		return ErrTableLocked
	}
	out, err := r.table.SetPlayerReady(playerID, ready)
	switch {
	case errors.Is(err, table.ErrPlayerNotFound):
		return ErrNotSeated
	case errors.Is(err, table.ErrTableLocked):
		return ErrTableLocked
	case err != nil:
		return err
	}

	switch out {
	case table.ReadyUnchanged:
	case table.ReadyAllReady:
		r.broadcastState()
		r.beginGameStart()
	default:
		r.broadcastState()
	}
	return nil
}

// beginGameStart locks the table and runs the 3-2-1 countdown. Arming the
// countdown cancels the ready check, so a ready check that fires afterwards
// carries a stale token and is dropped.
func (r *Room) beginGameStart() {
	r.disarm()
	r.stopRematch()
	r.table.CancelReadyWindow()
	r.table.ClearNextRoundRequests()
	r.table.Lock()
	r.publish(network.EventGameLocked, struct{}{})

	if r.sameMatch || r.cfg.CountdownFrom <= 0 {
		r.startRound()
		return
	}
	r.countLeft = r.cfg.CountdownFrom
	r.arm(PhaseCountdown, timer.KindGameStart, r.cfg.CountdownTick)
	r.publish(network.EventGameCountdown, network.CountdownPayload{Count: r.countLeft})
	r.broadcastState()
}

func (r *Room) onCountdownTick() {
	r.countLeft--
	if r.countLeft > 0 {
		r.arm(PhaseCountdown, timer.KindGameStart, r.cfg.CountdownTick)
		r.publish(network.EventGameCountdown, network.CountdownPayload{Count: r.countLeft})
		return
	}
	r.startRound()
}

func (r *Room) onReadyCheckExpired() {
	r.phase = PhaseIdle
	notReady := r.table.NotReady()
	if len(notReady) == 0 {
		r.beginGameStart()
		return
	}

	for _, p := range notReady {
		r.sendTo(p.ConnID, network.EventKicked, network.KickedPayload{
			Reason: "ready check timed out",
			Code:   network.CodeReadyTimeout,
		})
		r.deps.Observer.PlayerKicked(r.cfg.GameType, network.CodeReadyTimeout)
		r.evict(p)
		logger.Log.Infof("room %s: %s kicked (%s)", r.ID, p.PlayerID, network.CodeReadyTimeout)
	}
	r.table.ResetReadyFlags()
	r.table.CancelReadyWindow()
	r.publish(network.EventReadyCheckCancelled, network.ReadyCheckCancelledPayload{
		Reason:           "ready_timeout",
		RemainingPlayers: r.playerIDs(),
	})
	r.settleOccupancy()
	r.broadcastState()
}

// --- 对局 ---

func (r *Room) roundPlayers() []models.RoundPlayer {
	out := make([]models.RoundPlayer, 0, len(r.table.Players))
	for _, p := range r.table.Players {
		out = append(out, models.RoundPlayer{
			PlayerID:    p.PlayerID,
			DisplayName: p.DisplayName,
			Seat:        p.SeatIndex,
			IsBackfill:  p.IsBackfill,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out
}

func (r *Room) startRound() {
	r.disarm()
	if err := r.table.BeginRound(); err != nil {
		logger.Log.Errorf("room %s: begin round: %v", r.ID, err)
		r.table.Unlock()
		r.publish(network.EventGameCountdownCancelled, struct{}{})
		r.settleOccupancy()
		r.broadcastState()
		return
	}

	payload, err := r.game.InitRound(game.RoundContext{
		TableID:     r.ID,
		TierID:      r.TierID,
		GameType:    r.cfg.GameType,
		RoundNumber: r.table.RoundNumber,
		Stake:       r.table.MatchSettings.Stake,
		Players:     r.roundPlayers(),
	})
	if err != nil {
		logger.Log.Errorf("room %s: init round: %v", r.ID, err)
		if err := r.table.EndRound(); err != nil {
			logger.Log.Errorf("room %s: %v", r.ID, err)
		}
		r.publish(network.EventSystemNotice, network.NoticePayload{Level: "error", Message: "round could not be started"})
		r.startReadyCheck()
		r.broadcastState()
		return
	}

	r.phase = PhaseRound
	r.roundStarted = time.Now()
	r.deps.Observer.RoundStarted(r.cfg.GameType)
	logger.Log.Infof("room %s: round %d started", r.ID, r.table.RoundNumber)
	r.publish(network.EventGameStart, payload)
	r.broadcastState()
}

func (r *Room) handleMove(playerID string, move json.RawMessage) error {
	if r.phase != PhaseRound {
		return ErrNoRound
	}
	if r.table.Player(playerID) == nil {
		return ErrNotSeated
	}
	out, err := r.game.HandleMove(playerID, move)
	if err != nil {
		return err
	}
	if out.Broadcast != nil {
		r.publish(network.EventGameMove, out.Broadcast)
	}
	if out.Result != nil {
		r.finishRound(*out.Result)
	}
	return nil
}

func (r *Room) handleRoundEnd(result models.RoundResult) error {
	if r.phase != PhaseRound {
		return ErrNoRound
	}
	r.finishRound(result)
	return nil
}

func (r *Room) fillResult(res *models.RoundResult) {
	res.TableID = r.ID
	res.TierID = r.TierID
	res.GameType = r.cfg.GameType
	if res.Stake == 0 {
		res.Stake = r.table.MatchSettings.Stake
	}
	if len(res.Players) == 0 {
		res.Players = r.roundPlayers()
	}
	if res.RoundID == "" {
		res.RoundID = ulid.Make().String()
	}
	if res.StartedAt.IsZero() {
		res.StartedAt = r.roundStarted
	}
	if res.EndedAt.IsZero() {
		res.EndedAt = time.Now()
	}
}

// finishRound moves PLAYING -> MATCHING and opens the next round consent.
// The outcome is committed here; stats and settlement follow asynchronously.
func (r *Room) finishRound(res models.RoundResult) {
	r.fillResult(&res)
	if err := r.table.EndRound(); err != nil {
		logger.Log.Errorf("room %s: end round: %v", r.ID, err)
	}
	r.deps.Observer.RoundEnded(r.cfg.GameType, time.Since(r.roundStarted))
	logger.Log.Infof("room %s: round %s ended, winner=%q aborted=%v", r.ID, res.RoundID, res.WinnerID, res.Aborted)

	r.sameMatch = true
	r.publish(network.EventRoundEnded, network.RoundEndedPayload{Result: res})
	r.persistRound(res)
	r.startRematch()
	r.broadcastState()
}

func (r *Room) persistRound(res models.RoundResult) {
	r.async.Add(1)
	go func() {
		defer r.async.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.StatsTimeout)
		updated, err := r.deps.Stats.RecordRound(ctx, res)
		cancel()
		if err != nil {
			logger.Log.Warnf("room %s: record round %s: %v", r.ID, res.RoundID, err)
			r.queue.push(noticeCmd{event: network.EventSystemNotice, data: network.NoticePayload{
				Level:   "warning",
				Message: "statistics could not be saved for the last round",
			}})
		} else if len(updated) > 0 {
			r.queue.push(noticeCmd{event: network.EventStatsUpdated, data: network.StatsUpdatedPayload{Stats: updated}})
		}

		if r.deps.Settler == nil {
			return
		}
		ctx, cancel = context.WithTimeout(context.Background(), r.cfg.StatsTimeout)
		defer cancel()
		if err := r.deps.Settler.Settle(ctx, res); err != nil {
			logger.Log.Warnf("room %s: settle round %s: %v", r.ID, res.RoundID, err)
			r.queue.push(noticeCmd{event: network.EventSystemNotice, data: network.NoticePayload{
				Level:   "warning",
				Message: "settlement for the last round failed and will be reconciled",
			}})
		}
	}()
}

// --- 再来一局 ---

func (r *Room) startRematch() {
	r.arm(PhaseRematch, timer.KindRematch, r.cfg.RematchTimeout)

	r.stopRematch()
	r.rematchGen++
	seats := make([]int, 0, len(r.table.Players))
	for _, p := range r.table.Players {
		seats = append(seats, p.SeatIndex)
	}
	r.rematch = newConsent(r.rematchGen, seats, func(gen uint64) {
		r.queue.push(rematchDoneCmd{gen: gen})
	})

	// backfill participants always agree
	for _, p := range r.table.Players {
		if p.IsBackfill {
			if err := r.consentNextRound(p); err != nil {
				logger.Log.Debugf("room %s: bot consent: %v", r.ID, err)
			}
		}
	}
}

// stopRematch ends the current consent window, if any.
func (r *Room) stopRematch() {
	if r.rematch == nil {
		return
	}
	r.rematch.abandon()
	r.rematch = nil
}

// consentNextRound records the request on the table and hands it to the
// consent group. The round starts when the group completes.
func (r *Room) consentNextRound(p *table.Player) error {
	if _, err := r.table.RequestNextRound(p.PlayerID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	if r.rematch != nil {
		r.rematch.ready(p.SeatIndex)
	}
	return nil
}

func (r *Room) handleNextRound(playerID string) error {
	p := r.table.Player(playerID)
	if p == nil {
		return ErrNotSeated
	}
	switch r.phase {
	case PhaseRematch:
		return r.consentNextRound(p)
	case PhaseCountdown, PhaseRound:
		return ErrTableLocked
	default:
		// the consent window is over; asking again counts as ready
		return r.handleReady(playerID, true)
	}
}

func (r *Room) handleRematchDone(gen uint64) {
	if r.rematch == nil || r.rematch.gen != gen || r.phase != PhaseRematch {
		return
	}
	r.rematch = nil
	logger.Log.Infof("room %s: every seat agreed to round %d", r.ID, r.table.RoundNumber+1)
	r.beginGameStart()
}

func (r *Room) onRematchExpired() {
	r.stopRematch()
	r.table.ClearNextRoundRequests()
	r.phase = PhaseIdle
	r.publish(network.EventForceStateSync, network.ForceStateSyncPayload{
		NewStatus:      string(r.table.Status),
		Reason:         "rematch_timeout",
		Recommendation: "ready_up",
	})
	if r.table.IsFull() {
		r.startReadyCheck()
	} else {
		r.settleOccupancy()
	}
	r.broadcastState()
}

// --- 机器人 ---

// armBackfill schedules one backfill seat. Each seated participant re-arms
// it until the table is full.
func (r *Room) armBackfill() {
	if !r.cfg.Backfill.Enabled || r.deps.Backfill == nil || r.phase != PhaseIdle || r.table.IsFull() {
		return
	}
	human := r.firstHuman()
	if human == nil {
		return
	}
	d := state.BackfillDelay(human.Stats.Rating, r.cfg.Backfill.MinDelay, r.cfg.Backfill.MaxDelay)
	r.arm(PhaseBackfill, timer.KindBackfill, d)
}

func (r *Room) firstHuman() *table.Player {
	for _, p := range r.table.Players {
		if !p.IsBackfill {
			return p
		}
	}
	return nil
}

func (r *Room) onBackfillDue() {
	r.phase = PhaseIdle
	human := r.firstHuman()
	if r.table.IsFull() || human == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.StatsTimeout)
	defer cancel()
	part, err := r.deps.Backfill.Acquire(ctx, backfill.Request{
		GameType:      r.cfg.GameType,
		TableID:       r.ID,
		TierID:        r.TierID,
		TargetRating:  human.Stats.Rating,
		TableSettings: r.table.MatchSettings,
	})
	if err != nil {
		logger.Log.Infof("room %s: no backfill participant: %v", r.ID, err)
		r.armBackfill()
		return
	}

	err = r.admit(JoinRequest{
		PlayerID:    part.PlayerID,
		DisplayName: part.DisplayName,
		Settings:    part.Preferences,
		Stats:       &part.Stats,
		IsBackfill:  true,
	})
	if err != nil {
		logger.Log.Warnf("room %s: backfill %s rejected: %v", r.ID, part.PlayerID, err)
		r.deps.Backfill.Release(part.PlayerID)
		r.armBackfill()
		return
	}
	r.deps.Observer.BackfillSeated(r.cfg.GameType)
	logger.Log.Infof("room %s: backfill %s seated", r.ID, part.PlayerID)
	r.broadcastState()
}

// scheduleBotReady arms a per-bot timer outside the phase slot.
func (r *Room) scheduleBotReady(p *table.Player) {
	if _, pending := r.botTimers[p.PlayerID]; pending || p.Ready {
		return
	}
	r.tokens++
	id := p.PlayerID
	d := r.randomDelay(r.cfg.Backfill.ReadyMinDelay, r.cfg.Backfill.ReadyMaxDelay)
	c, err := timer.StartCountdown(timer.KindBotReady, r.tokens, d, func(_ timer.Kind, tok uint64) {
		r.queue.push(botReadyCmd{playerID: id, token: tok})
	})
	if err != nil {
		logger.Log.Errorf("room %s: schedule ready for %s: %v", r.ID, id, err)
		return
	}
	r.botTimers[id] = c
}

func (r *Room) handleBotReady(playerID string, token uint64) {
	c, ok := r.botTimers[playerID]
	if !ok || c.Token != token {
		return
	}
	delete(r.botTimers, playerID)
	if err := r.handleReady(playerID, true); err != nil {
		logger.Log.Debugf("room %s: bot %s ready: %v", r.ID, playerID, err)
	}
}

// --- 僵尸桌 ---

func (r *Room) handleZombieCheck(now time.Time) bool {
	if r.table.IsEmpty() || !state.IsZombie(r.table.FirstPlayerJoinedAt, r.table.Status, now, r.cfg.ZombieTimeout) {
		return false
	}
	logger.Log.Warnf("room %s: zombie table, evicting %d players", r.ID, len(r.table.Players))

	r.disarm()
	r.stopRematch()
	for _, p := range append([]*table.Player(nil), r.table.Players...) {
		r.sendTo(p.ConnID, network.EventKicked, network.KickedPayload{
			Reason: "table idle too long",
			Code:   network.CodeZombieRoom,
		})
		r.deps.Observer.PlayerKicked(r.cfg.GameType, network.CodeZombieRoom)
		r.evict(p)
	}
	r.phase = PhaseIdle
	r.broadcastState()
	return true
}
