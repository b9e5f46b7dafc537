package network

import "github.com/wfunc/gamehall/models"

// Inbound events. Per game type events are built with GameEvent.
const (
	EventGetRooms      = "get_rooms"
	EventPlayerReady   = "player_ready"
	EventPlayerUnready = "player_unready"
	EventNextRound     = "next_round"
	EventAutoMatch     = "auto_match"
	EventCancelMatch   = "cancel_match"
	EventPing          = "ping"

	SuffixJoin     = "_join"
	SuffixLeave    = "_leave"
	SuffixSpectate = "_spectate"
	SuffixMove     = "_move"
)

// Outbound events.
const (
	EventRoomList               = "room_list"
	EventRoomState              = "room_state"
	EventState                  = "state"
	EventTableState             = "table_state"
	EventReadyCheckStart        = "ready_check_start"
	EventReadyCheckCancelled    = "ready_check_cancelled"
	EventGameLocked             = "game_locked"
	EventGameCountdown          = "game_countdown"
	EventGameCountdownCancelled = "game_countdown_cancelled"
	EventGameStart              = "game_start"
	EventGameMove               = "game_move"
	EventRoundEnded             = "round_ended"
	EventKicked                 = "kicked"
	EventJoinFailed             = "join_failed"
	EventForceStateSync         = "force_state_sync"
	EventMatchQueueJoined       = "match_queue_joined"
	EventMatchFound             = "match_found"
	EventMatchCancelled         = "match_cancelled"
	EventMatchFailed            = "match_failed"
	EventSystemNotice           = "system_notice"
	EventStatsUpdated           = "stats_updated"
	EventSpectateJoined         = "spectate_joined"
	EventError                  = "error"
	EventPong                   = "pong"
)

// GameEvent returns the per game type event name, e.g. GameEvent("chess", SuffixJoin).
func GameEvent(gameType, suffix string) string {
	return gameType + suffix
}

// SplitGameEvent reverses GameEvent for the known suffixes.
func SplitGameEvent(event string) (gameType, suffix string, ok bool) {
	for _, sfx := range []string{SuffixJoin, SuffixLeave, SuffixSpectate, SuffixMove} {
		if n := len(event) - len(sfx); n > 0 && event[n:] == sfx {
			return event[:n], sfx, true
		}
	}
	return "", "", false
}

// Error codes carried in join_failed, kicked and error payloads.
const (
	CodeCriteriaNotMet    = "MATCH_CRITERIA_NOT_MET"
	CodeRoomFull          = "ROOM_FULL"
	CodeTableLocked       = "TABLE_LOCKED"
	CodeNotSeated         = "NOT_SEATED"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeTierForbidden     = "TIER_FORBIDDEN"
	CodeReadyTimeout      = "READY_TIMEOUT"
	CodeZombieRoom        = "ZOMBIE_ROOM"
	CodeAlreadyQueued     = "ALREADY_QUEUED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeBadRequest        = "BAD_REQUEST"
	CodeInternal          = "INTERNAL"
)

// ErrorPayload is the body of join_failed and error events.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type KickedPayload struct {
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

type NoticePayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type CountdownPayload struct {
	Count int `json:"count"`
}

type ReadyCheckStartPayload struct {
	TimeoutMs int64 `json:"timeoutMs"`
}

type ReadyCheckCancelledPayload struct {
	Reason           string   `json:"reason"`
	RemainingPlayers []string `json:"remainingPlayers"`
}

type ForceStateSyncPayload struct {
	NewStatus      string `json:"newStatus"`
	Reason         string `json:"reason"`
	Recommendation string `json:"recommendation"`
}

type MatchFoundPayload struct {
	TableID string `json:"tableId"`
	TierID  string `json:"tierId"`
}

type MatchFailedPayload struct {
	Message string `json:"message"`
}

type RoundEndedPayload struct {
	Result models.RoundResult `json:"result"`
}

type StatsUpdatedPayload struct {
	Stats []models.PlayerStats `json:"stats"`
}
