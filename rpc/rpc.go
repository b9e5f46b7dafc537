package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/gamehall/hall"
	"github.com/wfunc/gamehall/logger"
	"github.com/wfunc/gamehall/models"
	"github.com/wfunc/gamehall/table"
)

const callTimeout = 5 * time.Second

// Server manages the admin RPC listener.
type Server struct {
	listener net.Listener
	address  string
	server   *rpc.Server
}

// NewServer listens on addr and registers the game service.
func NewServer(addr string, svc *GameService) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("GameService", svc); err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		server:   srv,
	}, nil
}

func (s *Server) Addr() string { return s.address }

// Start serves connections until Stop is called.
func (s *Server) Start() error {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return nil
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.server.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// StatsReader is the part of the stats service the admin RPC needs.
type StatsReader interface {
	Get(ctx context.Context, playerID, gameType string) (models.PlayerStats, error)
	History(ctx context.Context, playerID string, limit int) ([]models.RoundRecord, error)
}

// GameService exposes read-only admin methods.
// Methods follow the net/rpc signature: exported args, pointer reply, error.
type GameService struct {
	stats StatsReader
	hall  *hall.Hall
}

func NewGameService(stats StatsReader, h *hall.Hall) *GameService {
	return &GameService{stats: stats, hall: h}
}

type GetPlayerStatsArgs struct {
	PlayerID string
	GameType string
	History  int // 最近几局，0 不查
}

type GetPlayerStatsReply struct {
	Stats    models.PlayerStats
	Location *hall.Location
	Recent   []models.RoundRecord
}

func (gs *GameService) GetPlayerStats(args *GetPlayerStatsArgs, reply *GetPlayerStatsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	stats, err := gs.stats.Get(ctx, args.PlayerID, args.GameType)
	if err != nil {
		return err
	}
	reply.Stats = stats
	if loc, ok := gs.hall.Locate(args.PlayerID); ok {
		reply.Location = &loc
	}
	if args.History > 0 {
		if reply.Recent, err = gs.stats.History(ctx, args.PlayerID, args.History); err != nil {
			return err
		}
	}
	return nil
}

type ListTablesArgs struct {
	GameType string
	TierID   string // empty lists every tier
}

type ListTablesReply struct {
	Tables []table.Summary
}

func (gs *GameService) ListTables(args *ListTablesArgs, reply *ListTablesReply) error {
	tiers := []string{args.TierID}
	if args.TierID == "" {
		var err error
		if tiers, err = gs.hall.TierIDs(args.GameType); err != nil {
			return err
		}
	}
	for _, id := range tiers {
		list, err := gs.hall.RoomList(args.GameType, id)
		if err != nil {
			return err
		}
		reply.Tables = append(reply.Tables, list.Tables...)
	}
	return nil
}
