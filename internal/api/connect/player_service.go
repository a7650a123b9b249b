package connect

import (
	"context"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/ubiquity/internal/app/notification"
	"github.com/osa030/ubiquity/internal/app/playback"
	"github.com/osa030/ubiquity/internal/app/session"
	"github.com/osa030/ubiquity/internal/domain/playlist"
	"github.com/osa030/ubiquity/internal/domain/track"
)

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	session *session.Manager
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(session *session.Manager) *PlayerService {
	return &PlayerService{session: session}
}

type unaryFunc func(ctx context.Context, msg *structpb.Struct) (map[string]any, error)

// NewPlayerServiceHandler builds an HTTP handler serving every procedure of
// svc. It returns the path to mount it on.
func NewPlayerServiceHandler(svc *PlayerService, opts ...connect.HandlerOption) (string, http.Handler) {
	unary := map[string]unaryFunc{
		PlayProcedure:          svc.simple((*playback.Engine).Play),
		PauseProcedure:         svc.simple((*playback.Engine).Pause),
		ResumeProcedure:        svc.simple((*playback.Engine).Resume),
		TogglePauseProcedure:   svc.simple((*playback.Engine).TogglePause),
		StopProcedure:          svc.simple((*playback.Engine).Stop),
		SkipProcedure:          svc.simple((*playback.Engine).Skip),
		VolumeUpProcedure:      svc.simple((*playback.Engine).VolumeUp),
		VolumeDownProcedure:    svc.simple((*playback.Engine).VolumeDown),
		SpeedUpProcedure:       svc.simple((*playback.Engine).SpeedUp),
		SpeedDownProcedure:     svc.simple((*playback.Engine).SpeedDown),
		ClearProcedure:         svc.simple((*playback.Engine).Clear),
		SelectProcedure:        svc.Select,
		AddAndPlayProcedure:    svc.AddAndPlay,
		SeekProcedure:          svc.Seek,
		SeekToProcedure:        svc.SeekTo,
		SetVolumeProcedure:     svc.SetVolume,
		SetSpeedProcedure:      svc.SetSpeed,
		SetLoopModeProcedure:   svc.SetLoopMode,
		CycleLoopModeProcedure: svc.CycleLoopMode,
		ToggleGaplessProcedure: svc.ToggleGapless,
		AddProcedure:           svc.Add,
		RemoveProcedure:        svc.Remove,
		ListProcedure:          svc.List,
		StatusProcedure:        svc.Status,
		RescanProcedure:        svc.Rescan,
	}

	mux := http.NewServeMux()
	for procedure, fn := range unary {
		mux.Handle(procedure, connect.NewUnaryHandler(procedure, wrapUnary(procedure, fn), opts...))
	}
	mux.Handle(SubscribeProcedure, connect.NewServerStreamHandler(SubscribeProcedure, svc.Subscribe, opts...))
	return "/" + PlayerServiceName + "/", mux
}

func wrapUnary(procedure string, fn unaryFunc) func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
		msg := req.Msg
		if msg == nil {
			msg = &structpb.Struct{}
		}
		result, err := fn(ctx, msg)
		if err != nil {
			zlog.Debug().Err(err).Msgf("api: %s failed", procedure)
			return nil, connectError(err)
		}
		res, err := structpb.NewStruct(result)
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, errors.Wrap(err, "failed to encode response"))
		}
		return connect.NewResponse(res), nil
	}
}

func (s *PlayerService) engine() (*playback.Engine, error) {
	engine := s.session.Engine()
	if engine == nil {
		return nil, session.ErrNotStarted
	}
	return engine, nil
}

// simple adapts a parameterless engine command. The response is the status.
func (s *PlayerService) simple(cmd func(*playback.Engine) error) unaryFunc {
	return func(ctx context.Context, _ *structpb.Struct) (map[string]any, error) {
		engine, err := s.engine()
		if err != nil {
			return nil, err
		}
		if err := cmd(engine); err != nil {
			return nil, err
		}
		return s.status(engine)
	}
}

func (s *PlayerService) status(engine *playback.Engine) (map[string]any, error) {
	snap, err := engine.Snapshot()
	if err != nil {
		return nil, err
	}
	return statusFields(snap, engine.BackendName(), s.session.Phase()), nil
}

// Select plays the track at "index".
func (s *PlayerService) Select(ctx context.Context, msg *structpb.Struct) (map[string]any, error) {
	var p indexParams
	if err := decodeParams(msg, &p); err != nil {
		return nil, err
	}
	return s.withEngine(func(e *playback.Engine) error { return e.Select(p.Index) })
}

// AddAndPlay plays the file at "path".
func (s *PlayerService) AddAndPlay(ctx context.Context, msg *structpb.Struct) (map[string]any, error) {
	var p pathParams
	if err := decodeParams(msg, &p); err != nil {
		return nil, err
	}
	return s.withEngine(func(*playback.Engine) error {
		_, err := s.session.PlayFile(p.Path)
		return err
	})
}

// Seek moves by "seconds".
func (s *PlayerService) Seek(ctx context.Context, msg *structpb.Struct) (map[string]any, error) {
	var p seekParams
	if err := decodeParams(msg, &p); err != nil {
		return nil, err
	}
	return s.withEngine(func(e *playback.Engine) error { return e.Seek(p.Seconds) })
}

// SeekTo jumps to "position_ms".
func (s *PlayerService) SeekTo(ctx context.Context, msg *structpb.Struct) (map[string]any, error) {
	var p seekToParams
	if err := decodeParams(msg, &p); err != nil {
		return nil, err
	}
	return s.withEngine(func(e *playback.Engine) error {
		return e.SeekTo(time.Duration(p.PositionMs) * time.Millisecond)
	})
}

func (s *PlayerService) SetVolume(ctx context.Context, msg *structpb.Struct) (map[string]any, error) {
	var p volumeParams
	if err := decodeParams(msg, &p); err != nil {
		return nil, err
	}
	return s.withEngine(func(e *playback.Engine) error { return e.SetVolume(p.Volume) })
}

func (s *PlayerService) SetSpeed(ctx context.Context, msg *structpb.Struct) (map[string]any, error) {
	var p speedParams
	if err := decodeParams(msg, &p); err != nil {
		return nil, err
	}
	return s.withEngine(func(e *playback.Engine) error { return e.SetSpeed(p.Speed) })
}

func (s *PlayerService) SetLoopMode(ctx context.Context, msg *structpb.Struct) (map[string]any, error) {
	var p loopModeParams
	if err := decodeParams(msg, &p); err != nil {
		return nil, err
	}
	mode, err := playlist.ParseLoopMode(p.Mode)
	if err != nil {
		return nil, errors.Mark(err, errInvalidParams)
	}
	return s.withEngine(func(e *playback.Engine) error { return e.SetLoopMode(mode) })
}

func (s *PlayerService) CycleLoopMode(ctx context.Context, _ *structpb.Struct) (map[string]any, error) {
	return s.withEngine(func(e *playback.Engine) error {
		_, err := e.CycleLoopMode()
		return err
	})
}

func (s *PlayerService) ToggleGapless(ctx context.Context, _ *structpb.Struct) (map[string]any, error) {
	return s.withEngine(func(e *playback.Engine) error {
		_, err := e.ToggleGapless()
		return err
	})
}

// Add appends the files in "paths" to the playlist.
func (s *PlayerService) Add(ctx context.Context, msg *structpb.Struct) (map[string]any, error) {
	var p pathsParams
	if err := decodeParams(msg, &p); err != nil {
		return nil, err
	}
	added, err := s.session.AddFiles(p.Paths)
	if err != nil {
		return nil, err
	}
	return map[string]any{"added": trackList(added)}, nil
}

// Remove deletes the track at "index".
func (s *PlayerService) Remove(ctx context.Context, msg *structpb.Struct) (map[string]any, error) {
	var p indexParams
	if err := decodeParams(msg, &p); err != nil {
		return nil, err
	}
	return s.withEngine(func(e *playback.Engine) error { return e.Remove(p.Index) })
}

// List returns the playlist.
func (s *PlayerService) List(ctx context.Context, _ *structpb.Struct) (map[string]any, error) {
	engine, err := s.engine()
	if err != nil {
		return nil, err
	}
	snap, err := engine.Snapshot()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"tracks":      trackList(snap.Tracks),
		"index":       snap.Index,
		"total_ms":    snap.PlaylistLength.Milliseconds(),
		"track_count": len(snap.Tracks),
	}, nil
}

func (s *PlayerService) Status(ctx context.Context, _ *structpb.Struct) (map[string]any, error) {
	engine, err := s.engine()
	if err != nil {
		return nil, err
	}
	return s.status(engine)
}

// Rescan scans the music folders again.
func (s *PlayerService) Rescan(ctx context.Context, _ *structpb.Struct) (map[string]any, error) {
	result, err := s.session.Rescan(ctx)
	if err != nil {
		return nil, err
	}
	rejected := make([]any, len(result.Rejected))
	for i, r := range result.Rejected {
		rejected[i] = map[string]any{"path": r.Path, "code": r.Code}
	}
	return map[string]any{
		"track_count": len(result.Tracks),
		"failed":      result.Failed,
		"rejected":    rejected,
	}, nil
}

func (s *PlayerService) withEngine(cmd func(*playback.Engine) error) (map[string]any, error) {
	engine, err := s.engine()
	if err != nil {
		return nil, err
	}
	if err := cmd(engine); err != nil {
		return nil, err
	}
	return s.status(engine)
}

// Subscribe streams the current status followed by every notification until
// the client goes away or the session ends.
func (s *PlayerService) Subscribe(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
	stream *connect.ServerStream[structpb.Struct],
) error {
	engine, err := s.engine()
	if err != nil {
		return connectError(err)
	}
	initial, err := s.status(engine)
	if err != nil {
		return connectError(err)
	}
	initial["type"] = "initial_state"
	msg, err := structpb.NewStruct(initial)
	if err != nil {
		return connect.NewError(connect.CodeInternal, err)
	}
	if err := stream.Send(msg); err != nil {
		return err
	}

	notifications := s.session.Notifications()
	subscriptionID := notifications.Subscribe(&notificationStreamAdapter{stream: stream})
	defer notifications.Unsubscribe(subscriptionID)

	select {
	case <-ctx.Done():
	case <-s.session.Done():
	}
	return nil
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[structpb.Struct]
}

func (a *notificationStreamAdapter) Send(n *notification.Notification) error {
	msg, err := structpb.NewStruct(n.Fields())
	if err != nil {
		return errors.Wrap(err, "failed to encode notification")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream.Send(msg)
}

func statusFields(snap playback.Snapshot, backend string, phase session.Phase) map[string]any {
	fields := map[string]any{
		"status":      snap.Status.String(),
		"phase":       phase.String(),
		"backend":     backend,
		"index":       snap.Index,
		"track_count": len(snap.Tracks),
		"loop_mode":   snap.LoopMode.String(),
		"gapless":     snap.Gapless,
		"volume":      snap.Volume,
		"speed":       snap.Speed,
		"position_ms": snap.Position.Milliseconds(),
		"total_ms":    snap.Total.Milliseconds(),

		"playlist_ms": snap.PlaylistLength.Milliseconds(),
	}
	if snap.Current != nil {
		fields["current"] = notification.TrackFields(snap.Current)
	}
	if snap.Next != nil {
		fields["next"] = notification.TrackFields(snap.Next)
	}
	return fields
}

func trackList(tracks []track.Track) []any {
	out := make([]any, len(tracks))
	for i := range tracks {
		out[i] = notification.TrackFields(&tracks[i])
	}
	return out
}
