package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/ubiquity/internal/app/playback"
	"github.com/osa030/ubiquity/internal/app/session"
	"github.com/osa030/ubiquity/internal/domain/playlist"
	"github.com/osa030/ubiquity/internal/infra/metadata"
)

var errInvalidParams = errors.New("invalid parameters")

// connectError maps a domain error to a Connect error code.
func connectError(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}
	return connect.NewError(codeOf(err), err)
}

func codeOf(err error) connect.Code {
	switch {
	case errors.Is(err, errInvalidParams),
		errors.Is(err, playback.ErrUnsupportedFormat),
		errors.Is(err, metadata.ErrUnsupported):
		return connect.CodeInvalidArgument
	case errors.Is(err, playlist.ErrIndexOutOfRange),
		errors.Is(err, playback.ErrSeekOutOfRange):
		return connect.CodeOutOfRange
	case errors.Is(err, playlist.ErrCurrentTrack),
		errors.Is(err, playback.ErrNoActiveStream):
		return connect.CodeFailedPrecondition
	case errors.Is(err, session.ErrNotStarted),
		errors.Is(err, playback.ErrEngineClosed),
		errors.Is(err, playback.ErrBackendDisconnected):
		return connect.CodeUnavailable
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	default:
		return connect.CodeInternal
	}
}
