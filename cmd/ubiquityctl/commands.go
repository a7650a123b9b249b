package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	apiconnect "github.com/osa030/ubiquity/internal/api/connect"
)

// argKind says how a positional argument is sent.
type argKind int

const (
	argInt argKind = iota
	argString
	argStrings // consumes the remaining arguments
	argPosition
)

type argDef struct {
	name string // request field
	help string
	kind argKind
}

type command struct {
	name      string
	help      string
	procedure string
	args      []argDef
	print     func(map[string]any)
}

var commands = []command{
	{name: "status", help: "Show player status", procedure: apiconnect.StatusProcedure},
	{name: "play", help: "Start or resume playback", procedure: apiconnect.PlayProcedure},
	{name: "pause", help: "Pause playback", procedure: apiconnect.PauseProcedure},
	{name: "resume", help: "Resume playback", procedure: apiconnect.ResumeProcedure},
	{name: "toggle", help: "Toggle pause", procedure: apiconnect.TogglePauseProcedure},
	{name: "stop", help: "Stop playback", procedure: apiconnect.StopProcedure},
	{name: "next", help: "Skip to the next track", procedure: apiconnect.SkipProcedure},
	{
		name: "select", help: "Play the track at an index", procedure: apiconnect.SelectProcedure,
		args: []argDef{{name: "index", help: "Playlist index (0-based)", kind: argInt}},
	},
	{
		name: "open", help: "Play a file now", procedure: apiconnect.AddAndPlayProcedure,
		args: []argDef{{name: "path", help: "Audio file", kind: argString}},
	},
	{
		name: "seek", help: "Move by seconds, negative rewinds", procedure: apiconnect.SeekProcedure,
		args: []argDef{{name: "seconds", help: "Offset in seconds", kind: argInt}},
	},
	{
		name: "seek-to", help: "Jump to a position (90, 1:30 or 1m30s)", procedure: apiconnect.SeekToProcedure,
		args: []argDef{{name: "position_ms", help: "Position", kind: argPosition}},
	},
	{
		name: "volume", help: "Set the volume (0-100)", procedure: apiconnect.SetVolumeProcedure,
		args: []argDef{{name: "volume", help: "Volume", kind: argInt}},
	},
	{name: "volume-up", help: "Raise the volume", procedure: apiconnect.VolumeUpProcedure},
	{name: "volume-down", help: "Lower the volume", procedure: apiconnect.VolumeDownProcedure},
	{
		name: "speed", help: "Set the speed in tenths (10 is normal)", procedure: apiconnect.SetSpeedProcedure,
		args: []argDef{{name: "speed", help: "Speed", kind: argInt}},
	},
	{name: "speed-up", help: "Play faster", procedure: apiconnect.SpeedUpProcedure},
	{name: "speed-down", help: "Play slower", procedure: apiconnect.SpeedDownProcedure},
	{
		name: "loop", help: "Set the loop mode (single, queue, playlist)", procedure: apiconnect.SetLoopModeProcedure,
		args: []argDef{{name: "mode", help: "Loop mode", kind: argString}},
	},
	{name: "cycle-loop", help: "Switch to the next loop mode", procedure: apiconnect.CycleLoopModeProcedure},
	{name: "gapless", help: "Toggle gapless playback", procedure: apiconnect.ToggleGaplessProcedure},
	{
		name: "add", help: "Append files to the playlist", procedure: apiconnect.AddProcedure,
		args: []argDef{{name: "paths", help: "Audio files", kind: argStrings}}, print: printAdded,
	},
	{
		name: "remove", help: "Remove the track at an index", procedure: apiconnect.RemoveProcedure,
		args: []argDef{{name: "index", help: "Playlist index (0-based)", kind: argInt}},
	},
	{name: "clear", help: "Stop and empty the playlist", procedure: apiconnect.ClearProcedure},
	{name: "list", help: "List the playlist", procedure: apiconnect.ListProcedure, print: printList},
	{name: "rescan", help: "Scan the music folders again", procedure: apiconnect.RescanProcedure, print: printRescan},
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// params converts positional arguments into request fields.
func (c command) params(args []string) (map[string]any, error) {
	params := make(map[string]any, len(c.args))
	for i, def := range c.args {
		if i >= len(args) {
			return nil, errors.Newf("%s: missing argument <%s>", c.name, def.name)
		}
		switch def.kind {
		case argInt:
			n, err := strconv.Atoi(args[i])
			if err != nil {
				return nil, errors.Newf("%s: <%s> must be a number", c.name, def.name)
			}
			params[def.name] = n
		case argString:
			params[def.name] = args[i]
		case argStrings:
			rest := make([]any, 0, len(args)-i)
			for _, a := range args[i:] {
				rest = append(rest, a)
			}
			params[def.name] = rest
			return params, nil
		case argPosition:
			d, err := parsePosition(args[i])
			if err != nil {
				return nil, errors.Wrapf(err, "%s", c.name)
			}
			params[def.name] = d.Milliseconds()
		}
	}
	if len(args) > len(c.args) {
		return nil, errors.Newf("%s: too many arguments", c.name)
	}
	return params, nil
}

// parsePosition accepts seconds, m:ss, h:mm:ss or a Go duration.
func parsePosition(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	var total int
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, errors.Newf("invalid position %q", s)
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, nil
}
