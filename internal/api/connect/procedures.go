// Package connect exposes the player over Connect RPC. Messages are
// google.protobuf.Struct values, so any Connect, gRPC or gRPC-Web client can
// call it without generated stubs.
package connect

// PlayerServiceName is the fully-qualified name of the player service.
const PlayerServiceName = "ubiquity.v1.PlayerService"

// Procedure paths.
const (
	PlayProcedure          = "/" + PlayerServiceName + "/Play"
	PauseProcedure         = "/" + PlayerServiceName + "/Pause"
	ResumeProcedure        = "/" + PlayerServiceName + "/Resume"
	TogglePauseProcedure   = "/" + PlayerServiceName + "/TogglePause"
	StopProcedure          = "/" + PlayerServiceName + "/Stop"
	SkipProcedure          = "/" + PlayerServiceName + "/Skip"
	SelectProcedure        = "/" + PlayerServiceName + "/Select"
	AddAndPlayProcedure    = "/" + PlayerServiceName + "/AddAndPlay"
	SeekProcedure          = "/" + PlayerServiceName + "/Seek"
	SeekToProcedure        = "/" + PlayerServiceName + "/SeekTo"
	SetVolumeProcedure     = "/" + PlayerServiceName + "/SetVolume"
	VolumeUpProcedure      = "/" + PlayerServiceName + "/VolumeUp"
	VolumeDownProcedure    = "/" + PlayerServiceName + "/VolumeDown"
	SetSpeedProcedure      = "/" + PlayerServiceName + "/SetSpeed"
	SpeedUpProcedure       = "/" + PlayerServiceName + "/SpeedUp"
	SpeedDownProcedure     = "/" + PlayerServiceName + "/SpeedDown"
	SetLoopModeProcedure   = "/" + PlayerServiceName + "/SetLoopMode"
	CycleLoopModeProcedure = "/" + PlayerServiceName + "/CycleLoopMode"
	ToggleGaplessProcedure = "/" + PlayerServiceName + "/ToggleGapless"
	AddProcedure           = "/" + PlayerServiceName + "/Add"
	RemoveProcedure        = "/" + PlayerServiceName + "/Remove"
	ClearProcedure         = "/" + PlayerServiceName + "/Clear"
	ListProcedure          = "/" + PlayerServiceName + "/List"
	StatusProcedure        = "/" + PlayerServiceName + "/Status"
	RescanProcedure        = "/" + PlayerServiceName + "/Rescan"
	SubscribeProcedure     = "/" + PlayerServiceName + "/Subscribe"
)
