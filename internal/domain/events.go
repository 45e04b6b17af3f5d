package domain

import "time"

// EngineEvent is a notification from the native engine about one torrent.
// The set is closed: consumers switch over the concrete types below.
type EngineEvent interface {
	TorrentID() TorrentID
	engineEvent()
}

type eventBase struct {
	ID TorrentID
}

func (e eventBase) TorrentID() TorrentID { return e.ID }
func (eventBase) engineEvent()           {}

// TorrentAdded is emitted once the native engine accepted the torrent.
type TorrentAdded struct{ eventBase }

// TorrentResumed is emitted instead of TorrentAdded when resume data carried
// the metadata.
type TorrentResumed struct{ eventBase }

type MetadataReceived struct {
	eventBase
	Info TorrentInfo
}

// PieceDownloadingEvent and PieceFinishedEvent carry the Event suffix to stay
// apart from the PieceState values of the same name.
type PieceDownloadingEvent struct {
	eventBase
	Piece int
}

type PieceFinishedEvent struct {
	eventBase
	Piece int
}

type PieceHashFailed struct {
	eventBase
	Piece int
}

type FileCompleted struct {
	eventBase
	File int
}

// TorrentFinished carries the native per-file completed byte counts.
type TorrentFinished struct {
	eventBase
	FileBytesCompleted []int64
}

type StatsUpdate struct {
	eventBase
	TotalWanted     int64
	DownloadedBytes int64
	UploadedBytes   int64
	DownloadRate    int64
	UploadRate      int64
	At              time.Time
}

type ResumeDataSaved struct {
	eventBase
	Data []byte
}

type TorrentRemoved struct{ eventBase }

func NewTorrentAdded(id TorrentID) TorrentAdded     { return TorrentAdded{eventBase{id}} }
func NewTorrentResumed(id TorrentID) TorrentResumed { return TorrentResumed{eventBase{id}} }
func NewTorrentRemoved(id TorrentID) TorrentRemoved { return TorrentRemoved{eventBase{id}} }

func NewMetadataReceived(id TorrentID, info TorrentInfo) MetadataReceived {
	return MetadataReceived{eventBase: eventBase{id}, Info: info}
}

func NewPieceDownloading(id TorrentID, piece int) PieceDownloadingEvent {
	return PieceDownloadingEvent{eventBase: eventBase{id}, Piece: piece}
}

func NewPieceFinished(id TorrentID, piece int) PieceFinishedEvent {
	return PieceFinishedEvent{eventBase: eventBase{id}, Piece: piece}
}

func NewPieceHashFailed(id TorrentID, piece int) PieceHashFailed {
	return PieceHashFailed{eventBase: eventBase{id}, Piece: piece}
}

func NewFileCompleted(id TorrentID, file int) FileCompleted {
	return FileCompleted{eventBase: eventBase{id}, File: file}
}

func NewTorrentFinished(id TorrentID, fileBytes []int64) TorrentFinished {
	return TorrentFinished{eventBase: eventBase{id}, FileBytesCompleted: fileBytes}
}

func NewResumeDataSaved(id TorrentID, data []byte) ResumeDataSaved {
	return ResumeDataSaved{eventBase: eventBase{id}, Data: data}
}

// NewStatsUpdate builds a stats event; callers fill the counters.
func NewStatsUpdate(id TorrentID, at time.Time) StatsUpdate {
	return StatsUpdate{eventBase: eventBase{id}, At: at}
}
