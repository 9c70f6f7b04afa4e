package ui

import (
	"time"

	"github.com/codectx/codectx/internal/index"
	"github.com/codectx/codectx/internal/progress"
)

// StageFromPhase maps an IndexController progress.Phase onto the Stage
// enum this package's renderers draw. Several phases collapse onto one
// Stage because the terminal renderers predate the finer-grained phase
// machine; IndexingFiles, Deleting, Verifying, and Persisting are all
// "the indexing stage" from a display standpoint.
func StageFromPhase(phase progress.Phase) Stage {
	switch phase {
	case progress.PhaseDiscovering, progress.PhaseDiffing:
		return StageScanning
	case progress.PhaseChunking:
		return StageChunking
	case progress.PhaseEmbedding:
		return StageEmbedding
	case progress.PhaseDeleting, progress.PhaseIndexingFiles, progress.PhaseVerifying, progress.PhasePersisting:
		return StageIndexing
	case progress.PhaseDone:
		return StageComplete
	default:
		return StageScanning
	}
}

// EventFromProgress adapts a progress.Event, as emitted by
// internal/index.Controller, into the ProgressEvent shape
// Renderer.UpdateProgress expects.
func EventFromProgress(e progress.Event) ProgressEvent {
	return ProgressEvent{
		Stage:       StageFromPhase(e.Phase),
		Current:     e.Current,
		Total:       e.Total,
		CurrentFile: e.Detail,
		Message:     string(e.Phase),
	}
}

// CompletionStatsFromResult adapts an index.Result into the
// CompletionStats a Renderer's Complete method expects. embedder carries
// the provider/model/dimension triple, which index.Result doesn't know
// about - the caller supplies it from config.
func CompletionStatsFromResult(r *index.Result, embedder EmbedderInfo) CompletionStats {
	warnings := 0
	if r.Verification.Warning {
		warnings = 1
	}
	return CompletionStats{
		Files:    r.IndexedFiles,
		Chunks:   r.TotalChunks,
		Duration: time.Duration(r.DurationMs) * time.Millisecond,
		Errors:   r.Failures,
		Warnings: warnings,
		Embedder: embedder,
	}
}

// DrainProgress reads events off reporter's channel and forwards each to
// renderer until the channel closes. Intended to run in its own goroutine
// alongside a Controller.Run call sharing the same ChannelReporter.
func DrainProgress(renderer Renderer, events <-chan progress.Event) {
	for e := range events {
		renderer.UpdateProgress(EventFromProgress(e))
	}
}
