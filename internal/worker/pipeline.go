package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/bobarin/codereel/internal/apperr"
	"github.com/bobarin/codereel/internal/models"
	"github.com/bobarin/codereel/internal/narration"
	"github.com/bobarin/codereel/internal/schema"
	"github.com/bobarin/codereel/internal/storage"
	"github.com/bobarin/codereel/internal/syncplan"
)

// Prepare runs the prep pipeline for one job. Stages are strictly
// sequential; every write uses a job-scoped key so a redelivered message
// overwrites rather than duplicates.
func (w *Worker) Prepare(ctx context.Context, prep models.PrepMessage) error {
	jobID := prep.JobID

	prepping := models.JobStatusPrepping
	if err := w.jobs.UpdateJob(ctx, jobID, models.JobPatch{Status: &prepping}); err != nil {
		return fmt.Errorf("failed to mark job prepping: %w", err)
	}

	// (a) detection
	det, err := w.gen.Detect(ctx, prep.Code, string(prep.Language))
	if err != nil {
		return err
	}
	log.Printf("[Worker] job %s: detected %s (confidence %.2f)", jobID, det.AlgoID, det.Confidence)
	if err := w.jobs.UpdateJob(ctx, jobID, models.JobPatch{Algo: &det.AlgoID}); err != nil {
		return fmt.Errorf("failed to record algorithm: %w", err)
	}

	// (b) storyboard
	rawBoard, err := w.gen.Storyboard(ctx, det.AlgoID, prep.Code, string(prep.Language))
	if err != nil {
		return err
	}
	sb, err := schema.ValidateStoryboard(rawBoard)
	if err != nil {
		return fmt.Errorf("storyboard rejected: %w", err)
	}
	boardJSON, err := json.Marshal(sb)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to encode storyboard", err)
	}
	if err := w.blobs.Put(ctx, storage.EventsKey(jobID), boardJSON, "application/json"); err != nil {
		return fmt.Errorf("failed to store storyboard: %w", err)
	}
	log.Printf("[Worker] job %s: storyboard accepted (%d scenes)", jobID, len(sb.Scenes))

	// (c) narration
	narr := w.narrate(ctx, jobID, det.AlgoID, sb, boardJSON)
	if err := schema.CheckNarration(narr); err != nil {
		return fmt.Errorf("narration rejected: %w", err)
	}
	if err := w.blobs.PutJSON(ctx, storage.NarrationKey(jobID), narr); err != nil {
		return fmt.Errorf("failed to store narration: %w", err)
	}

	// (d) complexity
	rawComplexity, err := w.gen.Complexity(ctx, det.AlgoID)
	if err != nil {
		return err
	}
	complexity, err := schema.ValidateComplexity(rawComplexity)
	if err != nil {
		return fmt.Errorf("complexity rejected: %w", err)
	}
	if err := w.blobs.PutJSON(ctx, storage.ComplexityKey(jobID), complexity); err != nil {
		return fmt.Errorf("failed to store complexity: %w", err)
	}

	// (e) sync plan
	narrJSON, err := json.Marshal(narr)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to encode narration", err)
	}
	candidate, err := w.gen.SyncPlan(ctx, boardJSON, narrJSON)
	if err != nil {
		// A missing candidate is covered by the identity plan.
		log.Printf("[Worker] job %s: Warning: sync candidate unavailable: %v", jobID, err)
		candidate = nil
	}
	planned := syncplan.Plan(sb, narr, candidate)
	if planned.UsedFallback() {
		log.Printf("[Worker] job %s: Warning: sync candidate rejected, using identity plan: %v", jobID, planned.Rejected)
	}
	if err := w.blobs.PutJSON(ctx, storage.SyncKey(jobID), planned.Plan); err != nil {
		return fmt.Errorf("failed to store sync plan: %w", err)
	}

	// (f) audio; never fails the job
	clips := w.audio.Synthesize(ctx, jobID, planned.Fused)
	audioKeys := make([]string, len(clips))
	silent := 0
	for i, clip := range clips {
		key := storage.AudioKey(jobID, i, clip.Ext)
		if err := w.blobs.Put(ctx, key, clip.Data, clip.ContentType); err != nil {
			return fmt.Errorf("failed to store audio for scene %d: %w", i, err)
		}
		audioKeys[i] = key
		if clip.Silent {
			silent++
		}
	}
	if err := w.pruneAudio(ctx, jobID, audioKeys); err != nil {
		return err
	}
	log.Printf("[Worker] job %s: stored %d audio clips (%d silent)", jobID, len(clips), silent)

	// (g) upload target
	var target *models.UploadTarget
	if w.uploads != nil {
		target, err = w.uploads.CreateDirectUpload(ctx)
		if err != nil {
			return fmt.Errorf("failed to create upload target: %w", err)
		}
	}

	// (h) signed URLs, (i) render request
	msg := models.RenderMessage{
		JobID:  jobID,
		AlgoID: det.AlgoID,
		Assets: w.bundle.Assets(jobID, audioKeys),
		Stream: target,
	}
	if err := w.queue.EnqueueRender(ctx, msg); err != nil {
		return fmt.Errorf("failed to enqueue render: %w", err)
	}

	ready := models.JobStatusReadyToRender
	message := readyMessage
	patch := models.JobPatch{Status: &ready, Message: &message}
	if target != nil && target.UID != "" {
		patch.StreamUID = &target.UID
	}
	if err := w.jobs.UpdateJob(ctx, jobID, patch); err != nil {
		return fmt.Errorf("failed to mark job ready: %w", err)
	}
	return nil
}

// narrate returns the generated narration when it validates, or the
// rule-based lines derived from the storyboard otherwise.
func (w *Worker) narrate(ctx context.Context, jobID, algoID string, sb *schema.Storyboard, boardJSON []byte) *schema.Narration {
	raw, err := w.gen.Narration(ctx, algoID, boardJSON)
	if err == nil {
		narr, verr := schema.ValidateNarration(raw)
		if verr == nil {
			return narr
		}
		err = verr
	}
	log.Printf("[Worker] job %s: Warning: using fallback narration: %v", jobID, err)
	return &schema.Narration{Version: schema.DefaultVersion, Lines: narration.Fallback(sb)}
}

// pruneAudio deletes audio objects left by an earlier run of the same job
// whose key differs from this run's, such as 003.mp3 once scene 3 fell back
// to 003.wav. Afterwards the audio prefix holds exactly keep.
func (w *Worker) pruneAudio(ctx context.Context, jobID string, keep []string) error {
	existing, err := w.blobs.List(ctx, storage.AudioPrefix(jobID))
	if err != nil {
		return fmt.Errorf("failed to list audio: %w", err)
	}
	wanted := make(map[string]bool, len(keep))
	for _, key := range keep {
		wanted[key] = true
	}
	var stale []string
	for _, key := range existing {
		if !wanted[key] {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	log.Printf("[Worker] job %s: removing %d stale audio object(s)", jobID, len(stale))
	if err := w.blobs.Delete(ctx, stale...); err != nil {
		return fmt.Errorf("failed to remove stale audio: %w", err)
	}
	return nil
}
