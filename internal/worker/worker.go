package worker

import (
	"context"
	"log"
	"time"

	"github.com/bobarin/codereel/internal/apperr"
	"github.com/bobarin/codereel/internal/audio"
	"github.com/bobarin/codereel/internal/models"
	"github.com/bobarin/codereel/internal/queue"
	"golang.org/x/sync/errgroup"
)

// Generator proposes every generated artifact. Results other than Detect are
// raw, untrusted JSON.
type Generator interface {
	Detect(ctx context.Context, code, language string) (*models.Detection, error)
	Storyboard(ctx context.Context, algoID, code, language string) ([]byte, error)
	Narration(ctx context.Context, algoID string, storyboard []byte) ([]byte, error)
	Complexity(ctx context.Context, algoID string) ([]byte, error)
	SyncPlan(ctx context.Context, storyboard, narration []byte) ([]byte, error)
}

type JobStore interface {
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpdateJob(ctx context.Context, id string, patch models.JobPatch) error
}

type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PutJSON(ctx context.Context, key string, v any) error
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, keys ...string) error
}

type Queue interface {
	DequeuePrep(ctx context.Context, timeout time.Duration) (*queue.Message, error)
	Ack(ctx context.Context, msg *queue.Message) error
	EnqueueRender(ctx context.Context, body models.RenderMessage) error
	RecoverPrep(ctx context.Context) (int, error)
	PrepBacklog(ctx context.Context) (int64, error)
}

// UploadTargets issues a one-time upload handle for the rendered video.
type UploadTargets interface {
	CreateDirectUpload(ctx context.Context) (*models.UploadTarget, error)
}

type AudioSynthesizer interface {
	Synthesize(ctx context.Context, jobID string, texts []string) []audio.Clip
}

const (
	dequeueTimeout = 5 * time.Second
	readyMessage   = "assets signed; render job enqueued"
)

type Worker struct {
	gen     Generator
	jobs    JobStore
	blobs   BlobStore
	queue   Queue
	uploads UploadTargets
	audio   AudioSynthesizer
	bundle  *Bundler
}

// New wires the orchestrator. uploads may be nil, in which case render
// messages carry no upload target.
func New(gen Generator, jobs JobStore, blobs BlobStore, q Queue, uploads UploadTargets, synth AudioSynthesizer, bundle *Bundler) *Worker {
	return &Worker{
		gen:     gen,
		jobs:    jobs,
		blobs:   blobs,
		queue:   q,
		uploads: uploads,
		audio:   synth,
		bundle:  bundle,
	}
}

// Start requeues messages stranded by a previous process, then consumes the
// prep queue with concurrency loops until ctx is done.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}

	if moved, err := w.queue.RecoverPrep(ctx); err != nil {
		log.Printf("[Worker] Warning: failed to recover stranded messages: %v", err)
	} else if moved > 0 {
		log.Printf("[Worker] requeued %d stranded prep message(s)", moved)
	}

	if backlog, err := w.queue.PrepBacklog(ctx); err == nil {
		log.Printf("[Worker] started with concurrency: %d (%d prep message(s) waiting)", concurrency, backlog)
	} else {
		log.Printf("[Worker] started with concurrency: %d", concurrency)
	}

	var g errgroup.Group
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			w.processQueue(ctx)
			return nil
		})
	}
	g.Wait()
	log.Println("[Worker] shutting down...")
}

func (w *Worker) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := w.queue.DequeuePrep(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Worker] error dequeuing: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue
		}

		// A started job runs to a terminal outcome even during shutdown.
		w.HandleMessage(context.WithoutCancel(ctx), msg)
	}
}

// HandleMessage runs one prep message to ready_to_render or failed, then
// acknowledges it. When the outcome cannot be recorded because the job store
// is unreachable, the message stays unacknowledged in the processing list and
// is requeued by the next RecoverPrep.
func (w *Worker) HandleMessage(ctx context.Context, msg *queue.Message) {
	if w.handle(ctx, msg) {
		w.ack(ctx, msg)
		return
	}
	log.Printf("[Worker] Warning: leaving message %s unacknowledged for redelivery", msg.ID)
}

// handle reports whether msg reached an outcome that allows acknowledging it.
func (w *Worker) handle(ctx context.Context, msg *queue.Message) bool {
	var prep models.PrepMessage
	if err := msg.Decode(&prep); err != nil {
		log.Printf("[Worker] dropping message %s: %v", msg.ID, err)
		return true
	}

	job, err := w.jobs.GetJob(ctx, prep.JobID)
	if apperr.Is(err, apperr.KindNotFound) {
		log.Printf("[Worker] dropping message %s: job %s does not exist", msg.ID, prep.JobID)
		return true
	}
	if err != nil {
		log.Printf("[Worker] job %s: failed to load: %v", prep.JobID, err)
		return false
	}
	if job.Status.Prepared() {
		log.Printf("[Worker] job %s already %s, skipping redelivered message %s", job.ID, job.Status, msg.ID)
		return true
	}

	start := time.Now()
	if err := w.Prepare(ctx, prep); err != nil {
		log.Printf("[Worker] job %s failed after %s: %v", prep.JobID, time.Since(start).Round(time.Millisecond), err)
		return w.fail(ctx, prep.JobID, err)
	}
	log.Printf("[Worker] job %s ready to render (%s)", prep.JobID, time.Since(start).Round(time.Millisecond))
	return true
}

func (w *Worker) ack(ctx context.Context, msg *queue.Message) {
	if err := w.queue.Ack(ctx, msg); err != nil {
		log.Printf("[Worker] Warning: %v", err)
	}
}

// fail records the failure and reports whether it was stored.
func (w *Worker) fail(ctx context.Context, jobID string, cause error) bool {
	status := models.JobStatusFailed
	msg := apperr.Truncate(cause.Error(), models.MaxMessageLength)
	if err := w.jobs.UpdateJob(ctx, jobID, models.JobPatch{Status: &status, Message: &msg}); err != nil {
		log.Printf("[Worker] job %s: failed to record failure: %v", jobID, err)
		return false
	}
	return true
}
