package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bobarin/codereel/internal/apperr"
	"github.com/bobarin/codereel/internal/audio"
	"github.com/bobarin/codereel/internal/models"
	"github.com/bobarin/codereel/internal/queue"
	"github.com/bobarin/codereel/internal/services"
	"github.com/bobarin/codereel/internal/signing"
	"github.com/bobarin/codereel/internal/storage"
)

const rotatedSearch = `{
  "version": "1.0",
  "input": {"nums": [4, 5, 6, 7, 0, 1, 2], "target": 0},
  "scenes": [
    {"t": "TitleCard", "text": "Search in Rotated Sorted Array"},
    {"t": "ArrayTape", "array": [4, 5, 6, 7, 0, 1, 2], "left": 0, "mid": 3, "right": 6},
    {"t": "Callout", "text": "Left half is sorted: 4..7"},
    {"t": "MovePointer", "which": "left", "to": 4},
    {"t": "ArrayTape", "left": 4, "mid": 5, "right": 6},
    {"t": "MovePointer", "which": "right", "to": 5},
    {"t": "ArrayTape", "left": 4, "mid": 4, "right": 5},
    {"t": "ComplexityCard", "time": "O(log n)", "space": "O(1)"},
    {"t": "ResultCard", "text": "Found 0 at index 4", "index": 4}
  ]
}`

const invertedBoard = `{
  "scenes": [
    {"t": "TitleCard", "text": "Binary Search"},
    {"t": "ArrayTape", "array": [1, 2, 3, 4, 5, 6, 7, 8], "left": 5, "right": 3}
  ]
}`

const complexityJSON = `{"time": {"best": "O(1)", "avg": "O(log n)", "worst": "O(log n)"}, "space": {"aux": "O(1)"}, "explanation": "Each step halves the window."}`

type fakeGen struct {
	board, narration, complexity, sync string
	detectErr, narrationErr, syncErr   error
	calls                              []string
}

func (g *fakeGen) Detect(ctx context.Context, code, language string) (*models.Detection, error) {
	g.calls = append(g.calls, "detect")
	if g.detectErr != nil {
		return nil, g.detectErr
	}
	return &models.Detection{AlgoID: "rotated_binary_search", Confidence: 0.9, DS: []string{"array"}}, nil
}

func (g *fakeGen) Storyboard(ctx context.Context, algoID, code, language string) ([]byte, error) {
	g.calls = append(g.calls, "storyboard")
	return []byte(g.board), nil
}

func (g *fakeGen) Narration(ctx context.Context, algoID string, storyboard []byte) ([]byte, error) {
	g.calls = append(g.calls, "narration")
	if g.narrationErr != nil {
		return nil, g.narrationErr
	}
	return []byte(g.narration), nil
}

func (g *fakeGen) Complexity(ctx context.Context, algoID string) ([]byte, error) {
	g.calls = append(g.calls, "complexity")
	return []byte(g.complexity), nil
}

func (g *fakeGen) SyncPlan(ctx context.Context, storyboard, narration []byte) ([]byte, error) {
	g.calls = append(g.calls, "sync")
	if g.syncErr != nil {
		return nil, g.syncErr
	}
	return []byte(g.sync), nil
}

type fakeJobs struct {
	mu      sync.Mutex
	jobs    map[string]*models.Job
	history []models.JobStatus

	// getErr and updateErr simulate an unreachable row store.
	getErr, updateErr error
}

func newFakeJobs(jobs ...*models.Job) *fakeJobs {
	f := &fakeJobs{jobs: map[string]*models.Job{}}
	for _, j := range jobs {
		f.jobs[j.ID] = j
	}
	return f
}

func (f *fakeJobs) GetJob(ctx context.Context, id string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	j, ok := f.jobs[id]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "job %s not found", id)
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobs) UpdateJob(ctx context.Context, id string, p models.JobPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	j, ok := f.jobs[id]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "job %s not found", id)
	}
	if p.Status != nil {
		j.Status = *p.Status
		f.history = append(f.history, *p.Status)
	}
	if p.Algo != nil {
		j.Algo = p.Algo
	}
	if p.Message != nil {
		j.Message = p.Message
	}
	if p.StreamUID != nil {
		j.StreamUID = p.StreamUID
	}
	return nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string]storage.Object
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{objects: map[string]storage.Object{}} }

func (b *fakeBlobs) Put(ctx context.Context, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = storage.Object{Data: data, ContentType: contentType}
	return nil
}

func (b *fakeBlobs) PutJSON(ctx context.Context, key string, v any) error {
	return b.Put(ctx, key, []byte(fmt.Sprintf("%v", v)), "application/json")
}

func (b *fakeBlobs) List(ctx context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *fakeBlobs) Delete(ctx context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.objects, k)
	}
	return nil
}

// flakyTTS voices every scene as mp3 until failing is set.
type flakyTTS struct {
	mu      sync.Mutex
	failing bool
}

func (f *flakyTTS) GenerateSpeech(ctx context.Context, text, voiceStyle string) (*services.TTSResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errors.New("provider quota exceeded")
	}
	return &services.TTSResponse{AudioData: []byte("ID3"), Format: "mp3"}, nil
}

type fakeQueue struct {
	rendered  []models.RenderMessage
	acked     []string
	pending   []*queue.Message
	renderErr error
}

func (q *fakeQueue) DequeuePrep(ctx context.Context, timeout time.Duration) (*queue.Message, error) {
	if len(q.pending) == 0 {
		time.Sleep(time.Millisecond)
		return nil, nil
	}
	msg := q.pending[0]
	q.pending = q.pending[1:]
	return msg, nil
}

func (q *fakeQueue) Ack(ctx context.Context, msg *queue.Message) error {
	q.acked = append(q.acked, msg.ID)
	return nil
}

func (q *fakeQueue) EnqueueRender(ctx context.Context, body models.RenderMessage) error {
	if q.renderErr != nil {
		return q.renderErr
	}
	q.rendered = append(q.rendered, body)
	return nil
}

func (q *fakeQueue) RecoverPrep(ctx context.Context) (int, error) { return 0, nil }

func (q *fakeQueue) PrepBacklog(ctx context.Context) (int64, error) { return int64(len(q.pending)), nil }

type fakeUploads struct{ err error }

func (u fakeUploads) CreateDirectUpload(ctx context.Context) (*models.UploadTarget, error) {
	if u.err != nil {
		return nil, u.err
	}
	return &models.UploadTarget{UploadURL: "https://upload.example/u1", UID: "u1"}, nil
}

type harness struct {
	gen    *fakeGen
	jobs   *fakeJobs
	blobs  *fakeBlobs
	queue  *fakeQueue
	worker *Worker
}

func newHarness(gen *fakeGen, uploads UploadTargets) *harness {
	h := &harness{
		gen:   gen,
		jobs:  newFakeJobs(&models.Job{ID: "job-1", Status: models.JobStatusQueued, Language: models.LanguagePython}),
		blobs: newFakeBlobs(),
		queue: &fakeQueue{},
	}
	bundle := NewBundler(h.blobs, signing.New("test-secret"), "https://api.example", time.Hour)
	h.worker = New(gen, h.jobs, h.blobs, h.queue, uploads, audio.New(nil), bundle)
	return h
}

func prepMessage(t *testing.T, jobID string) *queue.Message {
	t.Helper()
	msg, err := queue.NewMessage(queue.DefaultPrepQueue, queue.TypePrep, models.PrepMessage{
		JobID: jobID, Code: "def search(nums, target): ...", Language: models.LanguagePython, Size: 29,
	})
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	return msg
}

func TestRotatedSearchWithoutNarration(t *testing.T) {
	gen := &fakeGen{
		board:        rotatedSearch,
		complexity:   complexityJSON,
		narrationErr: errors.New("model timed out"),
		syncErr:      errors.New("model timed out"),
	}
	h := newHarness(gen, fakeUploads{})
	msg := prepMessage(t, "job-1")

	h.worker.HandleMessage(context.Background(), msg)

	job, _ := h.jobs.GetJob(context.Background(), "job-1")
	if job.Status != models.JobStatusReadyToRender {
		t.Fatalf("status = %s, message = %v", job.Status, job.Message)
	}
	if job.Message == nil || *job.Message != readyMessage {
		t.Errorf("message = %v", job.Message)
	}
	if job.Algo == nil || *job.Algo != "rotated_binary_search" || job.StreamUID == nil || *job.StreamUID != "u1" {
		t.Errorf("unexpected row %+v", job)
	}
	if got := fmt.Sprint(h.jobs.history); got != "[prepping ready_to_render]" {
		t.Errorf("status history = %s", got)
	}

	audioKeys, _ := h.blobs.List(context.Background(), storage.AudioPrefix("job-1"))
	if len(audioKeys) != 9 {
		t.Fatalf("audio files = %d, want 9", len(audioKeys))
	}
	for i, key := range audioKeys {
		if want := fmt.Sprintf("jobs/job-1/audio/%03d.wav", i); key != want {
			t.Errorf("audio key %d = %s, want %s", i, key, want)
		}
	}
	for _, key := range []string{"events.json", "narration.json", "complexity.json", "sync.json"} {
		if _, ok := h.blobs.objects["jobs/job-1/"+key]; !ok {
			t.Errorf("missing artifact %s", key)
		}
	}

	if len(h.queue.rendered) != 1 {
		t.Fatalf("render messages = %d", len(h.queue.rendered))
	}
	render := h.queue.rendered[0]
	if render.JobID != "job-1" || render.AlgoID != "rotated_binary_search" || render.Stream == nil || render.Stream.UID != "u1" {
		t.Errorf("unexpected render message %+v", render)
	}
	if len(render.Assets.AudioURLs) != 9 {
		t.Fatalf("audio urls = %d", len(render.Assets.AudioURLs))
	}
	u, err := url.Parse(render.Assets.AudioURLs[8])
	if err != nil || u.Query().Get("key") != "jobs/job-1/audio/008.wav" || u.Query().Get("sig") == "" {
		t.Errorf("unexpected signed url %s", render.Assets.AudioURLs[8])
	}

	if len(h.queue.acked) != 1 || h.queue.acked[0] != msg.ID {
		t.Errorf("acked = %v", h.queue.acked)
	}
}

func TestInvertedPointersFailBeforeNarration(t *testing.T) {
	gen := &fakeGen{board: invertedBoard, complexity: complexityJSON}
	h := newHarness(gen, fakeUploads{})

	h.worker.HandleMessage(context.Background(), prepMessage(t, "job-1"))

	job, _ := h.jobs.GetJob(context.Background(), "job-1")
	if job.Status != models.JobStatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if job.Message == nil || !strings.Contains(*job.Message, "left 5 exceeds right 3") {
		t.Errorf("message = %v", job.Message)
	}
	if got := strings.Join(gen.calls, ","); got != "detect,storyboard" {
		t.Errorf("generation calls = %s", got)
	}
	if keys, _ := h.blobs.List(context.Background(), storage.JobPrefix("job-1")); len(keys) != 0 {
		t.Errorf("nothing should be stored, got %v", keys)
	}
	if len(h.queue.rendered) != 0 || len(h.queue.acked) != 1 {
		t.Errorf("rendered=%d acked=%d", len(h.queue.rendered), len(h.queue.acked))
	}
}

func TestUpstreamNarrationAndCandidatePlanUsed(t *testing.T) {
	gen := &fakeGen{
		board: `{"scenes": [
			{"t": "TitleCard", "text": "Kadane"},
			{"t": "Callout", "text": "Track the best sum"},
			{"t": "ResultCard", "text": "Best sum is 6"}
		]}`,
		narration:  `{"version": "1.0", "lines": ["Let's find the best subarray.", "We keep a running sum.", "We drop it when negative.", "The answer is six."]}`,
		complexity: complexityJSON,
		sync:       `{"pairs": [[0], [1, 2], [3]], "breath_gap_sec": 0.2}`,
	}
	h := newHarness(gen, nil)

	h.worker.HandleMessage(context.Background(), prepMessage(t, "job-1"))

	job, _ := h.jobs.GetJob(context.Background(), "job-1")
	if job.Status != models.JobStatusReadyToRender {
		t.Fatalf("status = %s, message = %v", job.Status, job.Message)
	}
	if len(h.queue.rendered) != 1 || h.queue.rendered[0].Stream != nil {
		t.Errorf("expected a render message without upload target, got %+v", h.queue.rendered)
	}
	if got := len(h.queue.rendered[0].Assets.AudioURLs); got != 3 {
		t.Errorf("audio urls = %d", got)
	}
}

func TestFailureStages(t *testing.T) {
	tests := []struct {
		name    string
		gen     *fakeGen
		uploads UploadTargets
		want    string
	}{
		{
			name: "detection",
			gen:  &fakeGen{detectErr: apperr.New(apperr.KindUpstreamGeneration, "detect generation failed")},
			want: "detect generation failed",
		},
		{
			name: "storyboard not json",
			gen:  &fakeGen{board: `not json`},
			want: "storyboard rejected",
		},
		{
			name: "complexity invalid",
			gen:  &fakeGen{board: rotatedSearch, narrationErr: errors.New("down"), complexity: `{"time": {}}`},
			want: "complexity rejected",
		},
		{
			name:    "upload target",
			gen:     &fakeGen{board: rotatedSearch, narrationErr: errors.New("down"), complexity: complexityJSON, syncErr: errors.New("down")},
			uploads: fakeUploads{err: errors.New("stream returned status 500")},
			want:    "failed to create upload target",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.gen, tt.uploads)
			h.worker.HandleMessage(context.Background(), prepMessage(t, "job-1"))

			job, _ := h.jobs.GetJob(context.Background(), "job-1")
			if job.Status != models.JobStatusFailed {
				t.Fatalf("status = %s", job.Status)
			}
			if job.Message == nil || !strings.Contains(*job.Message, tt.want) {
				t.Errorf("message = %v, want substring %q", job.Message, tt.want)
			}
			if len(h.queue.rendered) != 0 || len(h.queue.acked) != 1 {
				t.Errorf("rendered=%d acked=%d", len(h.queue.rendered), len(h.queue.acked))
			}
		})
	}
}

func TestRenderEnqueueFailureFailsJob(t *testing.T) {
	gen := &fakeGen{board: rotatedSearch, complexity: complexityJSON, narrationErr: errors.New("down"), syncErr: errors.New("down")}
	h := newHarness(gen, nil)
	h.queue.renderErr = errors.New("redis: connection refused")

	h.worker.HandleMessage(context.Background(), prepMessage(t, "job-1"))

	job, _ := h.jobs.GetJob(context.Background(), "job-1")
	if job.Status != models.JobStatusFailed || !strings.Contains(*job.Message, "failed to enqueue render") {
		t.Errorf("status = %s, message = %v", job.Status, job.Message)
	}
}

func TestFailureMessageIsBounded(t *testing.T) {
	gen := &fakeGen{detectErr: errors.New(strings.Repeat("x", 2000))}
	h := newHarness(gen, nil)
	h.worker.HandleMessage(context.Background(), prepMessage(t, "job-1"))

	job, _ := h.jobs.GetJob(context.Background(), "job-1")
	if job.Message == nil || len([]rune(*job.Message)) > models.MaxMessageLength {
		t.Errorf("message not truncated: %d runes", len([]rune(*job.Message)))
	}
}

func TestRedeliveryIsSkipped(t *testing.T) {
	for _, status := range []models.JobStatus{models.JobStatusReadyToRender, models.JobStatusRendering, models.JobStatusDone, models.JobStatusFailed} {
		gen := &fakeGen{board: rotatedSearch, complexity: complexityJSON}
		h := newHarness(gen, nil)
		h.jobs.jobs["job-1"].Status = status

		h.worker.HandleMessage(context.Background(), prepMessage(t, "job-1"))

		if len(gen.calls) != 0 || len(h.queue.rendered) != 0 {
			t.Errorf("%s: job was reprocessed", status)
		}
		if len(h.queue.acked) != 1 {
			t.Errorf("%s: message not acked", status)
		}
	}
}

func TestRedeliveryAfterCrashReprocesses(t *testing.T) {
	gen := &fakeGen{board: rotatedSearch, complexity: complexityJSON, narrationErr: errors.New("down"), syncErr: errors.New("down")}
	h := newHarness(gen, nil)
	tts := &flakyTTS{}
	h.worker.audio = audio.New(tts)
	h.jobs.jobs["job-1"].Status = models.JobStatusPrepping

	h.worker.HandleMessage(context.Background(), prepMessage(t, "job-1"))
	keys, _ := h.blobs.List(context.Background(), storage.AudioPrefix("job-1"))
	if len(keys) != 9 || !strings.HasSuffix(keys[0], "000.mp3") {
		t.Fatalf("first run audio keys = %v", keys)
	}

	// The provider goes down before the redelivered message runs, so every
	// scene now falls back to silence under a different extension.
	tts.failing = true
	h.jobs.jobs["job-1"].Status = models.JobStatusPrepping
	h.worker.HandleMessage(context.Background(), prepMessage(t, "job-1"))

	keys, _ = h.blobs.List(context.Background(), storage.AudioPrefix("job-1"))
	if len(keys) != 9 {
		t.Fatalf("reprocessing duplicated artifacts: %d audio keys %v", len(keys), keys)
	}
	for i, key := range keys {
		if want := fmt.Sprintf("jobs/job-1/audio/%03d.wav", i); key != want {
			t.Errorf("audio key %d = %s, want %s", i, key, want)
		}
	}

	algo := "rotated_binary_search"
	preview, err := h.worker.bundle.Preview(context.Background(), &models.Job{ID: "job-1", Status: models.JobStatusReadyToRender, Algo: &algo})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(preview.Assets.AudioURLs) != 9 {
		t.Errorf("preview audio urls = %d, want 9", len(preview.Assets.AudioURLs))
	}
}

func TestUnreachableStoreLeavesMessageUnacked(t *testing.T) {
	gen := &fakeGen{board: rotatedSearch, complexity: complexityJSON, narrationErr: errors.New("down"), syncErr: errors.New("down")}
	h := newHarness(gen, nil)
	msg := prepMessage(t, "job-1")

	h.jobs.getErr = errors.New("dial tcp: connection refused")
	h.worker.HandleMessage(context.Background(), msg)
	if len(h.queue.acked) != 0 || len(gen.calls) != 0 {
		t.Fatalf("acked=%v calls=%v, want no ack and no work", h.queue.acked, gen.calls)
	}

	// Once the store is back, the redelivered message completes and is acked.
	h.jobs.getErr = nil
	h.worker.HandleMessage(context.Background(), msg)
	job, _ := h.jobs.GetJob(context.Background(), "job-1")
	if job.Status != models.JobStatusReadyToRender {
		t.Fatalf("status = %s", job.Status)
	}
	if len(h.queue.acked) != 1 || h.queue.acked[0] != msg.ID {
		t.Errorf("acked = %v", h.queue.acked)
	}
}

func TestUnrecordedFailureLeavesMessageUnacked(t *testing.T) {
	gen := &fakeGen{board: rotatedSearch, complexity: complexityJSON}
	h := newHarness(gen, nil)
	h.jobs.updateErr = errors.New("pq: the database system is shutting down")

	h.worker.HandleMessage(context.Background(), prepMessage(t, "job-1"))

	if len(h.queue.acked) != 0 {
		t.Errorf("acked = %v, want none", h.queue.acked)
	}
	h.jobs.updateErr = nil
	job, _ := h.jobs.GetJob(context.Background(), "job-1")
	if job.Status != models.JobStatusQueued {
		t.Errorf("status = %s, want queued", job.Status)
	}
	if len(h.queue.rendered) != 0 {
		t.Errorf("rendered = %d", len(h.queue.rendered))
	}
}

func TestUnknownJobIsDropped(t *testing.T) {
	gen := &fakeGen{}
	h := newHarness(gen, nil)
	h.worker.HandleMessage(context.Background(), prepMessage(t, "ghost"))

	if len(gen.calls) != 0 || len(h.queue.acked) != 1 {
		t.Errorf("calls=%v acked=%v", gen.calls, h.queue.acked)
	}
}

func TestStartDrainsQueue(t *testing.T) {
	gen := &fakeGen{board: rotatedSearch, complexity: complexityJSON, narrationErr: errors.New("down"), syncErr: errors.New("down")}
	h := newHarness(gen, nil)
	msg := prepMessage(t, "job-1")
	h.queue.pending = []*queue.Message{msg}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.worker.Start(ctx, 1)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		job, _ := h.jobs.GetJob(context.Background(), "job-1")
		if job.Status == models.JobStatusReadyToRender {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job not processed, status %s", job.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestPreview(t *testing.T) {
	blobs := newFakeBlobs()
	for _, k := range []string{"jobs/j/audio/001.mp3", "jobs/j/audio/000.wav", "jobs/j/events.json"} {
		blobs.Put(context.Background(), k, []byte("x"), "")
	}
	b := NewBundler(blobs, signing.New("s"), "https://api.example", time.Minute)

	algo, uid := "kadane", "u9"
	job := &models.Job{ID: "j", Status: models.JobStatusReadyToRender, Algo: &algo, StreamUID: &uid}
	msg, err := b.Preview(context.Background(), job)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(msg.Assets.AudioURLs) != 2 || !strings.Contains(msg.Assets.AudioURLs[0], "000.wav") || msg.Stream.UID != "u9" {
		t.Errorf("unexpected preview %+v", msg)
	}

	job.Status = models.JobStatusPrepping
	if _, err := b.Preview(context.Background(), job); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("expected conflict for unprepared job, got %v", err)
	}
}
