package worker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bobarin/codereel/internal/apperr"
	"github.com/bobarin/codereel/internal/models"
	"github.com/bobarin/codereel/internal/storage"
)

// URLSigner builds an expiring retrieval URL for a stored key.
type URLSigner interface {
	SignedURL(baseURL, key string, ttl time.Duration) string
}

type KeyLister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// Bundler signs the artifact set of a job. URLs are issued fresh on every
// call and never stored.
type Bundler struct {
	blobs   KeyLister
	signer  URLSigner
	baseURL string
	ttl     time.Duration
}

func NewBundler(blobs KeyLister, signer URLSigner, baseURL string, ttl time.Duration) *Bundler {
	return &Bundler{blobs: blobs, signer: signer, baseURL: baseURL, ttl: ttl}
}

// Assets signs the four JSON artifacts and audioKeys, in the given order.
func (b *Bundler) Assets(jobID string, audioKeys []string) models.RenderAssets {
	sign := func(key string) string { return b.signer.SignedURL(b.baseURL, key, b.ttl) }

	urls := make([]string, len(audioKeys))
	for i, key := range audioKeys {
		urls[i] = sign(key)
	}
	return models.RenderAssets{
		EventsURL:     sign(storage.EventsKey(jobID)),
		NarrationURL:  sign(storage.NarrationKey(jobID)),
		ComplexityURL: sign(storage.ComplexityKey(jobID)),
		SyncURL:       sign(storage.SyncKey(jobID)),
		AudioURLs:     urls,
	}
}

// Preview rebuilds the render message for an already prepared job from the
// stored audio keys. Nothing is enqueued.
func (b *Bundler) Preview(ctx context.Context, job *models.Job) (*models.RenderMessage, error) {
	if job.Algo == nil || !job.Status.Prepared() || job.Status == models.JobStatusFailed {
		return nil, apperr.Newf(apperr.KindConflict, "job %s has no prepared assets (status %s)", job.ID, job.Status)
	}

	keys, err := b.blobs.List(ctx, storage.AudioPrefix(job.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to list audio for job %s: %w", job.ID, err)
	}
	// Zero-padded names sort into scene order.
	sort.Strings(keys)

	msg := &models.RenderMessage{
		JobID:  job.ID,
		AlgoID: *job.Algo,
		Assets: b.Assets(job.ID, keys),
	}
	if job.StreamUID != nil {
		msg.Stream = &models.UploadTarget{UID: *job.StreamUID}
	}
	return msg, nil
}
