package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/hamzamsaid/hamzawi/internal/store"
)

// GenerateImages renders the prompt into images, one part per image.
// Defaults follow the product: a single square JPEG.
func (c *Client) GenerateImages(ctx context.Context, prompt string) ([]store.Part, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.genai.Models.GenerateImages(ctx, c.imageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: c.imageMIMEType,
		AspectRatio:    c.imageAspect,
	})
	if err != nil {
		return nil, fmt.Errorf("generating image: %w", err)
	}
	if len(resp.GeneratedImages) == 0 {
		return nil, errors.New("image generation returned no images")
	}

	parts := make([]store.Part, 0, len(resp.GeneratedImages))
	for _, img := range resp.GeneratedImages {
		if img.Image == nil || len(img.Image.ImageBytes) == 0 {
			continue
		}
		mime := img.Image.MIMEType
		if mime == "" {
			mime = c.imageMIMEType
		}
		parts = append(parts, store.Part{ImageData: img.Image.ImageBytes, ImageMIME: mime})
	}
	if len(parts) == 0 {
		return nil, errors.New("image generation returned empty image data")
	}
	return parts, nil
}

// VideoOperation tracks a long-running video generation job across
// polls. Values are replaced, not mutated, on each poll.
type VideoOperation struct {
	op *genai.GenerateVideosOperation
}

// Done reports whether the job has resolved (success or failure).
func (v *VideoOperation) Done() bool {
	return v.op != nil && v.op.Done
}

// Err returns the job's failure, or nil while pending or on success.
func (v *VideoOperation) Err() error {
	if v.op == nil || v.op.Error == nil {
		return nil
	}
	if msg, ok := v.op.Error["message"].(string); ok && msg != "" {
		return errors.New(msg)
	}
	return errors.New("video generation failed")
}

// GenerateVideo starts a video generation job. The optional image seeds
// the first frame. The returned operation is pending; callers poll it.
func (c *Client) GenerateVideo(ctx context.Context, prompt string, image *store.Part) (*VideoOperation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var seed *genai.Image
	if image != nil && len(image.ImageData) > 0 {
		seed = &genai.Image{ImageBytes: image.ImageData, MIMEType: image.ImageMIME}
	}

	op, err := c.genai.Models.GenerateVideos(ctx, c.videoModel, prompt, seed, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("starting video generation: %w", err)
	}
	return &VideoOperation{op: op}, nil
}

// PollVideo refreshes the job status.
func (c *Client) PollVideo(ctx context.Context, v *VideoOperation) (*VideoOperation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	op, err := c.genai.Operations.GetVideosOperation(ctx, v.op, nil)
	if err != nil {
		return nil, fmt.Errorf("polling video operation: %w", err)
	}
	return &VideoOperation{op: op}, nil
}

// DownloadVideo fetches the finished video as a message part. The job
// must be done and error-free.
func (c *Client) DownloadVideo(ctx context.Context, v *VideoOperation) (store.Part, error) {
	if !v.Done() {
		return store.Part{}, errors.New("video operation is still pending")
	}
	if err := v.Err(); err != nil {
		return store.Part{}, err
	}
	if v.op.Response == nil || len(v.op.Response.GeneratedVideos) == 0 ||
		v.op.Response.GeneratedVideos[0].Video == nil {
		return store.Part{}, errors.New("video generation finished but produced no video")
	}

	video := v.op.Response.GeneratedVideos[0].Video
	mime := video.MIMEType
	if mime == "" {
		mime = "video/mp4"
	}

	data := video.VideoBytes
	if len(data) == 0 {
		if err := c.limiter.Wait(ctx); err != nil {
			return store.Part{}, err
		}
		downloaded, err := c.genai.Files.Download(ctx, video, nil)
		if err != nil {
			return store.Part{}, fmt.Errorf("downloading video: %w", err)
		}
		data = downloaded
	}
	if len(data) == 0 {
		return store.Part{}, errors.New("downloaded video is empty")
	}

	return store.Part{VideoData: data, VideoMIME: mime}, nil
}
