package auth

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"regexp"

	"golang.org/x/image/draw"
)

const (
	// DefaultAvatarMaxBytes is the upload size ceiling
	DefaultAvatarMaxBytes int64 = 1000000
	// DefaultAvatarSize is the edge of the stored square image
	DefaultAvatarSize = 250
	// AvatarContentType is the canonical stored format
	AvatarContentType = "image/png"

	defaultMaxAvatarPixels = 40_000_000
)

var avatarExtension = regexp.MustCompile(`(?i)\.(jpg|jpeg|png)$`)

var allowedAvatarTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
}

// AvatarUpload is an uploaded file before processing. Size is the size the
// client declared, or -1 when unknown.
type AvatarUpload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// AvatarPipeline validates uploads and normalizes them to a fixed square PNG.
type AvatarPipeline struct {
	MaxBytes  int64
	Dimension int
	MaxPixels int
}

// NewAvatarPipeline returns a pipeline, using defaults for non positive values
func NewAvatarPipeline(maxBytes int64, dimension int) *AvatarPipeline {
	if maxBytes <= 0 {
		maxBytes = DefaultAvatarMaxBytes
	}
	if dimension <= 0 {
		dimension = DefaultAvatarSize
	}
	return &AvatarPipeline{
		MaxBytes:  maxBytes,
		Dimension: dimension,
		MaxPixels: defaultMaxAvatarPixels,
	}
}

// Accept runs every check that does not need a decode first, so rejected
// files never reach the image decoder.
func (p *AvatarPipeline) Accept(ctx context.Context, upload AvatarUpload) ([]byte, error) {
	if !avatarExtension.MatchString(upload.Filename) {
		return nil, NewError(ErrAvatarFormat, nil).WithMetadata(map[string]any{
			"filename": upload.Filename,
		})
	}

	if upload.Size > p.MaxBytes {
		return nil, NewError(ErrAvatarTooLarge, nil).WithMetadata(map[string]any{
			"size": upload.Size,
		})
	}

	if upload.Content == nil {
		return nil, NewError(ErrAvatarFormat, nil)
	}

	raw, err := io.ReadAll(io.LimitReader(upload.Content, p.MaxBytes+1))
	if err != nil {
		return nil, NewError(ErrAvatarFormat, err)
	}
	if int64(len(raw)) > p.MaxBytes {
		return nil, NewError(ErrAvatarTooLarge, nil)
	}

	if _, ok := allowedAvatarTypes[http.DetectContentType(raw)]; !ok {
		return nil, NewError(ErrAvatarFormat, nil).WithMetadata(map[string]any{
			"content_type": http.DetectContentType(raw),
		})
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, NewError(ErrAvatarFormat, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > p.maxPixels() {
		return nil, NewError(ErrAvatarTooLarge, nil).WithMetadata(map[string]any{
			"width":  cfg.Width,
			"height": cfg.Height,
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, storageError(err, "avatar.transform")
	}

	type result struct {
		data []byte
		err  error
	}

	done := make(chan result, 1)
	go func() {
		data, err := p.transform(raw)
		done <- result{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, storageError(ctx.Err(), "avatar.transform")
	case res := <-done:
		return res.data, res.err
	}
}

func (p *AvatarPipeline) transform(raw []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, NewError(ErrAvatarFormat, err)
	}

	size := p.Dimension
	if size <= 0 {
		size = DefaultAvatarSize
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, coverCrop(src.Bounds()), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, storageError(err, "avatar.encode")
	}
	return buf.Bytes(), nil
}

func (p *AvatarPipeline) maxPixels() int {
	if p.MaxPixels <= 0 {
		return defaultMaxAvatarPixels
	}
	return p.MaxPixels
}

// coverCrop returns the centered square of b, so scaling fills the target
// without distortion.
func coverCrop(b image.Rectangle) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if w == h {
		return b
	}
	if w > h {
		off := (w - h) / 2
		return image.Rect(b.Min.X+off, b.Min.Y, b.Min.X+off+h, b.Max.Y)
	}
	off := (h - w) / 2
	return image.Rect(b.Min.X, b.Min.Y+off, b.Max.X, b.Min.Y+off+w)
}
