// Package services – GenerationService
//
// This file implements GenerationService, which owns one generate-image
// request end to end: input validation, prompt construction, the logo
// precondition, the key-rotating generation call, watermarking, staging the
// result in a per-request scratch directory, uploading it to the asset store
// and appending the gallery record.
//
// Requests carrying an Idempotency-Key are replayed from the recorded gallery
// record instead of calling the image model again.
package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-genart-backend/internal/domain"
	"github.com/tbourn/go-genart-backend/internal/prompt"
	"github.com/tbourn/go-genart-backend/internal/repo"
	"github.com/tbourn/go-genart-backend/internal/storage"
	"github.com/tbourn/go-genart-backend/internal/watermark"
)

// IdempotencyScope namespaces generate-image idempotency keys.
const IdempotencyScope = "generate-image"

// ScratchPattern is the os.MkdirTemp pattern of per-request scratch dirs.
const ScratchPattern = "genart-*"

const (
	defaultMaxUsernameRunes    = 64
	defaultMaxInscriptionRunes = 255
)

// ImageGenerator returns image bytes for a prompt. *imagegen.Retrier
// satisfies it.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// WatermarkOptions controls the compositing step.
type WatermarkOptions struct {
	Enabled  bool
	LogoPath string
	Spec     watermark.Spec
}

// GenerateInput is the validated shape of a generate-image request.
type GenerateInput struct {
	Username       string
	Inscription    string
	Traits         []string
	Attributes     map[string]string
	IdempotencyKey string
}

// GenerateResult is the outcome of a successful request.
type GenerateResult struct {
	Record *domain.GalleryRecord
	// Replayed is true when Record was produced by an earlier request with
	// the same idempotency key.
	Replayed bool
}

// GenerationService coordinates the generate-image pipeline.
type GenerationService struct {
	DB        *gorm.DB
	Generator ImageGenerator
	Store     storage.AssetStore
	Prompt    prompt.Strategy
	Watermark WatermarkOptions

	// Folder is the logical asset folder, e.g. "generated".
	Folder string
	// WorkDir is the parent of per-request scratch directories. Empty uses
	// os.TempDir().
	WorkDir string
	// IdempotencyTTL is how long a recorded key replays. Zero disables
	// recording.
	IdempotencyTTL time.Duration

	MaxUsernameRunes    int
	MaxInscriptionRunes int
}

// Generate runs the pipeline for in. Errors wrap ErrInvalidInput,
// watermark.ErrMissingAsset, keypool.ErrNoCredentials,
// imagegen.ErrMaxRetriesExceeded or infrastructure failures.
func (s *GenerationService) Generate(ctx context.Context, in GenerateInput) (*GenerateResult, error) {
	tr := otel.Tracer("services/GenerationService")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("gallery.username", strings.TrimSpace(in.Username)),
			attribute.Int("prompt.traits", len(in.Traits)),
			attribute.Bool("idempotency.key_present", in.IdempotencyKey != ""),
		),
	)
	defer span.End()

	res, err := s.generate(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("gallery.id", res.Record.ID),
		attribute.Bool("idempotency.replayed", res.Replayed),
	)
	return res, nil
}

func (s *GenerationService) generate(ctx context.Context, in GenerateInput) (*GenerateResult, error) {
	username := strings.TrimSpace(in.Username)
	inscription := strings.TrimSpace(in.Inscription)
	if err := s.validate(username, inscription); err != nil {
		return nil, err
	}

	text, err := s.strategy().Build(prompt.Input{
		Username:    username,
		Inscription: inscription,
		Traits:      in.Traits,
		Attributes:  in.Attributes,
	})
	if err != nil {
		if errors.Is(err, prompt.ErrEmptyInput) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		rec, err := s.replay(ctx, key)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return &GenerateResult{Record: rec, Replayed: true}, nil
		}
	}

	// Logo precondition is checked before spending a generation call.
	var logo image.Image
	if s.Watermark.Enabled {
		if logo, err = watermark.LoadLogo(s.Watermark.LogoPath); err != nil {
			return nil, err
		}
	}

	img, err := s.Generator.Generate(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}

	if logo != nil {
		if img, err = watermark.Apply(img, logo, s.Watermark.Spec); err != nil {
			return nil, err
		}
	}

	url, err := s.upload(ctx, img)
	if err != nil {
		return nil, err
	}

	rec, err := repo.CreateGalleryRecord(ctx, s.DB, username, inscription, url, text)
	if err != nil {
		return nil, fmt.Errorf("persist gallery record: %w", err)
	}

	if key != "" && s.IdempotencyTTL > 0 {
		if _, err := repo.CreateIdempotency(ctx, s.DB, IdempotencyScope, key, rec.ID, http.StatusOK, s.IdempotencyTTL); err != nil {
			// The record is already stored; a lost race on the key only means
			// the other request's record is what replays.
			log.Ctx(ctx).Warn().Err(err).Int64("gallery_id", rec.ID).Msg("idempotency record not stored")
		}
	}

	return &GenerateResult{Record: rec}, nil
}

func (s *GenerationService) validate(username, inscription string) error {
	maxUser := s.MaxUsernameRunes
	if maxUser <= 0 {
		maxUser = defaultMaxUsernameRunes
	}
	maxInscr := s.MaxInscriptionRunes
	if maxInscr <= 0 {
		maxInscr = defaultMaxInscriptionRunes
	}

	switch {
	case username == "":
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	case utf8.RuneCountInString(username) > maxUser:
		return fmt.Errorf("%w: username exceeds %d characters", ErrInvalidInput, maxUser)
	case utf8.RuneCountInString(inscription) > maxInscr:
		return fmt.Errorf("%w: inscription exceeds %d characters", ErrInvalidInput, maxInscr)
	}
	return nil
}

func (s *GenerationService) strategy() prompt.Strategy {
	if s.Prompt != nil {
		return s.Prompt
	}
	return prompt.Auto("")
}

// replay returns the gallery record recorded for key, or nil when the key is
// unknown or expired.
func (s *GenerationService) replay(ctx context.Context, key string) (*domain.GalleryRecord, error) {
	idem, err := repo.GetIdempotency(ctx, s.DB, IdempotencyScope, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	rec, err := repo.GetGalleryRecord(ctx, s.DB, idem.RecordID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrGalleryRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// upload stages img in a fresh scratch directory, uploads it and removes the
// directory on every path.
func (s *GenerationService) upload(ctx context.Context, img []byte) (string, error) {
	dir, err := os.MkdirTemp(s.WorkDir, ScratchPattern)
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	ct := watermark.ContentType(img)
	ext := extFor(ct)
	path := filepath.Join(dir, "image."+ext)
	if err := os.WriteFile(path, img, 0o600); err != nil {
		return "", fmt.Errorf("stage image: %w", err)
	}

	url, err := s.Store.Upload(ctx, storage.Object{
		Folder:      s.Folder,
		Path:        path,
		Ext:         ext,
		ContentType: ct,
	})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return url, nil
}

func extFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return "jpg"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
