// Package storage writes captured images into a folder tree and indexes them.
package storage

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	_ "image/png" // decoder for hashing and thumbnails
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/corona10/goimagehash"
	"github.com/nfnt/resize"

	"github.com/GriffinCanCode/oneshot/internal/capture"
	"github.com/GriffinCanCode/oneshot/internal/database"
	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
)

const (
	pendingSuffix = ".pending"
	thumbDir      = ".thumbnails"

	ThumbnailSize    = 320
	thumbnailQuality = 75

	// Hamming distance at or below which two captures count as the same screen.
	MaxHashDistance = 5
)

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// Index records stored screenshots. *database.Gallery satisfies it.
type Index interface {
	Add(ctx context.Context, s *database.Screenshot) error
	List(ctx context.Context, limit int) ([]*database.Screenshot, error)
	FindByHash(ctx context.Context, hash string) ([]*database.Screenshot, error)
}

// Options configure a FolderSink. Index may be nil.
type Options struct {
	Thumbnails bool
	Index      Index
	Logger     *slog.Logger
}

// FolderSink stores items under root/<item.Folder>/<item.Name>. Each file is
// written as <name>.pending and renamed into place once complete, so readers
// never see a partial image.
type FolderSink struct {
	root string
	opts Options
	log  *slog.Logger
	mu   sync.Mutex
}

func NewFolderSink(root string, opts Options) *FolderSink {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &FolderSink{root: root, opts: opts, log: opts.Logger.With("component", "storage")}
}

// Root returns the directory everything is stored under.
func (s *FolderSink) Root() string { return s.root }

// Save implements capture.Storage. Indexing and thumbnails are best effort;
// only failing to place the image itself rejects the item.
func (s *FolderSink) Save(ctx context.Context, item capture.Item) error {
	dir, err := s.resolve(item)
	if err != nil {
		return err
	}
	final := filepath.Join(dir, item.Name)

	s.mu.Lock()
	err = s.place(dir, final, item.Data)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.log.Info("image stored", "path", final, "bytes", len(item.Data))

	s.index(ctx, item, final)
	return nil
}

func (s *FolderSink) resolve(item capture.Item) (string, error) {
	reject := func(msg string) error {
		return apperrors.New(apperrors.CodeStorageRejected, msg).WithMetadata("file", item.Name)
	}
	if !allowedMIME[item.MIME] {
		return "", reject("unsupported mime type " + item.MIME)
	}
	if len(item.Data) == 0 {
		return "", reject("empty image")
	}
	if item.Name == "" || item.Name != filepath.Base(item.Name) || strings.HasPrefix(item.Name, ".") {
		return "", reject("invalid file name")
	}
	folder := filepath.Clean(filepath.FromSlash(item.Folder))
	if filepath.IsAbs(folder) || folder == ".." || strings.HasPrefix(folder, ".."+string(filepath.Separator)) {
		return "", reject("folder escapes storage root")
	}
	return filepath.Join(s.root, folder), nil
}

func (s *FolderSink) place(dir, final string, data []byte) error {
	reject := func(err error, msg string) error {
		return apperrors.Wrap(err, apperrors.CodeStorageRejected, msg).WithMetadata("path", final)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return reject(err, "create folder")
	}
	if _, err := os.Stat(final); err == nil {
		return reject(os.ErrExist, "file already exists")
	}

	pending := final + pendingSuffix
	f, err := os.OpenFile(pending, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return reject(err, "create pending file")
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(pending)
		return reject(err, "write pending file")
	}
	if err := os.Rename(pending, final); err != nil {
		_ = os.Remove(pending)
		return reject(err, "finalize file")
	}
	return nil
}

func (s *FolderSink) index(ctx context.Context, item capture.Item, path string) {
	img, _, err := image.Decode(bytes.NewReader(item.Data))
	if err != nil {
		s.log.Debug("stored image not decodable, skipping index extras", "error", err)
	}

	shot := &database.Screenshot{
		FileName:   item.Name,
		Folder:     item.Folder,
		Path:       path,
		MIME:       item.MIME,
		Bytes:      int64(len(item.Data)),
		Width:      item.Width,
		Height:     item.Height,
		Label:      item.Label,
		CapturedAt: item.CapturedAt,
	}

	var hash *goimagehash.ImageHash
	if img != nil {
		if hash, err = goimagehash.PerceptionHash(img); err == nil {
			shot.PHash = hash.ToString()
		} else {
			s.log.Debug("perceptual hash failed", "error", err)
		}
		if s.opts.Thumbnails {
			shot.Thumbnail = s.thumbnail(img, filepath.Dir(path), item.Name)
		}
	}

	if s.opts.Index == nil {
		return
	}
	if hash != nil {
		shot.SimilarTo = s.similar(ctx, hash)
	}
	if err := s.opts.Index.Add(ctx, shot); err != nil {
		s.log.Warn("gallery index failed", "file", item.Name, "error", err)
	}
}

// similar returns the ID of the newest capture with the same hash, or of the
// previous capture if it is within MaxHashDistance.
func (s *FolderSink) similar(ctx context.Context, hash *goimagehash.ImageHash) string {
	if same, err := s.opts.Index.FindByHash(ctx, hash.ToString()); err != nil {
		s.log.Debug("hash lookup failed", "error", err)
	} else if len(same) > 0 {
		s.log.Debug("capture matches earlier screen", "previous", same[0].FileName)
		return same[0].ID
	}

	prev, err := s.opts.Index.List(ctx, 1)
	if err != nil || len(prev) == 0 || prev[0].PHash == "" {
		return ""
	}
	prevHash, err := goimagehash.ImageHashFromString(prev[0].PHash)
	if err != nil {
		return ""
	}
	dist, err := prevHash.Distance(hash)
	if err != nil || dist > MaxHashDistance {
		return ""
	}
	s.log.Debug("capture matches previous screen", "previous", prev[0].FileName, "distance", dist)
	return prev[0].ID
}

func (s *FolderSink) thumbnail(img image.Image, dir, name string) string {
	tdir := filepath.Join(dir, thumbDir)
	if err := os.MkdirAll(tdir, 0o755); err != nil {
		s.log.Debug("thumbnail dir", "error", err)
		return ""
	}
	thumb := resize.Thumbnail(ThumbnailSize, ThumbnailSize, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		s.log.Debug("thumbnail encode", "error", err)
		return ""
	}
	path := filepath.Join(tdir, strings.TrimSuffix(name, filepath.Ext(name))+".jpg")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		s.log.Debug("thumbnail write", "error", err)
		return ""
	}
	return path
}
