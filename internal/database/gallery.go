package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Screenshot indexes one stored capture.
type Screenshot struct {
	ID         string `gorm:"primaryKey"`
	FileName   string `gorm:"uniqueIndex;not null"`
	Folder     string
	Path       string
	MIME       string
	Bytes      int64
	Width      int
	Height     int
	Label      string    `gorm:"index"`
	PHash      string    `gorm:"column:phash;index"` // perceptual hash, "p:<hex>"
	Thumbnail  string    // path, empty if none
	SimilarTo  string    // ID of a near-identical earlier capture
	CapturedAt time.Time `gorm:"index"`
	CreatedAt  int64     `gorm:"autoCreateTime"`
}

// BeforeCreate hook to generate UUID
func (s *Screenshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// Gallery is the index of saved screenshots.
type Gallery struct {
	db *gorm.DB
}

func NewGallery(db *gorm.DB) *Gallery {
	return &Gallery{db: db}
}

// Add records a stored screenshot.
func (g *Gallery) Add(ctx context.Context, s *Screenshot) error {
	return g.db.WithContext(ctx).Create(s).Error
}

// List returns the newest screenshots first; limit <= 0 means all.
func (g *Gallery) List(ctx context.Context, limit int) ([]*Screenshot, error) {
	q := g.db.WithContext(ctx).Order("captured_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var shots []*Screenshot
	err := q.Find(&shots).Error
	return shots, err
}

// FindByHash returns screenshots whose perceptual hash equals hash.
func (g *Gallery) FindByHash(ctx context.Context, hash string) ([]*Screenshot, error) {
	var shots []*Screenshot
	err := g.db.WithContext(ctx).Where("phash = ?", hash).Order("captured_at DESC").Find(&shots).Error
	return shots, err
}
