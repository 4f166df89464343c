package folio

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"

	"github.com/eringen/folio/content"
)

const (
	maxImageWidth = 800
	jpegQuality   = 80
	maxUploadSize = 10 << 20
)

// ErrImageNotFound is returned when no stored image has the given name.
var ErrImageNotFound = errors.New("image not found")

// Image is a processed cover image.
type Image struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Size        int       `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	Data        []byte    `json:"-"`
}

// processImage decodes src, shrinks it to maxImageWidth when wider and
// re-encodes it as JPEG.
func processImage(src io.Reader, originalName string) (Image, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return Image{}, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxImageWidth {
		newH := h * maxImageWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, maxImageWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
		w, h = maxImageWidth, newH
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Image{}, fmt.Errorf("encode jpeg: %w", err)
	}

	base := content.Slugify(strings.TrimSuffix(originalName, filepath.Ext(originalName)))
	if base == "" {
		base = "image"
	}
	return Image{
		Name:        base + ".jpg",
		ContentType: "image/jpeg",
		Width:       w,
		Height:      h,
		Size:        buf.Len(),
		Data:        buf.Bytes(),
	}, nil
}

// ImageStore keeps uploaded images in the local SQLite database.
type ImageStore struct {
	db *sql.DB
}

// NewImageStore returns a store over db. The table is created by the
// sqlitedb migrations.
func NewImageStore(db *sql.DB) *ImageStore {
	return &ImageStore{db: db}
}

// Save stores img under a unique name derived from img.Name and returns the
// name it was stored as.
func (s *ImageStore) Save(ctx context.Context, img Image) (string, error) {
	base := strings.TrimSuffix(img.Name, ".jpg")
	candidate := img.Name
	for n := 2; ; n++ {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images WHERE name = ?`, candidate).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("checking image name: %w", err)
		}
		if exists == 0 {
			break
		}
		candidate = fmt.Sprintf("%s-%d.jpg", base, n)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO images (name, content_type, data, created_at) VALUES (?, ?, ?, ?)`,
		candidate, img.ContentType, img.Data, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("inserting image: %w", err)
	}
	return candidate, nil
}

// Get returns the stored image called name.
func (s *ImageStore) Get(ctx context.Context, name string) (Image, error) {
	img := Image{Name: name}
	err := s.db.QueryRowContext(ctx,
		`SELECT content_type, data, created_at FROM images WHERE name = ?`, name,
	).Scan(&img.ContentType, &img.Data, &img.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Image{}, ErrImageNotFound
	}
	if err != nil {
		return Image{}, fmt.Errorf("loading image %s: %w", name, err)
	}
	img.Size = len(img.Data)
	return img, nil
}

func (a *App) handleImageUpload(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no image file provided")
	}
	if file.Size > maxUploadSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large (max 10MB)")
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	img, err := processImage(io.LimitReader(src, maxUploadSize), file.Filename)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid image: "+err.Error())
	}
	img.Name, err = a.Images.Save(c.Request().Context(), img)
	if err != nil {
		return err
	}
	img.URL = "/images/" + img.Name
	img.CreatedAt = time.Now().UTC()
	a.Logger.Info("image uploaded", "name", img.Name, "width", img.Width, "height", img.Height, "size", img.Size)
	return c.JSON(http.StatusCreated, img)
}

func (a *App) handleImage(c echo.Context) error {
	img, err := a.Images.Get(c.Request().Context(), c.Param("name"))
	if errors.Is(err, ErrImageNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "image not found")
	}
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, img.ContentType, img.Data)
}
