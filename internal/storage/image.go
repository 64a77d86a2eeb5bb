package storage

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

var ErrUnsupportedType = errors.New("unsupported file type")

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/bmp":  true,
}

var documentTypes = map[string]bool{
	"application/pdf":          true,
	"application/msword":       true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
}

// Prepared is an upload ready to be written to the store.
type Prepared struct {
	Data        []byte
	ContentType string
	Ext         string
}

// Processor normalises uploaded files. Images are fitted inside a
// MaxSide x MaxSide box and re-encoded as JPEG; documents pass through.
type Processor struct {
	MaxSide int
	Quality int
}

func NewProcessor(maxSide int) *Processor {
	if maxSide <= 0 {
		maxSide = 1600
	}
	return &Processor{MaxSide: maxSide, Quality: 85}
}

// DetectContentType sniffs data and corrects the zip and OLE containers used
// by office formats using the file extension.
func DetectContentType(filename string, data []byte) string {
	mimeType := http.DetectContentType(data)
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	ext := strings.ToLower(filepath.Ext(filename))
	switch mimeType {
	case "application/zip":
		switch ext {
		case ".docx":
			return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		case ".xlsx":
			return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		}
	case "application/octet-stream":
		switch ext {
		case ".doc":
			return "application/msword"
		case ".xls":
			return "application/vnd.ms-excel"
		}
	}
	return mimeType
}

// Prepare validates one upload. imagesOnly rejects anything that is not an image.
func (p *Processor) Prepare(filename string, data []byte, imagesOnly bool) (*Prepared, error) {
	mimeType := DetectContentType(filename, data)
	if imageTypes[mimeType] {
		return p.resize(data)
	}
	if imagesOnly || !documentTypes[mimeType] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	return &Prepared{
		Data:        data,
		ContentType: mimeType,
		Ext:         strings.ToLower(filepath.Ext(filename)),
	}, nil
}

func (p *Processor) resize(data []byte) (*Prepared, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrUnsupportedType, err)
	}
	b := img.Bounds()
	if b.Dx() > p.MaxSide || b.Dy() > p.MaxSide {
		img = imaging.Fit(img, p.MaxSide, p.MaxSide, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.Quality)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return &Prepared{Data: buf.Bytes(), ContentType: "image/jpeg", Ext: ".jpg"}, nil
}
