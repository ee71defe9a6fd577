// Package source feeds recognition results into the pipeline from outside
// producers: recorded JSON-lines files and MQTT topics.
package source

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/logger"
	"github.com/tphakala/platewatch/internal/pipeline"
)

// Sink accepts detections without blocking. pipeline.Manager implements it.
type Sink interface {
	OnDetection(det pipeline.RawDetection) bool
}

// Message is the wire form of one recognition result.
type Message struct {
	Text        string    `json:"text" validate:"required,max=64"`
	Confidence  int       `json:"confidence" validate:"gte=0,lte=100"`
	CountryCode string    `json:"country_code,omitempty" validate:"max=8"`
	Timestamp   time.Time `json:"timestamp"`
	// Image carries the cropped plate image, base64 encoded in JSON.
	Image []byte `json:"image,omitempty"`
	// ImagePath points at an image file inside the image directory of a
	// replay source. Network sources reject it.
	ImagePath string `json:"image_path,omitempty"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func messageValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// GetLogger returns the source module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("source")
}

// ParseMessage decodes and validates one message.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, errors.New(err).
			Component("source").
			Category(errors.CategoryFileParsing).
			Build()
	}
	if err := messageValidator().Struct(msg); err != nil {
		return msg, errors.New(err).
			Component("source").
			Category(errors.CategoryValidation).
			Context("text", msg.Text).
			Build()
	}
	return msg, nil
}

// Detection converts the message for the pipeline. ImagePath is resolved
// inside imageDir and must be a local relative path; with an empty imageDir
// only inline images are accepted.
func (m Message) Detection(imageDir string) (pipeline.RawDetection, error) {
	det := pipeline.RawDetection{
		Text:        m.Text,
		Confidence:  m.Confidence,
		CountryCode: m.CountryCode,
		Timestamp:   m.Timestamp,
	}
	switch {
	case len(m.Image) > 0:
		det.Image = pipeline.NewBytesImage(m.Image, nil)
	case m.ImagePath != "":
		path, err := resolveImagePath(imageDir, m.ImagePath)
		if err != nil {
			return det, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return det, errors.New(err).
				Component("source").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Build()
		}
		det.Image = pipeline.NewBytesImage(data, nil)
	}
	return det, nil
}

func resolveImagePath(imageDir, ref string) (string, error) {
	if imageDir == "" {
		return "", errors.Newf("image paths are not accepted from this source").
			Component("source").
			Category(errors.CategoryValidation).
			Context("image_path", ref).
			Build()
	}
	if !filepath.IsLocal(ref) {
		return "", errors.Newf("image path %q escapes the image directory", ref).
			Component("source").
			Category(errors.CategoryValidation).
			Build()
	}
	return filepath.Join(imageDir, ref), nil
}
