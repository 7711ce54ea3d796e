// Package imagedir serves a directory of still images (one file per frame,
// ordered by file name) as a frame source.
//
// An optional "info.yaml" file in the directory may specify the frame
// rate and the recording time:
//
//	fps: 30
//	fps_real: 29.97
//	recorded_at: 2023-01-05T10:30:00Z
//
// Without it the recording time is taken from the directory name (see
// frame.RecordedAtFromName) or from the EXIF data of the first image.
package imagedir

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultFPS is used when the directory carries no info.yaml.
	DefaultFPS = 30

	InfoFileName = "info.yaml"
)

var supportedExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".bmp":  {},
	".tif":  {},
	".tiff": {},
}

type infoFile struct {
	FPS        int       `yaml:"fps"`
	FPSReal    float64   `yaml:"fps_real"`
	RecordedAt time.Time `yaml:"recorded_at"`
}

type Source struct {
	dir      string
	files    []string
	info     frame.Info
	position int
}

var _ frame.Source = (*Source)(nil)

func New(
	ctx context.Context,
	dir string,
) (*Source, error) {
	stat, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to stat %q: %w", dir, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to list %q: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := supportedExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found in %q", dir)
	}
	sort.Strings(files)

	s := &Source{
		dir:   dir,
		files: files,
		info: frame.Info{
			FPS:         DefaultFPS,
			FPSReal:     DefaultFPS,
			TotalFrames: len(files),
		},
	}
	if err := s.readInfoFile(); err != nil {
		return nil, err
	}

	cfg, err := decodeConfig(files[0])
	if err != nil {
		return nil, err
	}
	s.info.Width, s.info.Height = cfg.Width, cfg.Height

	if s.info.RecordedAt.IsZero() {
		if t, ok := frame.RecordedAtFromName(dir); ok {
			s.info.RecordedAt = t
		} else {
			s.info.RecordedAt = exifTime(ctx, files[0])
		}
	}

	logger.Debugf(ctx, "image directory %q: %d frames, %dx%d, %v fps", dir, len(files), cfg.Width, cfg.Height, s.info.FPSReal)
	return s, nil
}

func (s *Source) readInfoFile() error {
	b, err := os.ReadFile(filepath.Join(s.dir, InfoFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("unable to read %s: %w", InfoFileName, err)
	}

	var info infoFile
	if err := yaml.Unmarshal(b, &info); err != nil {
		return fmt.Errorf("unable to parse %s: %w", InfoFileName, err)
	}
	switch {
	case info.FPS > 0 && info.FPSReal > 0:
		s.info.FPS, s.info.FPSReal = info.FPS, info.FPSReal
	case info.FPS > 0:
		s.info.FPS, s.info.FPSReal = info.FPS, float64(info.FPS)
	case info.FPSReal > 0:
		s.info.FPS, s.info.FPSReal = int(math.Round(info.FPSReal)), info.FPSReal
	}
	s.info.RecordedAt = info.RecordedAt
	return nil
}

func decodeConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, fmt.Errorf("unable to open %q: %w", path, err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return image.Config{}, fmt.Errorf("unable to decode the header of %q: %w", path, err)
	}
	return cfg, nil
}

func exifTime(ctx context.Context, path string) time.Time {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		logger.Tracef(ctx, "no EXIF data in %q: %v", path, err)
		return time.Time{}
	}
	for _, tag := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized, exif.DateTime} {
		field, err := x.Get(tag)
		if err != nil {
			continue
		}
		v, err := field.StringVal()
		if err != nil {
			continue
		}
		t, err := time.ParseInLocation("2006:01:02 15:04:05", v, time.UTC)
		if err != nil {
			continue
		}
		return t
	}
	return time.Time{}
}

func (s *Source) Close() error {
	return nil
}

func (s *Source) Info(
	ctx context.Context,
) (frame.Info, error) {
	return s.info, nil
}

func (s *Source) Next(
	ctx context.Context,
) (int, *frame.Frame, error) {
	if s.position >= len(s.files) {
		return s.position, nil, io.EOF
	}
	idx := s.position
	s.position++

	f, err := os.Open(s.files[idx])
	if err != nil {
		logger.Warnf(ctx, "unable to open %q: %v", s.files[idx], err)
		return idx, nil, frame.ErrUnreadable
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		logger.Warnf(ctx, "unable to decode %q: %v", s.files[idx], err)
		return idx, nil, frame.ErrUnreadable
	}
	result := frame.FromImage(img)
	if result.Width != s.info.Width || result.Height != s.info.Height {
		return idx, nil, fmt.Errorf("frame %d has size %dx%d, expected %dx%d", idx, result.Width, result.Height, s.info.Width, s.info.Height)
	}
	return idx, result, nil
}
