package frame

import (
	"path/filepath"
	"regexp"
	"time"
)

// RecordedAtLayout is the layout of the recording timestamp embedded into
// file names by the capture tooling, e.g. "2023-01-05T103000Z.mp4".
const RecordedAtLayout = "2006-01-02T150405Z"

var recordedAtPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{6}Z`)

// RecordedAtFromName extracts the recording time from the base name of
// the path.
func RecordedAtFromName(path string) (time.Time, bool) {
	m := recordedAtPattern.FindString(filepath.Base(path))
	if m == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(RecordedAtLayout, m)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
