package probe

import (
	"errors"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
)

// Duration opens a media file with FFmpeg and returns its container-level
// duration. Used to fill in entry durations when the extractor metadata does
// not carry one.
func Duration(path string) (time.Duration, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return 0, errors.New("probe: alloc format context")
	}
	defer fc.Free()

	if err := fc.OpenInput(path, nil, nil); err != nil {
		return 0, fmt.Errorf("probe: open input: %w", err)
	}
	defer fc.CloseInput()

	if err := fc.FindStreamInfo(nil); err != nil {
		return 0, fmt.Errorf("probe: find stream info: %w", err)
	}

	if _, _, err := fc.FindBestStream(astiav.MediaTypeAudio, -1, -1); err != nil {
		return 0, fmt.Errorf("probe: no audio stream: %w", err)
	}

	// container duration is in AV_TIME_BASE units (microseconds)
	us := fc.Duration()
	if us <= 0 {
		return 0, nil
	}
	return time.Duration(us) * time.Microsecond, nil
}
