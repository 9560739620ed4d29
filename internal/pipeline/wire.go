package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/banshee-data/area-monitor/internal/geometry"
	"github.com/banshee-data/area-monitor/internal/tracking"
)

// DetectionMessage is the flat JSON form of one detection.
type DetectionMessage struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
}

// FrameMessage is the JSON form of one detector frame, as accepted by the
// HTTP ingest endpoint and the replay file reader.
type FrameMessage struct {
	Camera     string             `json:"camera"`
	Frame      int64              `json:"frame"`
	Timestamp  *time.Time         `json:"timestamp,omitempty"`
	Detections []DetectionMessage `json:"detections"`
}

// ToFrame converts m into a pipeline frame.
func (m FrameMessage) ToFrame() Frame {
	f := Frame{CameraID: m.Camera, Number: m.Frame}
	if m.Timestamp != nil {
		f.Timestamp = *m.Timestamp
	}
	f.Detections = make([]tracking.Detection, len(m.Detections))
	for i, d := range m.Detections {
		f.Detections[i] = tracking.Detection{
			Box:        geometry.Box{X: d.X, Y: d.Y, W: d.W, H: d.H},
			Confidence: d.Confidence,
			ClassLabel: d.Label,
		}
	}
	return f
}

// FrameReader decodes newline-delimited FrameMessages. Blank lines and
// lines starting with '#' are skipped.
type FrameReader struct {
	sc   *bufio.Scanner
	line int
}

func NewFrameReader(r io.Reader) *FrameReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &FrameReader{sc: sc}
}

// Next returns the next frame, or io.EOF when the input is exhausted.
func (fr *FrameReader) Next() (Frame, error) {
	for fr.sc.Scan() {
		fr.line++
		text := strings.TrimSpace(fr.sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var m FrameMessage
		if err := json.Unmarshal([]byte(text), &m); err != nil {
			return Frame{}, fmt.Errorf("line %d: %w", fr.line, err)
		}
		return m.ToFrame(), nil
	}
	if err := fr.sc.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}
