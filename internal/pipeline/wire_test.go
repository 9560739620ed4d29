package pipeline

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/area-monitor/internal/geometry"
	"github.com/banshee-data/area-monitor/internal/tracking"
)

func TestFrameReader(t *testing.T) {
	t.Parallel()
	input := `# replay capture
{"camera":"cam1","frame":1,"timestamp":"2026-05-01T08:00:00Z","detections":[{"x":10,"y":20,"w":30,"h":40,"confidence":0.9,"label":"person"}]}

{"camera":"cam2","frame":7,"detections":[]}
{"camera":
`
	fr := NewFrameReader(strings.NewReader(input))

	f, err := fr.Next()
	require.NoError(t, err)
	want := Frame{
		CameraID:  "cam1",
		Number:    1,
		Timestamp: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
		Detections: []tracking.Detection{{
			Box:        geometry.Box{X: 10, Y: 20, W: 30, H: 40},
			Confidence: 0.9,
			ClassLabel: "person",
		}},
	}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}

	f, err = fr.Next()
	require.NoError(t, err)
	assert.Equal(t, "cam2", f.CameraID)
	assert.True(t, f.Timestamp.IsZero())
	assert.Empty(t, f.Detections)

	_, err = fr.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 5")

	_, err = fr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameMessageToFrame(t *testing.T) {
	t.Parallel()
	ts := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	msg := FrameMessage{
		Camera:     "cam3",
		Frame:      42,
		Timestamp:  &ts,
		Detections: []DetectionMessage{{X: 1, Y: 2, W: 3, H: 4, Confidence: 0.5, Label: "dog"}},
	}
	f := msg.ToFrame()
	assert.Equal(t, "cam3", f.CameraID)
	assert.Equal(t, int64(42), f.Number)
	assert.Equal(t, ts, f.Timestamp)
	require.Len(t, f.Detections, 1)
	assert.Equal(t, geometry.Box{X: 1, Y: 2, W: 3, H: 4}, f.Detections[0].Box)
	assert.Equal(t, "dog", f.Detections[0].ClassLabel)
}
