package imageio

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/bep/imagemeta"
)

const exifTimeLayout = "2006:01:02 15:04:05"

// Metadata is the capture information found in an image's EXIF block.
type Metadata struct {
	CameraMake  string    `json:"camera_make,omitempty"`
	CameraModel string    `json:"camera_model,omitempty"`
	CapturedAt  time.Time `json:"captured_at,omitempty"`
	Orientation int       `json:"orientation,omitempty"`
}

var wantedEXIF = map[string]bool{
	"Make":             true,
	"Model":            true,
	"DateTimeOriginal": true,
	"Orientation":      true,
}

// ExtractMetadata returns nil when data carries no usable EXIF fields.
// Parsing problems are not errors; metadata is optional.
func ExtractMetadata(data []byte) *Metadata {
	if len(data) == 0 {
		return nil
	}

	meta := &Metadata{}
	found := false

	_, err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			return ti.Source == imagemeta.EXIF && wantedEXIF[ti.Tag]
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			if handleEXIF(meta, ti) {
				found = true
			}
			return nil
		},
	})
	if err != nil || !found {
		return nil
	}
	return meta
}

func handleEXIF(meta *Metadata, ti imagemeta.TagInfo) bool {
	switch ti.Tag {
	case "Make":
		meta.CameraMake = tagString(ti.Value)
		return meta.CameraMake != ""
	case "Model":
		meta.CameraModel = tagString(ti.Value)
		return meta.CameraModel != ""
	case "DateTimeOriginal":
		t, err := time.Parse(exifTimeLayout, tagString(ti.Value))
		if err != nil {
			return false
		}
		meta.CapturedAt = t
		return true
	case "Orientation":
		n := tagInt(ti.Value)
		if n < 1 || n > 8 {
			return false
		}
		meta.Orientation = n
		return true
	}
	return false
}

func tagString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(strings.TrimRight(val, "\x00"))
	case []string:
		if len(val) > 0 {
			return strings.TrimSpace(val[0])
		}
	case time.Time:
		return val.Format(exifTimeLayout)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	}
	return ""
}

func tagInt(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case uint16:
		return int(val)
	case uint32:
		return int(val)
	case int64:
		return int(val)
	case []uint16:
		if len(val) > 0 {
			return int(val[0])
		}
	}
	return 0
}
