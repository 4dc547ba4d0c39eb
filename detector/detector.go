// Package detector provides mask.Detector implementations: a remote model
// served by a model worker and, with the with_cv build tag, an OpenCV Haar
// cascade.
package detector

import (
	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/mask"
)

// DetectParams is the payload of the "detect" model worker method.
type DetectParams struct {
	Image    []byte `msgpack:"image"`
	Width    int    `msgpack:"width"`
	Height   int    `msgpack:"height"`
	Channels int    `msgpack:"channels"`
}

// DetectResult is the reply to the "detect" model worker method.
type DetectResult struct {
	Detections []mask.DetectionBox `msgpack:"detections"`
}

func newDetectParams(f frame.Frame) DetectParams {
	return DetectParams{
		Image:    f.Pix,
		Width:    f.Width,
		Height:   f.Height,
		Channels: f.Channels,
	}
}

// Filter drops detections below minConfidence and, if labels is not empty,
// detections with other labels.
func Filter(
	boxes []mask.DetectionBox,
	minConfidence float64,
	labels []string,
) []mask.DetectionBox {
	result := boxes[:0:0]
	for _, box := range boxes {
		if box.Confidence < minConfidence {
			continue
		}
		if len(labels) > 0 && !contains(labels, box.Label) {
			continue
		}
		result = append(result, box)
	}
	return result
}

func contains(s []string, v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}
