//go:build with_cv
// +build with_cv

package config

import (
	"fmt"

	"github.com/xaionaro-go/avinpaint/detector"
	"github.com/xaionaro-go/avinpaint/inpaint"
)

func newHaarCascade(xml []byte) (haarCascade, error) {
	d, err := detector.NewHaarCascade(xml, detector.DefaultHaarCascadeParams())
	if err != nil {
		return nil, err
	}
	return d, nil
}

func newOpenCV(cfg ClassicalConfig) (inpaint.Inpainter, error) {
	var method inpaint.OpenCVMethod
	switch cfg.OpenCVMethod {
	case "", "telea":
		method = inpaint.OpenCVMethodTelea
	case "ns":
		method = inpaint.OpenCVMethodNavierStokes
	default:
		return nil, fmt.Errorf("unknown OpenCV inpainting method '%s'", cfg.OpenCVMethod)
	}
	radius := float32(cfg.Radius)
	if radius <= 0 {
		radius = inpaint.DefaultClassicalRadius
	}
	return inpaint.NewOpenCV(method, radius), nil
}
