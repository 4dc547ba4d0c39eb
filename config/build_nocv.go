//go:build !with_cv
// +build !with_cv

package config

import (
	"fmt"

	"github.com/xaionaro-go/avinpaint/inpaint"
)

func newHaarCascade([]byte) (haarCascade, error) {
	return nil, fmt.Errorf("haar cascades require building with the 'with_cv' tag")
}

func newOpenCV(ClassicalConfig) (inpaint.Inpainter, error) {
	return nil, fmt.Errorf("the OpenCV engine requires building with the 'with_cv' tag")
}
