package mask

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// Region is an axis-aligned rectangle; (X2, Y2) is exclusive.
type Region struct {
	X1 int `yaml:"x1" msgpack:"x1"`
	Y1 int `yaml:"y1" msgpack:"y1"`
	X2 int `yaml:"x2" msgpack:"x2"`
	Y2 int `yaml:"y2" msgpack:"y2"`
}

func (r Region) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.X1, r.Y1, r.X2, r.Y2)
}

func (r Region) Rectangle() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// Grow returns the region expanded by n pixels on every side.
func (r Region) Grow(n int) Region {
	return Region{X1: r.X1 - n, Y1: r.Y1 - n, X2: r.X2 + n, Y2: r.Y2 + n}
}

// Validate checks 0 <= X1 < X2 <= width and 0 <= Y1 < Y2 <= height.
func (r Region) Validate(width, height int) error {
	if r.X1 < 0 || r.Y1 < 0 || r.X1 >= r.X2 || r.Y1 >= r.Y2 || r.X2 > width || r.Y2 > height {
		return ErrInvalidRegion{Region: r, Width: width, Height: height}
	}
	return nil
}

// ParseRegion parses "x1,y1,x2,y2".
func ParseRegion(s string) (Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("expected 'x1,y1,x2,y2', got '%s'", s)
	}
	var v [4]int
	for idx, part := range parts {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Region{}, fmt.Errorf("unable to parse coordinate #%d of '%s': %w", idx, s, err)
		}
		v[idx] = i
	}
	r := Region{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
	if r.X1 >= r.X2 || r.Y1 >= r.Y2 || r.X1 < 0 || r.Y1 < 0 {
		return Region{}, fmt.Errorf("region '%s' is empty or negative", s)
	}
	return r, nil
}

// DetectionBox is a region reported by an object detector.
type DetectionBox struct {
	Region     `yaml:",inline" msgpack:",inline"`
	Label      string  `yaml:"label" msgpack:"label"`
	Confidence float64 `yaml:"confidence" msgpack:"confidence"`
}
