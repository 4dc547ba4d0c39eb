package inpaint

import (
	"context"
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/transform"
	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/logger"
	"github.com/xaionaro-go/avinpaint/mask"
)

// Model is a text-guided image inpainting model. The mask is white where
// content must be generated. The result may have a different size; it is
// resized back to the input size.
type Model interface {
	fmt.Stringer
	Fill(ctx context.Context, img *image.RGBA, m *image.Gray, guidance string) (image.Image, error)
}

// GenerativeFill delegates repair to a generative Model.
type GenerativeFill struct {
	Model    Model
	Guidance string
}

var _ Inpainter = (*GenerativeFill)(nil)

func NewGenerativeFill(model Model, guidance string) *GenerativeFill {
	return &GenerativeFill{
		Model:    model,
		Guidance: guidance,
	}
}

func (g *GenerativeFill) String() string {
	return fmt.Sprintf("GenerativeFill(%s)", g.Model)
}

func (g *GenerativeFill) Repair(
	ctx context.Context,
	f frame.Frame,
	m mask.Mask,
) (_ret frame.Frame, _err error) {
	logger.Tracef(ctx, "GenerativeFill.Repair(ctx, %s, %s)", f, m)
	defer func() { logger.Tracef(ctx, "/GenerativeFill.Repair(ctx, %s, %s): %v", f, m, _err) }()
	if err := checkDimensions(f, m); err != nil {
		return frame.Frame{}, err
	}
	if m.IsZero() {
		return f, nil
	}
	if g.Model == nil {
		return frame.Frame{}, ErrModelUnavailable{Err: fmt.Errorf("no model configured")}
	}

	result, err := g.Model.Fill(ctx, f.ToRGBA(), m.ToGray(), g.Guidance)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return frame.Frame{}, ctxErr
		}
		return frame.Frame{}, ErrModelUnavailable{Err: err}
	}
	if result == nil {
		return frame.Frame{}, ErrModelUnavailable{Err: fmt.Errorf("%s returned no image", g.Model)}
	}

	b := result.Bounds()
	if b.Dx() != f.Width || b.Dy() != f.Height {
		logger.Debugf(ctx, "resizing the model output from %dx%d to %dx%d", b.Dx(), b.Dy(), f.Width, f.Height)
		result = transform.Resize(result, f.Width, f.Height, transform.Linear)
	}
	return composite(f, frame.FromImage(result, f.Mode()), m), nil
}
