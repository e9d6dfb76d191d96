package processing

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/yolo-prep/internal/utils"
	"github.com/menta2k/yolo-prep/pkg/types"
)

// Colour modes reported for decoded images. ModeRGB is the canonical one.
const (
	ModeRGB     = "RGB"
	ModeRGBA    = "RGBA"
	ModeGray    = "L"
	ModeGray16  = "I;16"
	ModePalette = "P"
	ModeCMYK    = "CMYK"
	ModeRGB16   = "RGB16"
)

// DefaultQuality is the JPEG/WebP quality used when persisting images
const DefaultQuality = 95

// Canonical is a fully decoded image in canonical 3-channel form
type Canonical struct {
	Image        *image.NRGBA
	Dimensions   types.Dimensions
	OriginalMode string
	Converted    bool
}

// Processor decodes, normalizes and encodes dataset images
type Processor struct {
	Quality      int
	WebPLossless bool
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{Quality: DefaultQuality}
}

// Check fully decodes the image at path and returns it in canonical colour form.
// A file that cannot be read or decoded yields a *types.PairError of kind
// CorruptedImage. Check never writes.
func (p *Processor) Check(fs afero.Fs, path string) (*Canonical, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, &types.PairError{Kind: types.CorruptedImage, Path: path, Err: errors.Wrap(err, "failed to read image")}
	}

	img, err := p.decode(data, path)
	if err != nil {
		return nil, &types.PairError{Kind: types.CorruptedImage, Path: path, Err: err}
	}

	b := img.Bounds()
	if b.Empty() {
		return nil, &types.PairError{Kind: types.CorruptedImage, Path: path, Err: errors.New("image has no pixels")}
	}

	mode := ColorMode(img)
	return &Canonical{
		Image:        Normalize(img),
		Dimensions:   types.Dimensions{Width: b.Dx(), Height: b.Dy()},
		OriginalMode: mode,
		Converted:    mode != ModeRGB,
	}, nil
}

// decode tries the registered decoders first, then an explicit WebP decode
func (p *Processor) decode(data []byte, path string) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}

	if strings.EqualFold(utils.GetFileExtension(path), ".webp") {
		if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
			return wimg, nil
		}
	}
	return nil, errors.Wrap(err, "failed to decode image")
}

// ColorMode names the colour mode of a decoded image
func ColorMode(img image.Image) string {
	switch m := img.(type) {
	case *image.YCbCr:
		return ModeRGB
	case *image.Gray:
		return ModeGray
	case *image.Gray16:
		return ModeGray16
	case *image.Paletted:
		return ModePalette
	case *image.CMYK:
		return ModeCMYK
	case *image.RGBA64, *image.NRGBA64:
		if m.(interface{ Opaque() bool }).Opaque() {
			return ModeRGB16
		}
		return ModeRGBA
	case *image.RGBA, *image.NRGBA:
		if m.(interface{ Opaque() bool }).Opaque() {
			return ModeRGB
		}
		return ModeRGBA
	}

	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return ModeGray
	case color.CMYKModel:
		return ModeCMYK
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return ModeRGB
	}
	return ModeRGBA
}

// Normalize returns img as an NRGBA buffer with every alpha value set to 255.
// Alpha is dropped, not composited. Normalizing a canonical image leaves its
// pixels unchanged.
func Normalize(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// Save encodes img to path in the format implied by the extension. The write goes
// through a temp file and a rename, so a failure never leaves a partial image.
func (p *Processor) Save(fs afero.Fs, img image.Image, path string) error {
	var buf bytes.Buffer
	if err := p.Encode(&buf, img, utils.GetFileExtension(path)); err != nil {
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	if err := utils.WriteFileAtomic(fs, path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// Encode writes img to w in the format named by ext (".jpg", ".png", ".webp", ...)
func (p *Processor) Encode(w io.Writer, img image.Image, ext string) error {
	quality := p.Quality
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}

	switch strings.ToLower(ext) {
	case ".webp":
		return webp.Encode(w, img, &webp.Options{Lossless: p.WebPLossless, Quality: float32(quality)})
	default:
		format, err := imaging.FormatFromExtension(ext)
		if err != nil {
			return err
		}
		return imaging.Encode(w, img, format, imaging.JPEGQuality(quality))
	}
}
