package tryon

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// ErrInvalidUserImage marks photos that fail validation or decoding.
var ErrInvalidUserImage = errors.New("invalid user image")

const (
	maxPhotoBytes = 10 << 20 // 10 MiB
	maxDimension  = 1536     // provider input ceiling
)

var allowedPhotoMime = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/bmp":  true,
	// Note: SVG/HTML style scriptable types are rejected by the sniff below
}

// NormalizePhoto validates a user photo and prepares it for the generation
// provider: content sniffing against a whitelist, full decode, EXIF
// orientation fix and a downscale to the provider ceiling. The result is
// always a JPEG.
func NormalizePhoto(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty photo upload", ErrInvalidUserImage)
	}
	if len(data) > maxPhotoBytes {
		return nil, fmt.Errorf("%w: photo exceeds %d bytes", ErrInvalidUserImage, maxPhotoBytes)
	}

	detected := http.DetectContentType(data)
	if !allowedPhotoMime[detected] {
		return nil, fmt.Errorf("%w: unsupported content type %s", ErrInvalidUserImage, detected)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUserImage, err)
	}

	img = applyOrientation(img, orientationOf(data))

	bounds := img.Bounds()
	if bounds.Dx() > maxDimension || bounds.Dy() > maxDimension {
		img = imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUserImage, err)
	}
	return buf.Bytes(), nil
}

// orientationOf reads the EXIF orientation tag. Photos without EXIF data
// report the identity orientation.
func orientationOf(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return orientation
}

// applyOrientation maps the EXIF orientation values 2-8 onto the transforms
// that bring the image upright.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
