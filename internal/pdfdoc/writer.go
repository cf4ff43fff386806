package pdfdoc

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strconv"

	"golang.org/x/image/draw"
)

// Layout describes the page an image is drawn onto, in points.
type Layout struct {
	Width  float64
	Height float64
	Margin float64
}

// A4 is the default page: 595x842 with 40pt margins on every side.
var A4 = Layout{Width: 595, Height: 842, Margin: 40}

// ClientRect returns the drawable area inside the margins in PDF user space
// (origin bottom-left).
func (l Layout) ClientRect() (x, y, w, h float64) {
	w = l.Width - 2*l.Margin
	h = l.Height - 2*l.Margin
	return l.Margin, l.Height - l.Margin - h, w, h
}

// Image is a raster ready to be embedded as an image XObject.
type Image struct {
	Width            int
	Height           int
	ColorSpace       string
	BitsPerComponent int
	Filter           string
	Data             []byte
}

// JPEGImage wraps already encoded baseline or progressive JPEG data. Only
// RGB and grayscale JPEGs can be passed through unchanged.
func JPEGImage(data []byte, cfg image.Config) (*Image, error) {
	var cs string
	switch cfg.ColorModel {
	case color.YCbCrModel, color.RGBAModel:
		cs = "DeviceRGB"
	case color.GrayModel:
		cs = "DeviceGray"
	default:
		return nil, errors.New("jpeg color model cannot be embedded directly")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.New("image has no pixels")
	}
	return &Image{
		Width:            cfg.Width,
		Height:           cfg.Height,
		ColorSpace:       cs,
		BitsPerComponent: 8,
		Filter:           "DCTDecode",
		Data:             data,
	}, nil
}

// RasterImage converts img into a Flate-compressed XObject. Transparent pixels
// are flattened onto white.
func RasterImage(img image.Image) (*Image, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, errors.New("image has no pixels")
	}
	w, h := b.Dx(), b.Dy()

	var raw []byte
	cs := "DeviceRGB"

	if gray, ok := img.(*image.Gray); ok {
		cs = "DeviceGray"
		raw = make([]byte, 0, w*h)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := gray.PixOffset(b.Min.X, y)
			raw = append(raw, gray.Pix[off:off+w]...)
		}
	} else {
		rgba := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), image.White, image.Point{}, draw.Src)
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Over)

		raw = make([]byte, 0, w*h*3)
		for i := 0; i < len(rgba.Pix); i += 4 {
			raw = append(raw, rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2])
		}
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress image: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress image: %w", err)
	}

	return &Image{
		Width:            w,
		Height:           h,
		ColorSpace:       cs,
		BitsPerComponent: 8,
		Filter:           "FlateDecode",
		Data:             buf.Bytes(),
	}, nil
}

// NewImagePage builds a single-page PDF with img stretched over the client
// area of layout.
func NewImagePage(img *Image, layout Layout) ([]byte, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, errors.New("no image data")
	}
	x, y, cw, ch := layout.ClientRect()
	if cw <= 0 || ch <= 0 {
		return nil, fmt.Errorf("page %gx%g has no client area with margin %g", layout.Width, layout.Height, layout.Margin)
	}

	w := newPDFWriter()

	// Object numbers are fixed: 1 catalog, 2 pages, 3 page, 4 content, 5 image, 6 info.
	w.addObject("<< /Type /Catalog /Pages 2 0 R >>")
	w.addObject("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	w.addObject(fmt.Sprintf(
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %s %s] /Resources << /XObject << /Im0 5 0 R >> /ProcSet [/PDF /ImageC /ImageB] >> /Contents 4 0 R >>",
		num(layout.Width), num(layout.Height)))

	content := fmt.Sprintf("q\n%s 0 0 %s %s %s cm\n/Im0 Do\nQ\n", num(cw), num(ch), num(x), num(y))
	w.addStream("", []byte(content))

	w.addStream(fmt.Sprintf(
		"/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /%s /BitsPerComponent %d /Filter /%s",
		img.Width, img.Height, img.ColorSpace, img.BitsPerComponent, img.Filter), img.Data)

	w.addObject("<< /Producer (ocrpdf) >>")

	return w.close(1, 6), nil
}

// pdfWriter serializes numbered objects and tracks their offsets for the xref table.
type pdfWriter struct {
	buf     bytes.Buffer
	offsets []int
}

func newPDFWriter() *pdfWriter {
	w := &pdfWriter{}
	w.buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	return w
}

func (w *pdfWriter) begin() int {
	w.offsets = append(w.offsets, w.buf.Len())
	n := len(w.offsets)
	fmt.Fprintf(&w.buf, "%d 0 obj\n", n)
	return n
}

func (w *pdfWriter) addObject(body string) int {
	n := w.begin()
	w.buf.WriteString(body)
	w.buf.WriteString("\nendobj\n")
	return n
}

func (w *pdfWriter) addStream(dict string, data []byte) int {
	n := w.begin()
	if dict != "" {
		dict += " "
	}
	fmt.Fprintf(&w.buf, "<< %s/Length %d >>\nstream\n", dict, len(data))
	w.buf.Write(data)
	w.buf.WriteString("\nendstream\nendobj\n")
	return n
}

func (w *pdfWriter) close(root, info int) []byte {
	xref := w.buf.Len()
	size := len(w.offsets) + 1

	fmt.Fprintf(&w.buf, "xref\n0 %d\n", size)
	w.buf.WriteString("0000000000 65535 f \n")
	for _, off := range w.offsets {
		fmt.Fprintf(&w.buf, "%010d 00000 n \n", off)
	}

	fmt.Fprintf(&w.buf, "trailer\n<< /Size %d /Root %d 0 R /Info %d 0 R >>\n", size, root, info)
	fmt.Fprintf(&w.buf, "startxref\n%d\n", xref)
	w.buf.WriteString("%%EOF\n")

	return w.buf.Bytes()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
