package output

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/kwv/geoconflate/feature"
	"github.com/kwv/geoconflate/result"
)

// ErrEmpty is returned when there is no geometry to render
var ErrEmpty = eris.New("nothing to render")

// Layer colors, keyed by result collection name
var (
	ColorTarget    = color.NRGBA{R: 90, G: 90, B: 90, A: 255}
	ColorValid     = color.NRGBA{R: 46, G: 160, B: 67, A: 200}
	ColorInvalid   = color.NRGBA{R: 207, G: 34, B: 46, A: 200}
	ColorNew       = color.NRGBA{R: 9, G: 105, B: 218, A: 200}
	ColorUnmatched = color.NRGBA{R: 191, G: 135, B: 0, A: 200}
	ColorLink      = color.NRGBA{R: 0, G: 0, B: 0, A: 255}
)

// nrgbaToRGBA converts color.NRGBA to the premultiplied color.RGBA canvas
// expects
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	a := uint32(c.A)
	return color.RGBA{
		R: uint8(uint32(c.R) * a / 255),
		G: uint8(uint32(c.G) * a / 255),
		B: uint8(uint32(c.B) * a / 255),
		A: c.A,
	}
}

type layer struct {
	name    string
	objects []*feature.Object
	color   color.NRGBA
	filled  bool
	dashed  bool
}

// Renderer draws a conflation result: target objects as outlines, source
// objects filled by status and links as dashed lines
type Renderer struct {
	layers []layer

	// Width is the drawing width in millimeters; height follows the data
	Width       float64
	Padding     float64
	PointRadius float64
	StrokeWidth float64
	Resolution  canvas.Resolution
}

// NewRenderer creates a renderer for res drawn over the given targets
func NewRenderer(res *result.Result, targets []*feature.Object) *Renderer {
	return &Renderer{
		layers: []layer{
			{name: "targets", objects: targets, color: ColorTarget},
			{name: "unmatched", objects: res.Unmatched, color: ColorUnmatched, filled: true},
			{name: "invalid", objects: res.Invalid, color: ColorInvalid, filled: true},
			{name: "new", objects: res.New, color: ColorNew, filled: true},
			{name: "valid", objects: res.Valid, color: ColorValid, filled: true},
			{name: "links", objects: res.Links, color: ColorLink, dashed: true},
		},
		Width:       400,
		Padding:     10,
		PointRadius: 1.5,
		StrokeWidth: 0.4,
		Resolution:  canvas.DPI(150),
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

type frame struct {
	bound         orb.Bound
	scale         float64
	width, height float64
	padding       float64
}

func (f frame) project(p orb.Point) (float64, float64) {
	return (p[0]-f.bound.Min[0])*f.scale + f.padding, (p[1]-f.bound.Min[1])*f.scale + f.padding
}

func (r *Renderer) frame() (frame, error) {
	var b orb.Bound
	seen := false
	for _, l := range r.layers {
		for _, o := range l.objects {
			if o.Geometry == nil {
				continue
			}
			if !seen {
				b, seen = o.Geometry.Bound(), true
				continue
			}
			b = b.Union(o.Geometry.Bound())
		}
	}
	if !seen {
		return frame{}, ErrEmpty
	}
	span := b.Right() - b.Left()
	if h := b.Top() - b.Bottom(); h > span {
		span = h
	}
	scale := 1.0
	if span > 0 {
		scale = r.Width / span
	}
	return frame{
		bound:   b,
		scale:   scale,
		width:   (b.Right()-b.Left())*scale + 2*r.Padding,
		height:  (b.Top()-b.Bottom())*scale + 2*r.Padding,
		padding: r.Padding,
	}, nil
}

// RenderToSVG writes the result as an SVG
func (r *Renderer) RenderToSVG(w io.Writer) error {
	f, err := r.frame()
	if err != nil {
		return err
	}
	s := svg.New(w, f.width, f.height, nil)
	r.renderToCanvas(s, f)
	return eris.Wrap(s.Close(), "output: close svg")
}

func (r *Renderer) rasterize() (*rasterizer.Rasterizer, error) {
	f, err := r.frame()
	if err != nil {
		return nil, err
	}
	rast := rasterizer.New(f.width, f.height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, f)
	return rast, nil
}

// RenderToPNG writes the result as a PNG at the renderer resolution
func (r *Renderer) RenderToPNG(w io.Writer) error {
	rast, err := r.rasterize()
	if err != nil {
		return err
	}
	return eris.Wrap(png.Encode(w, rast), "output: encode png")
}

// Thumbnail writes a PNG scaled to fit within maxSize pixels, with a legend
func (r *Renderer) Thumbnail(w io.Writer, maxSize int) error {
	if maxSize < 1 {
		return eris.Errorf("output: thumbnail size must be positive, got %d", maxSize)
	}
	rast, err := r.rasterize()
	if err != nil {
		return err
	}
	src := rast.Bounds()
	tw, th := maxSize, maxSize
	if src.Dx() >= src.Dy() {
		th = max(1, src.Dy()*maxSize/src.Dx())
	} else {
		tw = max(1, src.Dx()*maxSize/src.Dy())
	}
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), rast, src, xdraw.Src, nil)
	r.drawLegend(dst)
	return eris.Wrap(png.Encode(w, dst), "output: encode thumbnail")
}

func (r *Renderer) renderToCanvas(cr canvasRenderer, f frame) {
	bg := canvas.DefaultStyle
	bg.Fill = canvas.Paint{Color: canvas.White}
	bg.Stroke = canvas.Paint{Color: canvas.Transparent}
	cr.RenderPath(canvas.Rectangle(f.width, f.height), bg, canvas.Identity)

	for _, l := range r.layers {
		style := canvas.DefaultStyle
		style.StrokeWidth = r.StrokeWidth
		style.Stroke = canvas.Paint{Color: nrgbaToRGBA(l.color)}
		if l.filled {
			fill := l.color
			fill.A /= 2
			style.Fill = canvas.Paint{Color: nrgbaToRGBA(fill)}
		} else {
			style.Fill = canvas.Paint{Color: canvas.Transparent}
		}
		if l.dashed {
			style.Dashes = []float64{1.5, 1}
		}
		for _, o := range l.objects {
			if o.Geometry == nil {
				continue
			}
			r.drawGeometry(cr, f, o.Geometry, style, l.color)
		}
	}
}

func (r *Renderer) drawGeometry(cr canvasRenderer, f frame, g orb.Geometry, style canvas.Style, c color.NRGBA) {
	switch v := g.(type) {
	case orb.Point:
		dot := style
		dot.Fill = canvas.Paint{Color: nrgbaToRGBA(c)}
		dot.Dashes = nil
		x, y := f.project(v)
		cr.RenderPath(canvas.Circle(r.PointRadius).Translate(x, y), dot, canvas.Identity)
	case orb.MultiPoint:
		for _, p := range v {
			r.drawGeometry(cr, f, p, style, c)
		}
	case orb.LineString:
		line := style
		line.Fill = canvas.Paint{Color: canvas.Transparent}
		cr.RenderPath(tracePath(&canvas.Path{}, f, v, false), line, canvas.Identity)
	case orb.MultiLineString:
		for _, ls := range v {
			r.drawGeometry(cr, f, ls, style, c)
		}
	case orb.Ring:
		cr.RenderPath(tracePath(&canvas.Path{}, f, v, true), style, canvas.Identity)
	case orb.Polygon:
		p := &canvas.Path{}
		for _, ring := range v {
			tracePath(p, f, ring, true)
		}
		cr.RenderPath(p, style, canvas.Identity)
	case orb.MultiPolygon:
		for _, poly := range v {
			r.drawGeometry(cr, f, poly, style, c)
		}
	case orb.Collection:
		for _, part := range v {
			r.drawGeometry(cr, f, part, style, c)
		}
	case orb.Bound:
		r.drawGeometry(cr, f, v.ToPolygon(), style, c)
	}
}

// tracePath appends pts to p as a new subpath
func tracePath(p *canvas.Path, f frame, pts []orb.Point, closed bool) *canvas.Path {
	for i, pt := range pts {
		x, y := f.project(pt)
		if i == 0 {
			p.MoveTo(x, y)
		} else {
			p.LineTo(x, y)
		}
	}
	if closed && len(pts) > 0 {
		p.Close()
	}
	return p
}

// drawLegend lists the non-empty layers with a color swatch each
func (r *Renderer) drawLegend(img *image.RGBA) {
	y := 16
	for _, l := range r.layers {
		if len(l.objects) == 0 {
			continue
		}
		for dy := 0; dy < 10; dy++ {
			for dx := 0; dx < 10; dx++ {
				img.Set(6+dx, y+dy-9, l.color)
			}
		}
		drawText(img, 20, y, l.name, color.RGBA{0, 0, 0, 255})
		y += 14
	}
}

func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
