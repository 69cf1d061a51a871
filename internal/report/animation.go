package report

import (
	"cmp"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/palette"
	"image/png"
	"os"
	"path/filepath"
	"slices"

	"rtbench/internal/analysis"
)

// Animation renders the growth of a box plot over physical time.
type Animation struct {
	Program   string
	FramesDir string
	GIFPath   string
	Frames    int
	FPS       int
	Figure    Figure
	Order     []string
}

// FramePath is the PNG written for frame i.
func (a Animation) FramePath(i int) string {
	return filepath.Join(a.FramesDir, fmt.Sprintf("%s_frame_%04d.png", a.Program, i))
}

// Render writes a.Frames cumulative frames, each adding the next chunk of
// every dataset in physical-time order, then assembles them into a GIF.
func (a Animation) Render(sets []analysis.Dataset) error {
	if a.Frames <= 0 {
		return fmt.Errorf("animation needs a positive frame count, got %d", a.Frames)
	}
	sorted := make([]analysis.Dataset, 0, len(sets))
	longest := 0
	for _, ds := range sets {
		pts := slices.Clone(ds.Points)
		slices.SortStableFunc(pts, func(x, y analysis.Point) int {
			return cmp.Compare(x.Record.Physical, y.Record.Physical)
		})
		sorted = append(sorted, analysis.Dataset{Label: ds.Label, Points: pts})
		longest = max(longest, len(pts))
	}
	if longest == 0 {
		return ErrNoData
	}
	chunk := (longest + a.Frames - 1) / a.Frames
	if err := os.MkdirAll(a.FramesDir, 0o755); err != nil {
		return err
	}

	var paths []string
	for f := range a.Frames {
		cur := make([]analysis.Dataset, len(sorted))
		for i, ds := range sorted {
			n := min((f+1)*chunk, len(ds.Points))
			cur[i] = analysis.Dataset{Label: ds.Label, Points: ds.Points[:n]}
		}
		path := a.FramePath(f)
		if err := BoxPlot(path, a.Figure, analysis.Combine(cur...), a.Order); err != nil {
			return fmt.Errorf("frame %d: %w", f, err)
		}
		paths = append(paths, path)
	}
	return WriteGIF(a.GIFPath, paths, a.FPS)
}

// WriteGIF assembles PNG frames into a looping GIF.
func WriteGIF(path string, frames []string, fps int) error {
	if fps <= 0 {
		fps = 5
	}
	anim := &gif.GIF{}
	for _, fp := range frames {
		img, err := readPNG(fp)
		if err != nil {
			return err
		}
		b := img.Bounds()
		pal := image.NewPaletted(b, palette.Plan9)
		draw.FloydSteinberg.Draw(pal, b, img, b.Min)
		anim.Image = append(anim.Image, pal)
		anim.Delay = append(anim.Delay, 100/fps)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gif.EncodeAll(f, anim); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
