package mediatool

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// PageCounter reports how many pages a document has.
type PageCounter func(path string) (int, error)

// Rasterizer renders each page of a PDF into a frame set with pdftoppm.
type Rasterizer struct {
	Tool  *Tool
	DPI   int
	Pages PageCounter
}

// NewRasterizer returns a Rasterizer using pages to size the document.
func NewRasterizer(tool *Tool, dpi int, pages PageCounter) *Rasterizer {
	return &Rasterizer{Tool: tool, DPI: dpi, Pages: pages}
}

// Rasterize appends one PNG frame per page, in page order.
func (r *Rasterizer) Rasterize(ctx context.Context, pdfPath string, frames *FrameSet) error {
	count, err := r.Pages(pdfPath)
	if err != nil {
		return err
	}

	for page := 1; page <= count; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame := frames.Reserve()
		// pdftoppm appends ".png" to the output root with -singlefile
		root := strings.TrimSuffix(frame.Path, ".png")
		_, err := r.Tool.Run(ctx,
			"-png",
			"-r", strconv.Itoa(r.DPI),
			"-f", strconv.Itoa(page),
			"-l", strconv.Itoa(page),
			"-singlefile",
			pdfPath, root)
		if err != nil {
			return fmt.Errorf("rasterize page %d: %w", page, err)
		}
		r.Tool.logger().Debug("page rasterized",
			zap.Int("page", page),
			zap.String("frame", frame.Path))
	}
	return nil
}
