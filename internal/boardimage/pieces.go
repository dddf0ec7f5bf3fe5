package boardimage

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Piece outlines on a 45x45 canvas. %[1]s is the body fill, %[2]s the outline.
var pieceShapes = map[nchess.PieceType]string{
	nchess.Pawn: `<circle cx="22.5" cy="15" r="5" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<polygon points="16,36 19.5,21 25.5,21 29,36" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<rect x="12" y="35" width="21" height="5" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>`,
	nchess.Rook: `<polygon points="12,8 16,8 16,11 20.5,11 20.5,8 24.5,8 24.5,11 29,11 29,8 33,8 33,15 30,15 30,32 15,32 15,15 12,15" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<rect x="11" y="32" width="23" height="8" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>`,
	nchess.Knight: `<polygon points="14,39 16,29 12,23 18,13 21,7 24,11 31,15 34,26 31,39" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<circle cx="20" cy="16" r="1.5" fill="%[2]s"/>`,
	nchess.Bishop: `<circle cx="22.5" cy="8" r="2.5" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<ellipse cx="22.5" cy="20" rx="6.5" ry="9" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<polygon points="17,36 19,28 26,28 28,36" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<rect x="11" y="35" width="23" height="5" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>`,
	nchess.Queen: `<polygon points="9,13 15,31 30,31 36,13 28.5,24 22.5,9 16.5,24" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<circle cx="9" cy="12" r="2.2" fill="%[1]s" stroke="%[2]s" stroke-width="1.2"/>
<circle cx="22.5" cy="8" r="2.2" fill="%[1]s" stroke="%[2]s" stroke-width="1.2"/>
<circle cx="36" cy="12" r="2.2" fill="%[1]s" stroke="%[2]s" stroke-width="1.2"/>
<rect x="12" y="31" width="21" height="8" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>`,
	nchess.King: `<rect x="21" y="4" width="3" height="11" fill="%[1]s" stroke="%[2]s" stroke-width="1"/>
<rect x="17.5" y="7" width="10" height="3" fill="%[1]s" stroke="%[2]s" stroke-width="1"/>
<polygon points="11,18 34,18 30,33 15,33" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>
<rect x="12" y="33" width="21" height="6" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>`,
}

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func pieceSVG(piece nchess.Piece) (string, error) {
	shape, ok := pieceShapes[piece.Type()]
	if !ok {
		return "", fmt.Errorf("no shape for piece %v", piece)
	}
	fill, stroke := "#f8f8f8", "#1a1a1a"
	if piece.Color() == nchess.Black {
		fill, stroke = "#262626", "#d8d8d8"
	}
	return `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45" width="45" height="45">` +
		fmt.Sprintf(shape, fill, stroke) + `</svg>`, nil
}

func renderPieceImage(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	src, err := pieceSVG(piece)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()
	return img, nil
}
