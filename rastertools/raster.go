// Package rastertools loads georeferenced rasters into memory, derives NDVI
// from them and writes single-band results back to GeoTIFF.
package rastertools

import (
	"errors"
	"math"
	"path/filepath"
	"strings"

	"ndvi-tools/geoerr"

	"github.com/airbusgeo/godal"
	"github.com/sirupsen/logrus"
)

// identity is used when a raster carries no geotransform: pixel space.
var identity = [6]float64{0, 1, 0, 0, 0, 1}

// Band is one raster band held in memory, row-major.
type Band struct {
	Width     int
	Height    int
	Data      []float64
	NoData    float64
	HasNoData bool
}

// NewBand allocates a zero-filled band.
func NewBand(width, height int) Band {
	return Band{Width: width, Height: height, Data: make([]float64, width*height)}
}

// Valid reports whether cell i holds a measurement, i.e. is neither NaN nor
// the nodata sentinel.
func (b Band) Valid(i int) bool {
	v := b.Data[i]
	if math.IsNaN(v) {
		return false
	}
	return !b.HasNoData || v != b.NoData
}

// At returns the value at column x, row y.
func (b Band) At(x, y int) float64 {
	return b.Data[y*b.Width+x]
}

func (b Band) sameShape(o Band) bool {
	return b.Width == o.Width && b.Height == o.Height
}

// Raster is a georeferenced grid with one or more bands sharing its shape.
type Raster struct {
	Width        int
	Height       int
	GeoTransform [6]float64
	// Projection is the spatial reference as WKT, empty if unknown.
	Projection string
	DataType   godal.DataType
	Bands      []Band
}

// Validate checks that every band matches the raster's shape.
func (r *Raster) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return geoerr.Computationf("invalid raster size %dx%d", r.Width, r.Height)
	}
	for i, b := range r.Bands {
		if b.Width != r.Width || b.Height != r.Height {
			return geoerr.Computationf("band %d is %dx%d, raster is %dx%d", i+1, b.Width, b.Height, r.Width, r.Height)
		}
		if len(b.Data) != b.Width*b.Height {
			return geoerr.Computationf("band %d holds %d values, want %d", i+1, len(b.Data), b.Width*b.Height)
		}
	}
	return nil
}

// Band returns the band at the 1-based index.
func (r *Raster) Band(index int) (Band, error) {
	if index < 1 || index > len(r.Bands) {
		return Band{}, geoerr.Computationf("band index %d out of range [1, %d]", index, len(r.Bands))
	}
	return r.Bands[index-1], nil
}

// Open reads every band of the raster at path into memory.
func Open(path string) (*Raster, error) {
	return open(path, nil)
}

// OpenBands reads only the given 1-based bands. The returned raster holds them
// in the order requested.
func OpenBands(path string, indices ...int) (*Raster, error) {
	return open(path, indices)
}

func open(path string, indices []int) (r *Raster, err error) {
	godal.RegisterAll()

	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return nil, &geoerr.IOError{Op: "open", Path: path, Err: err}
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil {
			err = errors.Join(err, &geoerr.IOError{Op: "close", Path: path, Err: cerr})
		}
	}()

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, geoerr.Computationf("%s has no raster bands", path)
	}
	if indices == nil {
		for i := range bands {
			indices = append(indices, i+1)
		}
	}

	struc := bands[0].Structure()
	r = &Raster{
		Width:      struc.SizeX,
		Height:     struc.SizeY,
		Projection: ds.Projection(),
		DataType:   struc.DataType,
	}
	r.GeoTransform, err = ds.GeoTransform()
	if err != nil {
		logrus.Warnf("%s has no geotransform, using pixel coordinates", path)
		r.GeoTransform = identity
		err = nil
	}

	for _, idx := range indices {
		if idx < 1 || idx > len(bands) {
			return nil, geoerr.Computationf("band index %d out of range [1, %d]", idx, len(bands))
		}
		band, err := readBand(bands[idx-1])
		if err != nil {
			return nil, &geoerr.IOError{Op: "read band", Path: path, Err: err}
		}
		r.Bands = append(r.Bands, band)
	}
	logrus.Debugf("Read %d band(s) of %dx%d from %s", len(r.Bands), r.Width, r.Height, path)
	return r, r.Validate()
}

func readBand(gb godal.Band) (Band, error) {
	struc := gb.Structure()
	band := NewBand(struc.SizeX, struc.SizeY)
	if err := gb.Read(0, 0, band.Data, band.Width, band.Height); err != nil {
		return Band{}, err
	}
	band.NoData, band.HasNoData = gb.NoData()
	return band, nil
}

// Write stores the raster as a tiled, compressed GeoTIFF. Only .tif and .tiff
// paths are accepted.
func (r *Raster) Write(path string) (err error) {
	if err := checkRasterExt(path); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if len(r.Bands) == 0 {
		return geoerr.Computationf("nothing to write, raster has no bands")
	}
	godal.RegisterAll()

	ds, err := godal.Create(
		godal.GTiff,
		path,
		len(r.Bands),
		r.DataType,
		r.Width,
		r.Height,
		godal.CreationOption("TILED=YES", "COMPRESS=DEFLATE"),
	)
	if err != nil {
		return &geoerr.IOError{Op: "create", Path: path, Err: err}
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil {
			err = errors.Join(err, &geoerr.IOError{Op: "close", Path: path, Err: cerr})
		}
	}()

	if err := ds.SetGeoTransform(r.GeoTransform); err != nil {
		return &geoerr.IOError{Op: "set geotransform", Path: path, Err: err}
	}
	if r.Projection != "" {
		if err := ds.SetProjection(r.Projection); err != nil {
			return &geoerr.IOError{Op: "set projection", Path: path, Err: err}
		}
	}
	for i, gb := range ds.Bands() {
		band := r.Bands[i]
		if band.HasNoData {
			if err := gb.SetNoData(band.NoData); err != nil {
				return &geoerr.IOError{Op: "set nodata", Path: path, Err: err}
			}
		}
		if err := gb.Write(0, 0, band.Data, band.Width, band.Height); err != nil {
			return &geoerr.IOError{Op: "write band", Path: path, Err: err}
		}
	}
	logrus.Infof("Wrote %d band(s) to %s", len(r.Bands), path)
	return nil
}

func checkRasterExt(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".tif", ".tiff":
		return nil
	}
	return &geoerr.UnsupportedFormatError{Path: path, Ext: ext}
}

// Window converts a geographic envelope (minX, minY, maxX, maxY) into the
// pixel window covering it, clipped to the raster. ok is false when the
// envelope does not overlap the raster.
func (r *Raster) Window(bounds [4]float64) (x0, y0, w, h int, ok bool) {
	gt := r.GeoTransform
	if gt[2] != 0 || gt[4] != 0 || gt[1] == 0 || gt[5] == 0 {
		// Rotated grids: fall back to the whole raster, the mask sorts it out.
		return 0, 0, r.Width, r.Height, true
	}
	px1 := (bounds[0] - gt[0]) / gt[1]
	px2 := (bounds[2] - gt[0]) / gt[1]
	py1 := (bounds[1] - gt[3]) / gt[5]
	py2 := (bounds[3] - gt[3]) / gt[5]

	minX := int(math.Floor(math.Min(px1, px2)))
	maxX := int(math.Ceil(math.Max(px1, px2)))
	minY := int(math.Floor(math.Min(py1, py2)))
	maxY := int(math.Ceil(math.Max(py1, py2)))

	minX, maxX = clamp(minX, 0, r.Width), clamp(maxX, 0, r.Width)
	minY, maxY = clamp(minY, 0, r.Height), clamp(maxY, 0, r.Height)
	if maxX <= minX || maxY <= minY {
		return 0, 0, 0, 0, false
	}
	return minX, minY, maxX - minX, maxY - minY, true
}

// WindowTransform returns the geotransform of a window whose top-left pixel is
// (x0, y0).
func (r *Raster) WindowTransform(x0, y0 int) [6]float64 {
	gt := r.GeoTransform
	gt[0] = r.GeoTransform[0] + float64(x0)*r.GeoTransform[1] + float64(y0)*r.GeoTransform[2]
	gt[3] = r.GeoTransform[3] + float64(x0)*r.GeoTransform[4] + float64(y0)*r.GeoTransform[5]
	return gt
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
