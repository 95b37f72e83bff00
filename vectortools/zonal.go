package vectortools

import (
	"errors"
	"fmt"
	"math"

	"ndvi-tools/aggfunc"
	"ndvi-tools/geoerr"
	"ndvi-tools/rastertools"

	"github.com/airbusgeo/godal"
	"github.com/sirupsen/logrus"
)

// DefaultField is the column name used when none is given.
const DefaultField = "NDVI_mean"

type zonalOpts struct {
	band       int
	allTouched bool
}

// ZonalOption configures ZonalStats.
type ZonalOption func(*zonalOpts)

// Band selects the 1-based raster band to aggregate. Defaults to 1.
func Band(n int) ZonalOption {
	return func(o *zonalOpts) { o.band = n }
}

// AllTouched counts every cell touched by a polygon instead of only the cells
// whose center falls inside it.
func AllTouched() ZonalOption {
	return func(o *zonalOpts) { o.allTouched = true }
}

// ZonalStats computes stat over the raster cells of each polygon, in feature
// order. Polygons are reprojected into the raster CRS when the two differ.
// Nodata and NaN cells are ignored, and a polygon without any valid cell gets
// NaN.
func ZonalStats(fc *FeatureCollection, r *rastertools.Raster, stat aggfunc.Statistic, opts ...ZonalOption) ([]float64, error) {
	if !stat.Valid() {
		return nil, &geoerr.UnsupportedStatisticError{Name: stat.String(), Supported: aggfunc.Names()}
	}
	o := zonalOpts{band: 1}
	for _, opt := range opts {
		opt(&o)
	}
	band, err := r.Band(o.band)
	if err != nil {
		return nil, err
	}

	work, err := inRasterCRS(fc, r)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(work.Features))
	var missing int
	for i, f := range work.Features {
		values, err := cellsUnder(f.Geometry, r, band, o.allTouched)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		v, ok := stat.Apply(values)
		if !ok {
			v = math.NaN()
			missing++
		}
		out[i] = v
	}
	logrus.WithFields(logrus.Fields{
		"stat":     stat.String(),
		"features": len(out),
		"missing":  missing,
	}).Info("Computed zonal statistics")
	return out, nil
}

func inRasterCRS(fc *FeatureCollection, r *rastertools.Raster) (*FeatureCollection, error) {
	if fc.CRS == "" || r.Projection == "" {
		logrus.Warn("Polygon layer or raster has no CRS, assuming they match")
		return fc, nil
	}
	same, err := SameCRS(fc.CRS, r.Projection)
	if err != nil {
		return nil, &geoerr.CRSMismatchError{From: crsName(fc.CRS), To: crsName(r.Projection), Err: err}
	}
	if same {
		return fc, nil
	}
	logrus.Infof("Reprojecting polygons from %s to %s", crsName(fc.CRS), crsName(r.Projection))
	return fc.Reproject(r.Projection)
}

// cellsUnder returns the valid band values of the cells selected by the
// polygon.
func cellsUnder(wkb []byte, r *rastertools.Raster, band rastertools.Band, allTouched bool) ([]float64, error) {
	if len(wkb) == 0 {
		return nil, nil
	}
	geom, err := godal.NewGeometryFromWKB(wkb, nil)
	if err != nil {
		return nil, err
	}
	defer geom.Close()
	if geom.Empty() {
		return nil, nil
	}
	bounds, err := geom.Bounds()
	if err != nil {
		return nil, err
	}
	x0, y0, w, h, ok := r.Window(bounds)
	if !ok {
		return nil, nil
	}

	mask, err := rasterizeMask(geom, r.WindowTransform(x0, y0), w, h, allTouched)
	if err != nil {
		return nil, err
	}
	var values []float64
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			if mask[row*w+col] == 0 {
				continue
			}
			i := (y0+row)*band.Width + x0 + col
			if band.Valid(i) {
				values = append(values, band.Data[i])
			}
		}
	}
	return values, nil
}

// rasterizeMask burns geom into an in-memory byte grid of w x h cells laid out
// by gt. Selected cells are 1.
func rasterizeMask(geom *godal.Geometry, gt [6]float64, w, h int, allTouched bool) (mask []byte, err error) {
	ds, err := godal.Create(godal.Memory, "", 1, godal.Byte, w, h)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, ds.Close())
	}()
	if err := ds.SetGeoTransform(gt); err != nil {
		return nil, err
	}

	opts := []godal.RasterizeGeometryOption{godal.Values(1)}
	if allTouched {
		opts = append(opts, godal.AllTouched())
	}
	if err := ds.RasterizeGeometry(geom, opts...); err != nil {
		return nil, err
	}
	mask = make([]byte, w*h)
	if err := ds.Bands()[0].Read(0, 0, mask, w, h); err != nil {
		return nil, err
	}
	return mask, nil
}

// ZonalStatsToField aggregates the band of the raster at rasterPath per
// polygon and stores the result in the column fieldName.
func (fc *FeatureCollection) ZonalStatsToField(rasterPath, statName, fieldName string, opts ...ZonalOption) error {
	stat, err := aggfunc.Parse(statName)
	if err != nil {
		return err
	}
	if fieldName == "" {
		fieldName = DefaultField
	}
	o := zonalOpts{band: 1}
	for _, opt := range opts {
		opt(&o)
	}
	r, err := rastertools.OpenBands(rasterPath, o.band)
	if err != nil {
		return err
	}
	// The raster now only holds the requested band.
	inner := make([]ZonalOption, 0, len(opts)+1)
	inner = append(inner, opts...)
	inner = append(inner, Band(1))
	values, err := ZonalStats(fc, r, stat, inner...)
	if err != nil {
		return err
	}
	if err := fc.AddColumn(fieldName, values); err != nil {
		return err
	}
	logrus.Infof("%s added to layer %s", fieldName, fc.LayerName)
	return nil
}
