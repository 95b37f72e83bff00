package rastertools

import (
	"math"

	"ndvi-tools/geoerr"

	"github.com/airbusgeo/godal"
	"github.com/sirupsen/logrus"
)

const (
	// Epsilon is added to the NDVI denominator so that cells where both bands
	// are zero evaluate to 0 instead of NaN.
	Epsilon = 1e-10

	// NDVINoData marks output cells where either input was nodata. It is
	// outside the [-1, 1] range NDVI can take.
	NDVINoData = -9999.0

	DefaultNIRBand = 4
	DefaultRedBand = 3
)

// NDVI computes (nir - red) / (nir + red + Epsilon) cell by cell, and 0 where
// |nir + red| <= Epsilon. Values are rounded to float32 precision since that
// is how they are stored. No clamping is applied.
func NDVI(nir, red Band) (Band, error) {
	if !nir.sameShape(red) {
		return Band{}, geoerr.Computationf("band shape mismatch: nir is %dx%d, red is %dx%d",
			nir.Width, nir.Height, red.Width, red.Height)
	}
	if len(nir.Data) != nir.Width*nir.Height || len(red.Data) != red.Width*red.Height {
		return Band{}, geoerr.Computationf("band data length does not match %dx%d", nir.Width, nir.Height)
	}

	out := NewBand(nir.Width, nir.Height)
	masked := nir.HasNoData || red.HasNoData
	if masked {
		out.NoData, out.HasNoData = NDVINoData, true
	}
	for i := range out.Data {
		if !nir.Valid(i) || !red.Valid(i) {
			out.Data[i] = NDVINoData
			continue
		}
		n, r := nir.Data[i], red.Data[i]
		if math.Abs(n+r) <= Epsilon {
			// Includes n+r == -Epsilon, where the denominator is exactly 0.
			out.Data[i] = 0
			continue
		}
		out.Data[i] = float64(float32((n - r) / (n + r + Epsilon)))
	}
	if !masked {
		// NaN inputs were replaced with the sentinel, so it must be declared.
		for i := range out.Data {
			if out.Data[i] == NDVINoData {
				out.NoData, out.HasNoData = NDVINoData, true
				break
			}
		}
	}
	return out, nil
}

// NDVI derives a single-band float32 raster from the given 1-based NIR and red
// bands. The result shares the source geotransform and projection.
func (r *Raster) NDVI(nirIndex, redIndex int) (*Raster, error) {
	nir, err := r.Band(nirIndex)
	if err != nil {
		return nil, err
	}
	red, err := r.Band(redIndex)
	if err != nil {
		return nil, err
	}
	band, err := NDVI(nir, red)
	if err != nil {
		return nil, err
	}
	return &Raster{
		Width:        r.Width,
		Height:       r.Height,
		GeoTransform: r.GeoTransform,
		Projection:   r.Projection,
		DataType:     godal.Float32,
		Bands:        []Band{band},
	}, nil
}

// ComputeNDVI reads the NIR and red bands of src, computes NDVI and writes it
// to dst as a single-band float32 GeoTIFF.
func ComputeNDVI(src, dst string, nirIndex, redIndex int) (*Raster, error) {
	if err := checkRasterExt(dst); err != nil {
		return nil, err
	}
	in, err := OpenBands(src, nirIndex, redIndex)
	if err != nil {
		return nil, err
	}
	out, err := in.NDVI(1, 2)
	if err != nil {
		return nil, err
	}
	if err := out.Write(dst); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"src": src,
		"nir": nirIndex,
		"red": redIndex,
	}).Infof("NDVI written to %s", dst)
	return out, nil
}
