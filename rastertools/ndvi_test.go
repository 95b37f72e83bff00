package rastertools

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"ndvi-tools/geoerr"

	"github.com/airbusgeo/godal"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bandOf(w, h int, data ...float64) Band {
	return Band{Width: w, Height: h, Data: data}
}

func TestNDVIConstantBands(t *testing.T) {
	nir := bandOf(2, 2, 0.8, 0.8, 0.8, 0.8)
	red := bandOf(2, 2, 0.2, 0.2, 0.2, 0.2)

	got, err := NDVI(nir, red)
	require.NoError(t, err)

	want := []float64{0.6, 0.6, 0.6, 0.6}
	if diff := cmp.Diff(want, got.Data, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("NDVI mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, got.HasNoData)
}

func TestNDVIZeroBands(t *testing.T) {
	got, err := NDVI(bandOf(1, 1, 0), bandOf(1, 1, 0))
	require.NoError(t, err)
	assert.False(t, math.IsNaN(got.Data[0]))
	assert.InDelta(t, 0, got.Data[0], 1e-9)
}

func TestNDVIDegenerateDenominator(t *testing.T) {
	nir := bandOf(3, 1, -Epsilon, 1, Epsilon/2)
	red := bandOf(3, 1, 0, -1, 0)
	got, err := NDVI(nir, red)
	require.NoError(t, err)
	for i, v := range got.Data {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "cell %d: %v", i, v)
		assert.Equal(t, 0.0, v, "cell %d", i)
	}
}

func TestNDVISign(t *testing.T) {
	tests := []struct {
		name     string
		nir, red float64
		positive bool
	}{
		{"nir above red", 0.5, 0.1, true},
		{"nir above zero red", 3, 0, true},
		{"large integers", 4000, 1200, true},
		{"red above nir", 0.1, 0.5, false},
		{"red above zero nir", 0, 7, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NDVI(bandOf(1, 1, tt.nir), bandOf(1, 1, tt.red))
			require.NoError(t, err)
			if tt.positive {
				assert.Greater(t, got.Data[0], 0.0)
			} else {
				assert.Less(t, got.Data[0], 0.0)
			}
			assert.LessOrEqual(t, math.Abs(got.Data[0]), 1.0)
		})
	}
}

func TestNDVIShapeMismatch(t *testing.T) {
	_, err := NDVI(bandOf(2, 1, 1, 1), bandOf(1, 2, 1, 1))
	require.Error(t, err)

	var ce *geoerr.ComputationError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Msg, "2x1")
	assert.Contains(t, ce.Msg, "1x2")
}

func TestNDVINoData(t *testing.T) {
	nir := bandOf(3, 1, 0.9, 0, math.NaN())
	nir.NoData, nir.HasNoData = 0, true
	red := bandOf(3, 1, 0.1, 0.1, 0.1)

	got, err := NDVI(nir, red)
	require.NoError(t, err)
	assert.True(t, got.HasNoData)
	assert.Equal(t, NDVINoData, got.NoData)
	assert.InDelta(t, 0.8, got.Data[0], 1e-6)
	assert.Equal(t, NDVINoData, got.Data[1])
	assert.Equal(t, NDVINoData, got.Data[2])
	assert.False(t, got.Valid(1))
}

func TestRasterNDVIBandIndex(t *testing.T) {
	r := &Raster{Width: 1, Height: 1, Bands: []Band{bandOf(1, 1, 1), bandOf(1, 1, 2)}}
	for _, idx := range [][2]int{{0, 1}, {1, 3}, {4, 3}} {
		_, err := r.NDVI(idx[0], idx[1])
		assert.True(t, errors.Is(err, geoerr.ErrComputation), "indices %v", idx)
	}
}

func TestRasterNDVIKeepsGeoreference(t *testing.T) {
	r := &Raster{
		Width:        2,
		Height:       1,
		GeoTransform: fixtureTransform,
		Projection:   "LOCAL_CS[\"test\"]",
		DataType:     godal.UInt16,
		Bands: []Band{
			bandOf(2, 1, 10, 20),
			bandOf(2, 1, 30, 40),
			bandOf(2, 1, 50, 60),
			bandOf(2, 1, 70, 80),
		},
	}
	out, err := r.NDVI(DefaultNIRBand, DefaultRedBand)
	require.NoError(t, err)
	assert.Len(t, out.Bands, 1)
	assert.Equal(t, godal.Float32, out.DataType)
	assert.Equal(t, r.GeoTransform, out.GeoTransform)
	assert.Equal(t, r.Projection, out.Projection)
	assert.InDelta(t, 20.0/120.0, out.Bands[0].Data[0], 1e-6)
}

func TestComputeNDVIRoundTrip(t *testing.T) {
	const w, h = 3, 2
	src := setUpRaster(t, w, h, nil,
		constant(w*h, 0.05),
		constant(w*h, 0.07),
		[]float64{0.2, 0.2, 0.1, 0, 0.3, 0.6},
		[]float64{0.8, 0.6, 0.1, 0, 0.9, 0.2},
	)
	dst := filepath.Join(t.TempDir(), "ndvi.tif")

	computed, err := ComputeNDVI(src, dst, DefaultNIRBand, DefaultRedBand)
	require.NoError(t, err)

	back, err := Open(dst)
	require.NoError(t, err)
	require.Len(t, back.Bands, 1)
	assert.Equal(t, godal.Float32, back.DataType)
	assert.Equal(t, fixtureTransform, back.GeoTransform)
	assert.True(t, sameSpatialRef(t, computed.Projection, back.Projection))

	if diff := cmp.Diff(computed.Bands[0].Data, back.Bands[0].Data, cmpopts.EquateApprox(0, 1e-7)); diff != "" {
		t.Errorf("round trip mismatch (-written +read):\n%s", diff)
	}
	assert.InDelta(t, 0.6, back.Bands[0].Data[0], 1e-6)
	assert.InDelta(t, 0, back.Bands[0].Data[3], 1e-9)
	assert.Less(t, back.Bands[0].Data[5], 0.0)
}

func TestComputeNDVIBadBand(t *testing.T) {
	src := setUpRaster(t, 1, 1, nil, []float64{1}, []float64{2})
	_, err := ComputeNDVI(src, filepath.Join(t.TempDir(), "ndvi.tif"), 4, 3)
	assert.True(t, errors.Is(err, geoerr.ErrComputation))
}

func TestComputeNDVIMissingInput(t *testing.T) {
	_, err := ComputeNDVI(filepath.Join(t.TempDir(), "nope.tif"), filepath.Join(t.TempDir(), "ndvi.tif"), 4, 3)
	assert.True(t, errors.Is(err, geoerr.ErrIO))
}

func TestComputeNDVIBadExtension(t *testing.T) {
	src := setUpRaster(t, 1, 1, nil, []float64{1}, []float64{2})
	dst := filepath.Join(t.TempDir(), "ndvi.png")
	_, err := ComputeNDVI(src, dst, 2, 1)
	assert.True(t, errors.Is(err, geoerr.ErrUnsupportedFormat))
	assert.NoFileExists(t, dst)
}
