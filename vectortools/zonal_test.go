package vectortools

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"ndvi-tools/aggfunc"
	"ndvi-tools/geoerr"
	"ndvi-tools/rastertools"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZonalStats(t *testing.T) {
	fc := openParcels(t)
	require.Equal(t, 6, fc.Len())
	r := quadrantRaster(t)

	tests := []struct {
		stat aggfunc.Statistic
		want []float64
	}{
		{aggfunc.Mean, []float64{0.2, 0.4, 0.6, 0.8}},
		{aggfunc.Min, []float64{0.2, 0.4, 0.6, 0.8}},
		{aggfunc.Max, []float64{0.2, 0.4, 0.6, 0.8}},
		{aggfunc.Sum, []float64{0.8, 1.6, 2.4, 0.8}},
	}
	for _, tt := range tests {
		t.Run(tt.stat.String(), func(t *testing.T) {
			got, err := ZonalStats(fc, r, tt.stat)
			require.NoError(t, err)
			require.Len(t, got, 6)
			assert.InDeltaSlice(t, tt.want, got[:4], 1e-9)
			// nodata-only strip and the parcel off the raster
			assert.True(t, math.IsNaN(got[4]), "nodata strip: %v", got[4])
			assert.True(t, math.IsNaN(got[5]), "off-raster parcel: %v", got[5])
		})
	}
}

func TestZonalStatsConstantRegion(t *testing.T) {
	fc := openParcels(t)
	r := quadrantRaster(t)
	for i := range r.Bands[0].Data {
		r.Bands[0].Data[i] = 0.37
	}
	got, err := ZonalStats(fc, r, aggfunc.Mean)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		assert.InDelta(t, 0.37, got[i], 1e-12, "feature %d", i)
	}
}

func TestZonalStatsAllTouched(t *testing.T) {
	// A thin polygon crossing the middle of cells (0,0) and (1,0) misses every
	// cell center.
	fc := &FeatureCollection{
		CRS:      epsgWKT(t, 4326),
		Features: []Feature{{Geometry: wkb(t, "POLYGON((0.1 3.6,1.9 3.6,1.9 3.7,0.1 3.7,0.1 3.6))")}},
	}
	r := quadrantRaster(t)

	centers, err := ZonalStats(fc, r, aggfunc.Sum)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(centers[0]))

	touched, err := ZonalStats(fc, r, aggfunc.Sum, AllTouched())
	require.NoError(t, err)
	assert.InDelta(t, 0.4, touched[0], 1e-9)
}

func TestZonalStatsReprojects(t *testing.T) {
	// 100 km cells in web mercator; the parcels are in lon/lat.
	data := []float64{
		1, 1, 1, 1,
		1, 1, 1, 1,
		5, 5, 1, 1,
		5, 5, 1, 1,
	}
	r := &rastertools.Raster{
		Width:        4,
		Height:       4,
		GeoTransform: [6]float64{0, 100000, 0, 400000, 0, -100000},
		Projection:   epsgWKT(t, 3857),
		DataType:     godal.Float32,
		Bands:        []rastertools.Band{{Width: 4, Height: 4, Data: data}},
	}
	fc := &FeatureCollection{
		CRS:      epsgWKT(t, 4326),
		Features: []Feature{{Geometry: wkb(t, "POLYGON((0.1 0.1,1.7 0.1,1.7 1.7,0.1 1.7,0.1 0.1))")}},
	}
	before := append([]byte(nil), fc.Features[0].Geometry...)

	got, err := ZonalStats(fc, r, aggfunc.Mean)
	require.NoError(t, err)
	assert.InDelta(t, 5, got[0], 1e-9)
	assert.Equal(t, before, fc.Features[0].Geometry, "input geometries must not change")
}

func TestZonalStatsBadBand(t *testing.T) {
	_, err := ZonalStats(openParcels(t), quadrantRaster(t), aggfunc.Mean, Band(2))
	assert.True(t, errors.Is(err, geoerr.ErrComputation))
}

func TestZonalStatsInvalidStatistic(t *testing.T) {
	_, err := ZonalStats(openParcels(t), quadrantRaster(t), aggfunc.Sum+1)
	assert.True(t, errors.Is(err, geoerr.ErrUnsupportedStatistic))
}

func TestZonalStatsToFieldKeepsCallerOptions(t *testing.T) {
	rasterPath := filepath.Join(t.TempDir(), "ndvi.tif")
	require.NoError(t, quadrantRaster(t).Write(rasterPath))

	opts := make([]ZonalOption, 1, 2)
	opts[0] = AllTouched()
	fc := openParcels(t)
	require.NoError(t, fc.ZonalStatsToField(rasterPath, "mean", "", opts...))

	// Band(1) must not land in the spare capacity of the caller's slice.
	extended := opts[:2]
	assert.Nil(t, extended[1])
}

func TestZonalStatsToField(t *testing.T) {
	rasterPath := filepath.Join(t.TempDir(), "ndvi.tif")
	require.NoError(t, quadrantRaster(t).Write(rasterPath))

	fc := openParcels(t)
	require.NoError(t, fc.ZonalStatsToField(rasterPath, "mean", ""))

	field, ok := fc.Field(DefaultField)
	require.True(t, ok)
	assert.Equal(t, godal.FTReal, field.Type)

	values := fc.Values(DefaultField)
	require.Len(t, values, 6)
	// stored as float32 on disk
	assert.InDelta(t, 0.2, values[0], 1e-6)
	assert.InDelta(t, 0.8, values[3], 1e-6)
	assert.Nil(t, values[4])
	assert.Nil(t, values[5])
	assert.Equal(t, []any{"nw", "ne", "sw", "se", "nodata", "away"}, fc.Values("parcel"))
}

func TestZonalStatsToFieldUnsupportedStatistic(t *testing.T) {
	fc := openParcels(t)
	err := fc.ZonalStatsToField("does-not-matter.tif", "median", "NDVI_median")

	var se *geoerr.UnsupportedStatisticError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "median", se.Name)
	_, ok := fc.Field("NDVI_median")
	assert.False(t, ok)
}

func TestZonalStatsToFieldMissingRaster(t *testing.T) {
	fc := openParcels(t)
	err := fc.ZonalStatsToField(filepath.Join(t.TempDir(), "missing.tif"), "mean", "")
	assert.True(t, errors.Is(err, geoerr.ErrIO))
}

func wkb(t testing.TB, wkt string) []byte {
	t.Helper()
	g, err := godal.NewGeometryFromWKT(wkt, nil)
	require.NoError(t, err)
	defer g.Close()
	b, err := g.WKB()
	require.NoError(t, err)
	return b
}
