package rastertools

import (
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
)

// utm10 is the projection every fixture raster is written in.
const utm10 = 32610

var fixtureTransform = [6]float64{500000, 10, 0, 4900000, 0, -10}

// setUpRaster writes a multi-band float32 GeoTIFF whose band i (1-based)
// holds bands[i-1], and returns its path.
func setUpRaster(t testing.TB, width, height int, noData *float64, bands ...[]float64) string {
	t.Helper()
	godal.RegisterAll()

	path := filepath.Join(t.TempDir(), "fixture.tif")
	ds, err := godal.Create(
		godal.GTiff,
		path,
		len(bands),
		godal.Float32,
		width,
		height,
		godal.CreationOption("TILED=YES", "BLOCKXSIZE=16", "BLOCKYSIZE=16"),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.SetGeoTransform(fixtureTransform); err != nil {
		t.Fatal(err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(utm10)
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()
	wkt, err := sr.WKT()
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.SetProjection(wkt); err != nil {
		t.Fatal(err)
	}
	for i, b := range ds.Bands() {
		if noData != nil {
			if err := b.SetNoData(*noData); err != nil {
				t.Fatal(err)
			}
		}
		if err := b.Write(0, 0, bands[i], width, height); err != nil {
			t.Fatal(err)
		}
	}
	if err := ds.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func sameSpatialRef(t testing.TB, a, b string) bool {
	t.Helper()
	srA, err := godal.NewSpatialRefFromWKT(a)
	if err != nil {
		t.Fatal(err)
	}
	defer srA.Close()
	srB, err := godal.NewSpatialRefFromWKT(b)
	if err != nil {
		t.Fatal(err)
	}
	defer srB.Close()
	return srA.IsSame(srB)
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
