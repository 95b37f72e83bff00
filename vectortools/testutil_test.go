package vectortools

import (
	"os"
	"path/filepath"
	"testing"

	"ndvi-tools/rastertools"

	"github.com/airbusgeo/godal"
)

// parcels are four 2x2 degree squares tiling the 4x4 degree fixture raster,
// a strip over its nodata cells and one square off the raster.
const parcelsGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"parcel": "nw", "area": 4},
     "geometry": {"type": "Polygon", "coordinates": [[[0,2],[2,2],[2,4],[0,4],[0,2]]]}},
    {"type": "Feature", "properties": {"parcel": "ne", "area": 4},
     "geometry": {"type": "Polygon", "coordinates": [[[2,2],[4,2],[4,4],[2,4],[2,2]]]}},
    {"type": "Feature", "properties": {"parcel": "sw", "area": 4},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[2,0],[2,2],[0,2],[0,0]]]}},
    {"type": "Feature", "properties": {"parcel": "se", "area": 4},
     "geometry": {"type": "Polygon", "coordinates": [[[2,0],[4,0],[4,2],[2,2],[2,0]]]}},
    {"type": "Feature", "properties": {"parcel": "nodata", "area": 2},
     "geometry": {"type": "Polygon", "coordinates": [[[3,0],[4,0],[4,2],[3,2],[3,0]]]}},
    {"type": "Feature", "properties": {"parcel": "away", "area": 4},
     "geometry": {"type": "Polygon", "coordinates": [[[10,10],[12,10],[12,12],[10,12],[10,10]]]}}
  ]
}`

const fixtureNoData = -9999.0

func writeFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func openParcels(t testing.TB) *FeatureCollection {
	t.Helper()
	fc, err := Open(writeFile(t, "parcels.geojson", parcelsGeoJSON))
	if err != nil {
		t.Fatal(err)
	}
	return fc
}

func epsgWKT(t testing.TB, code int) string {
	t.Helper()
	godal.RegisterAll()
	sr, err := godal.NewSpatialRefFromEPSG(code)
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()
	wkt, err := sr.WKT()
	if err != nil {
		t.Fatal(err)
	}
	return wkt
}

// quadrantRaster is a 4x4 one-degree grid over (0,0)-(4,4) in EPSG:4326 whose
// quadrants hold constant values: nw=0.2, ne=0.4, sw=0.6, and se is nodata
// except for its top-left cell, which holds 0.8.
func quadrantRaster(t testing.TB) *rastertools.Raster {
	t.Helper()
	nd := fixtureNoData
	data := []float64{
		0.2, 0.2, 0.4, 0.4,
		0.2, 0.2, 0.4, 0.4,
		0.6, 0.6, 0.8, nd,
		0.6, 0.6, nd, nd,
	}
	return &rastertools.Raster{
		Width:        4,
		Height:       4,
		GeoTransform: [6]float64{0, 1, 0, 4, 0, -1},
		Projection:   epsgWKT(t, 4326),
		DataType:     godal.Float32,
		Bands: []rastertools.Band{{
			Width: 4, Height: 4, Data: data, NoData: nd, HasNoData: true,
		}},
	}
}
