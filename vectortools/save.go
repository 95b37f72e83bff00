package vectortools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ndvi-tools/geoerr"

	"github.com/airbusgeo/godal"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Format is an output vector format selected by file extension.
type Format struct {
	Driver godal.DriverName
	// Sidecars lists the extensions written next to the main file.
	Sidecars []string
}

// flatGeobuf has no constant in godal; CreateVector looks it up by name.
const flatGeobuf godal.DriverName = "FlatGeobuf"

// maxShapefileField is the dBase limit on field name length.
const maxShapefileField = 10

var formats = map[string]Format{
	".shp":     {Driver: godal.Shapefile, Sidecars: []string{".shx", ".dbf", ".prj", ".cpg"}},
	".gpkg":    {Driver: godal.GeoPackage},
	".geojson": {Driver: godal.GeoJSON},
	".json":    {Driver: godal.GeoJSON},
	".fgb":     {Driver: flatGeobuf},
}

// FormatFor returns the output format for path, or an UnsupportedFormatError.
func FormatFor(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := formats[ext]
	if !ok {
		return Format{}, &geoerr.UnsupportedFormatError{Path: path, Ext: ext}
	}
	return f, nil
}

// CheckFieldName reports whether a column called name can be written in this
// format. Shapefile field names are limited to 10 characters.
func (f Format) CheckFieldName(name string) error {
	if f.Driver == godal.Shapefile && len(name) > maxShapefileField {
		return geoerr.Computationf("field name %s is longer than %d characters, the shapefile limit", name, maxShapefileField)
	}
	return nil
}

// Save writes the collection to path in the format chosen by its extension,
// replacing any existing dataset. The layer is first written under a temporary
// name in the same directory and renamed into place once complete.
func (fc *FeatureCollection) Save(path string) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	for _, f := range fc.Fields {
		if err := format.CheckFieldName(f.Name); err != nil {
			return err
		}
	}
	ext := filepath.Ext(path)
	tmp := filepath.Join(filepath.Dir(path), "."+uuid.NewString()+ext)

	if err := fc.write(tmp, format); err != nil {
		removeDataset(tmp, format)
		return err
	}
	removeDataset(path, format)
	if err := renameDataset(tmp, path, format); err != nil {
		removeDataset(tmp, format)
		return &geoerr.IOError{Op: "rename", Path: path, Err: err}
	}
	logrus.Infof("Saved %d features to %s", len(fc.Features), path)
	return nil
}

func (fc *FeatureCollection) write(path string, format Format) (err error) {
	godal.RegisterAll()

	ds, err := godal.CreateVector(format.Driver, path)
	if err != nil {
		return &geoerr.IOError{Op: "create", Path: path, Err: err}
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil {
			err = errors.Join(err, &geoerr.IOError{Op: "close", Path: path, Err: cerr})
		}
	}()

	var sr *godal.SpatialRef
	if fc.CRS != "" {
		if sr, err = godal.NewSpatialRefFromWKT(fc.CRS); err != nil {
			return &geoerr.IOError{Op: "parse crs", Path: path, Err: err}
		}
		defer sr.Close()
	}

	opts := make([]godal.CreateLayerOption, 0, len(fc.Fields))
	for _, f := range fc.Fields {
		opts = append(opts, godal.NewFieldDefinition(f.Name, f.Type))
	}
	name := fc.LayerName
	if name == "" || format.Driver == godal.Shapefile {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	layer, err := ds.CreateLayer(name, sr, fc.GeometryType, opts...)
	if err != nil {
		return &geoerr.IOError{Op: "create layer", Path: path, Err: err}
	}

	multi := fc.GeometryType == godal.GTMultiPolygon
	for i, f := range fc.Features {
		if err := writeFeature(layer, sr, f, multi); err != nil {
			return &geoerr.IOError{Op: fmt.Sprintf("write feature %d", i), Path: path, Err: err}
		}
	}
	return nil
}

// writeFeature appends f to the layer. With multi set, polygons are promoted
// to multipolygons to match the layer type.
func writeFeature(layer godal.Layer, sr *godal.SpatialRef, f Feature, multi bool) error {
	feat, err := layer.NewFeature(nil)
	if err != nil {
		return err
	}
	defer feat.Close()

	if len(f.Geometry) > 0 {
		geom, err := godal.NewGeometryFromWKB(f.Geometry, sr)
		if err != nil {
			return err
		}
		if multi {
			// ForceToMultiPolygon takes ownership of the input geometry.
			geom = geom.ForceToMultiPolygon()
		}
		defer geom.Close()
		if err := feat.SetGeometry(geom); err != nil {
			return fmt.Errorf("set geometry: %w", err)
		}
	}

	fields := feat.Fields()
	for name, value := range f.Attributes {
		if value == nil {
			continue
		}
		fld, ok := fields[name]
		if !ok {
			logrus.Debugf("Field %s not present in output layer, skipping", name)
			continue
		}
		if err := feat.SetFieldValue(fld, asFieldType(fld.Type(), value)); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return layer.CreateFeature(feat)
}

// asFieldType converts an in-memory value to the Go type godal expects for a
// field of type ftype. Drivers may narrow the declared type, e.g. Integer64
// to Integer.
func asFieldType(ftype godal.FieldType, value any) any {
	switch ftype {
	case godal.FTInt:
		switch v := value.(type) {
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	case godal.FTInt64:
		switch v := value.(type) {
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	case godal.FTReal:
		switch v := value.(type) {
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
	case godal.FTString:
		if _, ok := value.(string); !ok {
			return fmt.Sprint(value)
		}
	}
	return value
}

func datasetFiles(path string, format Format) []string {
	files := []string{path}
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, ext := range format.Sidecars {
		files = append(files, base+ext)
	}
	return files
}

func removeDataset(path string, format Format) {
	for _, f := range datasetFiles(path, format) {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			logrus.Warnf("Could not remove %s: %v", f, err)
		}
	}
}

func renameDataset(from, to string, format Format) error {
	src := datasetFiles(from, format)
	dst := datasetFiles(to, format)
	for i := range src {
		if err := os.Rename(src[i], dst[i]); err != nil {
			if errors.Is(err, os.ErrNotExist) && i > 0 {
				continue
			}
			return err
		}
	}
	return nil
}
