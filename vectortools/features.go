// Package vectortools loads polygon layers into memory, aggregates raster
// values per polygon and writes the augmented layer back out.
package vectortools

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"ndvi-tools/geoerr"

	"github.com/airbusgeo/godal"
	"github.com/sirupsen/logrus"
)

// Field is one column of the attribute table.
type Field struct {
	Name string
	Type godal.FieldType
}

// Feature is a geometry stored as WKB together with its attributes. A nil
// Geometry is a null or empty geometry and a nil attribute value is a missing
// value.
type Feature struct {
	Geometry   []byte
	Attributes map[string]any
}

// FeatureCollection is an in-memory copy of a vector layer.
type FeatureCollection struct {
	LayerName    string
	GeometryType godal.GeometryType
	// CRS is the layer spatial reference as WKT, empty if the layer has none.
	CRS      string
	Fields   []Field
	Features []Feature
}

func (fc *FeatureCollection) Len() int { return len(fc.Features) }

// Field returns the schema entry for name.
func (fc *FeatureCollection) Field(name string) (Field, bool) {
	for _, f := range fc.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Values returns the column for name in feature order.
func (fc *FeatureCollection) Values(name string) []any {
	out := make([]any, len(fc.Features))
	for i, f := range fc.Features {
		out[i] = f.Attributes[name]
	}
	return out
}

// AddColumn appends a real-valued column, or overwrites it if a column of that
// name already exists. NaN values are stored as missing.
func (fc *FeatureCollection) AddColumn(name string, values []float64) error {
	if len(values) != len(fc.Features) {
		return geoerr.Computationf("column %s has %d values for %d features", name, len(values), len(fc.Features))
	}
	replaced := false
	for i := range fc.Fields {
		if fc.Fields[i].Name == name {
			fc.Fields[i].Type = godal.FTReal
			replaced = true
		}
	}
	if !replaced {
		fc.Fields = append(fc.Fields, Field{Name: name, Type: godal.FTReal})
	}
	for i, v := range values {
		if fc.Features[i].Attributes == nil {
			fc.Features[i].Attributes = map[string]any{}
		}
		if isMissing(v) {
			fc.Features[i].Attributes[name] = nil
		} else {
			fc.Features[i].Attributes[name] = v
		}
	}
	return nil
}

// Clone copies the collection deeply enough that geometries and attributes of
// the copy can be replaced without touching the original.
func (fc *FeatureCollection) Clone() *FeatureCollection {
	out := *fc
	out.Fields = append([]Field(nil), fc.Fields...)
	out.Features = make([]Feature, len(fc.Features))
	for i, f := range fc.Features {
		attrs := make(map[string]any, len(f.Attributes))
		for k, v := range f.Attributes {
			attrs[k] = v
		}
		out.Features[i] = Feature{
			Geometry:   append([]byte(nil), f.Geometry...),
			Attributes: attrs,
		}
	}
	return &out
}

// Open reads the first layer of the vector dataset at path.
func Open(path string) (fc *FeatureCollection, err error) {
	godal.RegisterAll()

	ds, err := godal.Open(path, godal.VectorOnly())
	if err != nil {
		return nil, &geoerr.IOError{Op: "open", Path: path, Err: err}
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil {
			err = errors.Join(err, &geoerr.IOError{Op: "close", Path: path, Err: cerr})
		}
	}()

	layers := ds.Layers()
	if len(layers) == 0 {
		return nil, &geoerr.IOError{Op: "read", Path: path, Err: errors.New("no vector layer")}
	}
	if len(layers) > 1 {
		logrus.Warnf("%s has %d layers, using %s", path, len(layers), layers[0].Name())
	}
	layer := layers[0]

	fc = &FeatureCollection{LayerName: layer.Name(), GeometryType: godal.GTUnknown}
	if sr := layer.SpatialRef(); sr != nil {
		if wkt, err := sr.WKT(); err == nil {
			fc.CRS = wkt
		}
	}

	schema := map[string]godal.FieldType{}
	layer.ResetReading()
	for feat := layer.NextFeature(); feat != nil; feat = layer.NextFeature() {
		f, err := readFeature(feat, schema)
		feat.Close()
		if err != nil {
			return nil, &geoerr.IOError{Op: "read feature", Path: path, Err: err}
		}
		fc.Features = append(fc.Features, f)
	}
	fc.Fields = sortedSchema(schema)
	fc.GeometryType = commonGeometryType(fc.Features)

	logrus.WithFields(logrus.Fields{
		"layer":    fc.LayerName,
		"features": len(fc.Features),
		"fields":   len(fc.Fields),
	}).Debugf("Read vector layer from %s", path)
	return fc, nil
}

func readFeature(feat *godal.Feature, schema map[string]godal.FieldType) (Feature, error) {
	f := Feature{Attributes: map[string]any{}}
	// Geometry never returns nil; a null geometry reports as empty. Both are
	// kept as a nil Geometry.
	if geom := feat.Geometry(); !geom.Empty() {
		wkb, err := geom.WKB()
		if err != nil {
			return Feature{}, fmt.Errorf("encode geometry: %w", err)
		}
		f.Geometry = wkb
	}
	for name, fld := range feat.Fields() {
		ftype, value := fieldValue(fld)
		schema[name] = ftype
		f.Attributes[name] = value
	}
	return f, nil
}

// fieldValue maps a godal field to the types kept in memory: int64, float64
// and string. Dates, binaries and lists are kept in their string form.
func fieldValue(fld godal.Field) (godal.FieldType, any) {
	switch fld.Type() {
	case godal.FTInt, godal.FTInt64:
		if !fld.IsSet() {
			return godal.FTInt64, nil
		}
		return godal.FTInt64, fld.Int()
	case godal.FTReal:
		if !fld.IsSet() {
			return godal.FTReal, nil
		}
		return godal.FTReal, fld.Float()
	default:
		if !fld.IsSet() {
			return godal.FTString, nil
		}
		return godal.FTString, fld.String()
	}
}

func sortedSchema(schema map[string]godal.FieldType) []Field {
	fields := make([]Field, 0, len(schema))
	for name, ftype := range schema {
		fields = append(fields, Field{Name: name, Type: ftype})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields
}

func commonGeometryType(features []Feature) godal.GeometryType {
	gtype := godal.GTUnknown
	for _, f := range features {
		if len(f.Geometry) == 0 {
			continue
		}
		geom, err := godal.NewGeometryFromWKB(f.Geometry, nil)
		if err != nil {
			continue
		}
		t := geom.Type()
		geom.Close()
		switch {
		case gtype == godal.GTUnknown:
			gtype = t
		case gtype != t && isAreal(gtype) && isAreal(t):
			gtype = godal.GTMultiPolygon
		case gtype != t:
			return godal.GTUnknown
		}
	}
	return gtype
}

func isAreal(t godal.GeometryType) bool {
	return t == godal.GTPolygon || t == godal.GTMultiPolygon
}

func isMissing(v float64) bool {
	return math.IsNaN(v)
}
