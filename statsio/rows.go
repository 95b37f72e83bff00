// Package statsio exports S2 cell and zonal statistics tables as CSV or
// Parquet, chosen by file extension.
package statsio

import (
	"fmt"
	"path/filepath"
	"strings"

	"ndvi-tools/celltools"
	"ndvi-tools/geoerr"
	"ndvi-tools/vectortools"

	"github.com/sirupsen/logrus"
)

type CellRow struct {
	S2id  int64   `parquet:"s2_id"`
	Value float64 `parquet:"value"`
	Count int64   `parquet:"count"`
	Geom  string  `parquet:"geom"`
}

// ZonalRow is one feature of a zonal statistics table. Value is nil and Valid
// false when the polygon covered no valid cell.
type ZonalRow struct {
	FID   int64    `parquet:"fid"`
	Label string   `parquet:"label"`
	Value *float64 `parquet:"value,optional"`
	Valid bool     `parquet:"valid"`
}

func CellRows(cells []celltools.S2CellData) []CellRow {
	rows := make([]CellRow, len(cells))
	for i, c := range cells {
		rows[i] = CellRow{S2id: int64(c.Cell), Value: c.Data, Count: int64(c.Count), Geom: c.GeomString}
	}
	return rows
}

// ZonalRows extracts valueField from every feature, labelled with the value
// of labelField if given. Rows follow feature order; FID is the position.
func ZonalRows(fc *vectortools.FeatureCollection, valueField, labelField string) ([]ZonalRow, error) {
	if _, ok := fc.Field(valueField); !ok {
		return nil, geoerr.Computationf("layer %s has no field %s", fc.LayerName, valueField)
	}
	if labelField != "" {
		if _, ok := fc.Field(labelField); !ok {
			return nil, geoerr.Computationf("layer %s has no field %s", fc.LayerName, labelField)
		}
	}
	rows := make([]ZonalRow, fc.Len())
	for i, f := range fc.Features {
		rows[i].FID = int64(i)
		if labelField != "" && f.Attributes[labelField] != nil {
			rows[i].Label = fmt.Sprint(f.Attributes[labelField])
		}
		if v, ok := f.Attributes[valueField].(float64); ok {
			v := v
			rows[i].Value = &v
			rows[i].Valid = true
		}
	}
	return rows, nil
}

// CheckFormat returns an UnsupportedFormatError unless path ends in .csv or
// .parquet.
func CheckFormat(path string) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".parquet":
		return nil
	default:
		return &geoerr.UnsupportedFormatError{Path: path, Ext: ext}
	}
}

func isParquet(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".parquet"
}

func WriteCells(cells []celltools.S2CellData, path string) error {
	if err := CheckFormat(path); err != nil {
		return err
	}
	if isParquet(path) {
		return WriteCellsParquet(cells, path)
	}
	return WriteCellsCSV(cells, path)
}

func WriteZonal(rows []ZonalRow, path string) error {
	if err := CheckFormat(path); err != nil {
		return err
	}
	var err error
	if isParquet(path) {
		err = WriteZonalParquet(rows, path)
	} else {
		err = WriteZonalCSV(rows, path)
	}
	if err == nil {
		logrus.Infof("Wrote %d zonal rows to %s", len(rows), path)
	}
	return err
}
