package statsio

import (
	"encoding/csv"
	"errors"
	"os"
	"strconv"

	"ndvi-tools/celltools"
	"ndvi-tools/geoerr"

	"github.com/sirupsen/logrus"
)

func WriteCellsCSV(cellData []celltools.S2CellData, path string) error {
	records := make([][]string, 0, len(cellData)+1)
	records = append(records, []string{"s2_id", "value", "count", "geom"})
	for i, cell := range cellData {
		if i%10000 == 0 && i > 0 {
			logrus.Infof("Writing cell %d", i)
		}
		records = append(records, []string{
			strconv.FormatInt(int64(cell.Cell), 10),
			formatFloat(cell.Data),
			strconv.Itoa(cell.Count),
			cell.GeomString,
		})
	}
	return writeCSV(records, path)
}

// WriteZonalCSV writes fid,label,value,valid rows; missing values are left
// empty.
func WriteZonalCSV(rows []ZonalRow, path string) error {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, []string{"fid", "label", "value", "valid"})
	for _, r := range rows {
		value := ""
		if r.Value != nil {
			value = formatFloat(*r.Value)
		}
		records = append(records, []string{strconv.FormatInt(r.FID, 10), r.Label, value, strconv.FormatBool(r.Valid)})
	}
	return writeCSV(records, path)
}

func writeCSV(records [][]string, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return &geoerr.IOError{Op: "create", Path: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, &geoerr.IOError{Op: "close", Path: path, Err: cerr})
		}
	}()

	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		return &geoerr.IOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Sync(); err != nil {
		return &geoerr.IOError{Op: "sync", Path: path, Err: err}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
