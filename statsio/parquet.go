package statsio

import (
	"errors"
	"os"

	"ndvi-tools/celltools"
	"ndvi-tools/geoerr"

	"github.com/parquet-go/parquet-go"
	"github.com/sirupsen/logrus"
)

// rowGroupSize bounds how many rows are buffered before a row group is flushed.
const rowGroupSize = 64 * 1024

func WriteCellsParquet(cellData []celltools.S2CellData, path string) error {
	return writeParquet(CellRows(cellData), path)
}

func WriteZonalParquet(rows []ZonalRow, path string) error {
	return writeParquet(rows, path)
}

func writeParquet[T any](rows []T, path string) (err error) {
	output, err := os.Create(path)
	if err != nil {
		return &geoerr.IOError{Op: "create", Path: path, Err: err}
	}
	defer func() {
		if cerr := output.Close(); cerr != nil {
			err = errors.Join(err, &geoerr.IOError{Op: "close", Path: path, Err: cerr})
		}
	}()

	writer := parquet.NewGenericWriter[T](output, parquet.Compression(&parquet.Snappy))
	for start := 0; start < len(rows); start += rowGroupSize {
		end := min(start+rowGroupSize, len(rows))
		if _, err := writer.Write(rows[start:end]); err != nil {
			return &geoerr.IOError{Op: "write", Path: path, Err: err}
		}
		if err := writer.Flush(); err != nil {
			return &geoerr.IOError{Op: "flush", Path: path, Err: err}
		}
		logrus.Debugf("Flushed rows %d-%d to %s", start, end, path)
	}
	if err := writer.Close(); err != nil {
		return &geoerr.IOError{Op: "write footer", Path: path, Err: err}
	}
	return nil
}
