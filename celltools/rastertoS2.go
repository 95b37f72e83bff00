// Package celltools summarises a raster band over S2 cells.
package celltools

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"ndvi-tools/aggfunc"
	"ndvi-tools/geoerr"

	"github.com/airbusgeo/godal"
	"github.com/golang/geo/s2"
	"github.com/sirupsen/logrus"
)

type Point struct {
	Lat float64
	Lng float64
}

type ConfigOpts struct {
	NumWorkers int
	S2Lvl      int
	Stat       aggfunc.Statistic
	// Band is the 1-based band to index, 1 if unset.
	Band int
}

type S2CellData struct {
	Cell       s2.CellID
	Data       float64
	Count      int
	GeomString string
}

func (c S2CellData) String() string {
	return fmt.Sprintf("%v;%v;%d;%s", int64(c.Cell), c.Data, c.Count, c.GeomString)
}

// BandContainer carries a band and what is needed to locate its pixels.
type BandContainer struct {
	Band      godal.Band
	Origin    Point
	XRes      float64
	YRes      float64
	NoData    float64
	HasNoData bool
	mu        *sync.Mutex
}

type cellValues map[s2.CellID][]float64

// RasterToS2 reads a band of the raster at path block by block, assigns every
// valid pixel center to its S2 cell at opts.S2Lvl and aggregates each cell's
// values with opts.Stat. Results are sorted by cell ID. The raster must be in
// a geographic CRS.
func RasterToS2(path string, opts ConfigOpts) (cells []S2CellData, err error) {
	if opts.NumWorkers < 1 {
		opts.NumWorkers = 1
	}
	if opts.Band == 0 {
		opts.Band = 1
	}
	if !opts.Stat.Valid() {
		return nil, &geoerr.UnsupportedStatisticError{Name: opts.Stat.String(), Supported: aggfunc.Names()}
	}
	if opts.S2Lvl < 0 || opts.S2Lvl > s2.MaxLevel {
		return nil, geoerr.Computationf("S2 level %d out of range [0, %d]", opts.S2Lvl, s2.MaxLevel)
	}
	godal.RegisterAll()

	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return nil, &geoerr.IOError{Op: "open", Path: path, Err: err}
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil {
			err = errors.Join(err, &geoerr.IOError{Op: "close", Path: path, Err: cerr})
		}
	}()

	if err := checkGeographic(ds.Projection()); err != nil {
		return nil, err
	}
	bands := ds.Bands()
	if opts.Band < 1 || opts.Band > len(bands) {
		return nil, geoerr.Computationf("band index %d out of range [1, %d]", opts.Band, len(bands))
	}

	origin, xRes, yRes, err := getOriginAndResolution(ds)
	if err != nil {
		return nil, &geoerr.IOError{Op: "read geotransform", Path: path, Err: err}
	}
	band := &BandContainer{
		Band:   bands[opts.Band-1],
		Origin: origin,
		XRes:   xRes,
		YRes:   yRes,
		mu:     &sync.Mutex{},
	}
	band.NoData, band.HasNoData = band.Band.NoData()
	if !band.HasNoData {
		logrus.Warn("NoData not set")
	}

	grouped, err := indexBand(band, opts)
	if err != nil {
		return nil, &geoerr.IOError{Op: "read band", Path: path, Err: err}
	}
	return aggCellResults(grouped, opts.Stat), nil
}

func checkGeographic(wkt string) error {
	if wkt == "" {
		logrus.Warn("Raster has no CRS, assuming lon/lat degrees")
		return nil
	}
	sr, err := godal.NewSpatialRefFromWKT(wkt)
	if err != nil {
		return geoerr.Computationf("parse raster CRS: %v", err)
	}
	defer sr.Close()
	if !sr.Geographic() {
		return geoerr.Computationf("S2 indexing needs a raster in a geographic CRS")
	}
	return nil
}

func indexBand(band *BandContainer, opts ConfigOpts) (cellValues, error) {
	done := make(chan struct{})
	defer close(done)

	blocks := genBlocks(band, done)

	results := make(chan cellValues, opts.NumWorkers)
	errs := make(chan error, opts.NumWorkers)
	var wg sync.WaitGroup
	wg.Add(opts.NumWorkers)
	for i := 0; i < opts.NumWorkers; i++ {
		go func() {
			defer wg.Done()
			local, err := indexBlocks(band, blocks, opts.S2Lvl)
			results <- local
			errs <- err
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	var errList []error
	for err := range errs {
		errList = append(errList, err)
	}
	if err := errors.Join(errList...); err != nil {
		return nil, err
	}
	return groupByCell(results), nil
}

// Produce blocks from a raster band, putting them in a channel to be consumed
// downstream. Production is serial; reads dominate and are locked anyway.
func genBlocks(band *BandContainer, done <-chan struct{}) <-chan godal.Block {
	blocks := make(chan godal.Block)
	firstBlock := band.Band.Structure().FirstBlock()
	go func() {
		defer close(blocks)
		for block, ok := firstBlock, true; ok; block, ok = block.Next() {
			select {
			case blocks <- block:
			case <-done:
				return
			}
		}
	}()
	return blocks
}

// indexBlocks consumes blocks until the channel closes and returns the values
// it saw grouped per cell. A failed read stops the worker's indexing but keeps
// it draining so the producer never blocks.
func indexBlocks(band *BandContainer, blocks <-chan godal.Block, level int) (cellValues, error) {
	local := cellValues{}
	var failed error
	for block := range blocks {
		if failed != nil {
			continue
		}
		logrus.Debugf("Processing block at [%v, %v]", block.X0, block.Y0)
		if err := rasterBlockToS2(band, block, level, local); err != nil {
			failed = fmt.Errorf("block [%d, %d]: %w", block.X0, block.Y0, err)
		}
	}
	return local, failed
}

func rasterBlockToS2(band *BandContainer, block godal.Block, level int, out cellValues) error {
	origin := blockOrigin(block, band.XRes, band.YRes, band.Origin)
	blockBuf := make([]float64, block.H*block.W)
	if err := lockedRead(band, block, blockBuf); err != nil {
		return err
	}

	for pix, value := range blockBuf {
		if math.IsNaN(value) || (band.HasNoData && value == band.NoData) {
			continue
		}
		// GDAL is row-major
		row := pix / block.W
		col := pix % block.W

		lat := origin.Lat + (float64(row)+0.5)*band.YRes
		lng := origin.Lng + (float64(col)+0.5)*band.XRes

		cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng)).Parent(level)
		out[cell] = append(out[cell], value)
	}
	return nil
}

// Locking is required to read from compressed rasters.
func lockedRead(band *BandContainer, block godal.Block, blockBuf []float64) error {
	band.mu.Lock()
	defer band.mu.Unlock()
	return band.Band.Read(block.X0, block.Y0, blockBuf, block.W, block.H)
}

func groupByCell(results <-chan cellValues) cellValues {
	merged := cellValues{}
	for local := range results {
		for cell, values := range local {
			merged[cell] = append(merged[cell], values...)
		}
	}
	return merged
}

func aggCellResults(grouped cellValues, stat aggfunc.Statistic) []S2CellData {
	out := make([]S2CellData, 0, len(grouped))
	for cell, values := range grouped {
		v, ok := stat.Apply(values)
		if !ok {
			continue
		}
		out = append(out, S2CellData{
			Cell:       cell,
			Data:       v,
			Count:      len(values),
			GeomString: cellToWKT(s2.CellFromCellID(cell)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cell < out[j].Cell })
	logrus.Infof("Aggregated %d S2 cells with %s", len(out), stat)
	return out
}

func getOriginAndResolution(ds *godal.Dataset) (Point, float64, float64, error) {
	gt, err := ds.GeoTransform()
	if err != nil {
		return Point{}, 0, 0, err
	}
	origin := Point{gt[3], gt[0]}
	return origin, gt[1], gt[5], nil
}

func blockOrigin(block godal.Block, xRes, yRes float64, origin Point) Point {
	return Point{
		Lat: origin.Lat + float64(block.Y0)*yRes,
		Lng: origin.Lng + float64(block.X0)*xRes,
	}
}
