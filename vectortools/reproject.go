package vectortools

import (
	"fmt"

	"ndvi-tools/geoerr"

	"github.com/airbusgeo/godal"
	"github.com/sirupsen/logrus"
)

// SameCRS reports whether two WKT spatial references describe the same CRS.
// An empty WKT never matches.
func SameCRS(a, b string) (bool, error) {
	if a == "" || b == "" {
		return false, nil
	}
	if a == b {
		return true, nil
	}
	srA, err := godal.NewSpatialRefFromWKT(a)
	if err != nil {
		return false, err
	}
	defer srA.Close()
	srB, err := godal.NewSpatialRefFromWKT(b)
	if err != nil {
		return false, err
	}
	defer srB.Close()
	return srA.IsSame(srB), nil
}

// Reproject returns a copy of the collection with every geometry transformed
// into the CRS given as WKT. The receiver is left untouched.
func (fc *FeatureCollection) Reproject(targetWKT string) (*FeatureCollection, error) {
	mismatch := func(err error) error {
		return &geoerr.CRSMismatchError{From: crsName(fc.CRS), To: crsName(targetWKT), Err: err}
	}
	if fc.CRS == "" || targetWKT == "" {
		return nil, mismatch(fmt.Errorf("missing spatial reference"))
	}
	godal.RegisterAll()

	src, err := godal.NewSpatialRefFromWKT(fc.CRS)
	if err != nil {
		return nil, mismatch(err)
	}
	defer src.Close()
	dst, err := godal.NewSpatialRefFromWKT(targetWKT)
	if err != nil {
		return nil, mismatch(err)
	}
	defer dst.Close()

	out := fc.Clone()
	out.CRS = targetWKT
	for i := range out.Features {
		if len(out.Features[i].Geometry) == 0 {
			continue
		}
		wkb, err := reprojectWKB(out.Features[i].Geometry, src, dst)
		if err != nil {
			return nil, mismatch(fmt.Errorf("feature %d: %w", i, err))
		}
		out.Features[i].Geometry = wkb
	}
	logrus.Debugf("Reprojected %d features from %s to %s", len(out.Features), crsName(fc.CRS), crsName(targetWKT))
	return out, nil
}

func reprojectWKB(wkb []byte, src, dst *godal.SpatialRef) ([]byte, error) {
	geom, err := godal.NewGeometryFromWKB(wkb, src)
	if err != nil {
		return nil, err
	}
	defer geom.Close()
	if err := geom.Reproject(dst); err != nil {
		return nil, err
	}
	return geom.WKB()
}

// crsName gives a short label for log and error messages.
func crsName(wkt string) string {
	if wkt == "" {
		return "<none>"
	}
	sr, err := godal.NewSpatialRefFromWKT(wkt)
	if err != nil {
		return "<invalid>"
	}
	defer sr.Close()
	if code := sr.AuthorityCode(""); code != "" {
		return sr.AuthorityName("") + ":" + code
	}
	if len(wkt) > 40 {
		return wkt[:40] + "..."
	}
	return wkt
}
