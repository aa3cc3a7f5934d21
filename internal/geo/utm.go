package geo

import (
	"fmt"
	"math"
)

// GRS80, the ellipsoid of ETRS89 / EUREF89 UTM data. WGS84 differs from it
// by well under a millimeter at these scales.
const (
	semiMajorAxis = 6378137.0
	flattening    = 1 / 298.257222101

	utmScale         = 0.9996
	utmFalseEasting  = 500000.0
	utmFalseNorthing = 10000000.0
)

// Krüger series terms for the inverse transverse Mercator, third order in
// the third flattening n.
var (
	thirdFlattening = flattening / (2 - flattening)

	rectifyingRadius = semiMajorAxis / (1 + thirdFlattening) *
		(1 + thirdFlattening*thirdFlattening/4 + math.Pow(thirdFlattening, 4)/64)

	krugerBeta  = krugerInverseTerms(thirdFlattening)
	krugerDelta = conformalLatitudeTerms(thirdFlattening)
)

func krugerInverseTerms(n float64) [3]float64 {
	n2, n3 := n*n, n*n*n
	return [3]float64{
		n/2 - 2*n2/3 + 37*n3/96,
		n2/48 + n3/15,
		17 * n3 / 480,
	}
}

func conformalLatitudeTerms(n float64) [3]float64 {
	n2, n3 := n*n, n*n*n
	return [3]float64{
		2*n - 2*n2/3 - 2*n3,
		7*n2/3 - 8*n3/5,
		56 * n3 / 15,
	}
}

// UTMProjector inverts a fixed UTM zone. Unlike the standard UTM grid it
// does not restrict eastings to the zone's own strip: national datasets
// such as EPSG:25833 extend one zone across the whole country, so eastings
// below 100 km or above 1000 km are valid input.
type UTMProjector struct {
	Zone     int
	Northern bool
}

func (p UTMProjector) ToLatLng(easting, northing float64) (LatLng, error) {
	if !finite(easting) || !finite(northing) {
		return LatLng{}, fmt.Errorf("%w: non-finite input (%v, %v)", ErrProjection, easting, northing)
	}
	if p.Zone < 1 || p.Zone > 60 {
		return LatLng{}, fmt.Errorf("%w: invalid zone %d", ErrProjection, p.Zone)
	}

	y := northing
	if !p.Northern {
		y -= utmFalseNorthing
	}
	xi := y / (utmScale * rectifyingRadius)
	eta := (easting - utmFalseEasting) / (utmScale * rectifyingRadius)

	xiP, etaP := xi, eta
	for j, b := range krugerBeta {
		k := float64(2 * (j + 1))
		xiP -= b * math.Sin(k*xi) * math.Cosh(k*eta)
		etaP -= b * math.Cos(k*xi) * math.Sinh(k*eta)
	}

	chi := math.Asin(math.Sin(xiP) / math.Cosh(etaP))
	lat := chi
	for j, d := range krugerDelta {
		lat += d * math.Sin(float64(2*(j+1))*chi)
	}

	centralMeridian := float64(p.Zone-1)*6 - 180 + 3
	lng := centralMeridian + radToDeg(math.Atan2(math.Sinh(etaP), math.Cos(xiP)))

	out := LatLng{Lat: radToDeg(lat), Lng: lng}
	if !finite(out.Lat) || !finite(out.Lng) || !out.valid() {
		return LatLng{}, fmt.Errorf("%w: result out of range (%v, %v)", ErrProjection, out.Lat, out.Lng)
	}
	return out, nil
}

func radToDeg(r float64) float64 {
	return r * 180 / math.Pi
}
