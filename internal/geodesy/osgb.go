// Package geodesy converts Ordnance Survey National Grid coordinates on the
// OSGB36 datum to WGS84 longitude and latitude.
//
// The conversion runs in four stages: inverse Transverse Mercator on the Airy
// 1830 ellipsoid, geodetic to earth-centred cartesian, a seven-parameter
// Helmert transform, and an iterative cartesian to geodetic solve on the
// WGS84 ellipsoid. Accuracy is a few metres, which is well inside a 1km cell.
package geodesy

import "math"

// Airy 1830 ellipsoid and National Grid projection constants.
const (
	airyA = 6377563.396
	airyB = 6356256.909

	f0   = 0.9996012717
	lat0 = 49 * math.Pi / 180
	lon0 = -2 * math.Pi / 180
	e0   = 400000.0
	n0   = -100000.0
)

// WGS84 ellipsoid.
const (
	wgsA = 6378137.0
	wgsB = 6356752.3141
)

// Helmert parameters, OSGB36 to WGS84. Rotations are in arc-seconds and scale
// is in parts per million.
const (
	helmertTX = 446.448
	helmertTY = -125.157
	helmertTZ = 542.060
	helmertRX = 0.1502
	helmertRY = 0.2470
	helmertRZ = 0.8421
	helmertS  = -20.4894
)

const (
	arcTolerance      = 1e-5  // metres
	latitudeTolerance = 1e-12 // radians
	maxIterations     = 100
)

// ToGeodetic converts a National Grid easting and northing in metres to WGS84
// longitude and latitude in degrees. Non-finite input yields NaN.
func ToGeodetic(easting, northing float64) (lon, lat float64) {
	phi, lambda := gridToAiry(easting, northing)
	x, y, z := geodeticToCartesian(phi, lambda, airyA, airyB)
	x, y, z = helmert(x, y, z)
	phi, lambda = cartesianToGeodetic(x, y, z, wgsA, wgsB)
	return lambda * 180 / math.Pi, phi * 180 / math.Pi
}

// gridToAiry inverts the Transverse Mercator projection, returning OSGB36
// latitude and longitude in radians.
func gridToAiry(e, n float64) (phi, lambda float64) {
	if math.IsNaN(e) || math.IsNaN(n) || math.IsInf(e, 0) || math.IsInf(n, 0) {
		return math.NaN(), math.NaN()
	}

	a, b := airyA, airyB
	e2 := 1 - (b*b)/(a*a)
	nn := (a - b) / (a + b)
	n2, n3 := nn*nn, nn*nn*nn

	phi = lat0
	m := 0.0
	for i := 0; i < maxIterations; i++ {
		phi = (n-n0-m)/(a*f0) + phi
		m = meridionalArc(phi, b, nn, n2, n3)
		if math.Abs(n-n0-m) < arcTolerance {
			break
		}
	}

	sinPhi, cosPhi, tanPhi := math.Sin(phi), math.Cos(phi), math.Tan(phi)
	nu := a * f0 / math.Sqrt(1-e2*sinPhi*sinPhi)
	rho := a * f0 * (1 - e2) / math.Pow(1-e2*sinPhi*sinPhi, 1.5)
	eta2 := nu/rho - 1

	tan2, tan4, tan6 := tanPhi*tanPhi, math.Pow(tanPhi, 4), math.Pow(tanPhi, 6)
	secPhi := 1 / cosPhi
	nu3, nu5, nu7 := nu*nu*nu, math.Pow(nu, 5), math.Pow(nu, 7)

	vii := tanPhi / (2 * rho * nu)
	viii := tanPhi / (24 * rho * nu3) * (5 + 3*tan2 + eta2 - 9*tan2*eta2)
	ix := tanPhi / (720 * rho * nu5) * (61 + 90*tan2 + 45*tan4)
	x := secPhi / nu
	xi := secPhi / (6 * nu3) * (nu/rho + 2*tan2)
	xii := secPhi / (120 * nu5) * (5 + 28*tan2 + 24*tan4)
	xiia := secPhi / (5040 * nu7) * (61 + 662*tan2 + 1320*tan4 + 720*tan6)

	de := e - e0
	de2, de3 := de*de, de*de*de
	de4, de5 := de2*de2, de2*de3
	de6, de7 := de3*de3, de3*de4

	phi = phi - vii*de2 + viii*de4 - ix*de6
	lambda = lon0 + x*de - xi*de3 + xii*de5 - xiia*de7
	return phi, lambda
}

func meridionalArc(phi, b, n, n2, n3 float64) float64 {
	dp, sp := phi-lat0, phi+lat0
	ma := (1 + n + 5.0/4*n2 + 5.0/4*n3) * dp
	mb := (3*n + 3*n2 + 21.0/8*n3) * math.Sin(dp) * math.Cos(sp)
	mc := (15.0/8*n2 + 15.0/8*n3) * math.Sin(2*dp) * math.Cos(2*sp)
	md := 35.0 / 24 * n3 * math.Sin(3*dp) * math.Cos(3*sp)
	return b * f0 * (ma - mb + mc - md)
}

// geodeticToCartesian places a point at zero ellipsoidal height.
func geodeticToCartesian(phi, lambda, a, b float64) (x, y, z float64) {
	e2 := 1 - (b*b)/(a*a)
	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)
	nu := a / math.Sqrt(1-e2*sinPhi*sinPhi)
	x = nu * cosPhi * math.Cos(lambda)
	y = nu * cosPhi * math.Sin(lambda)
	z = (1 - e2) * nu * sinPhi
	return x, y, z
}

func helmert(x, y, z float64) (float64, float64, float64) {
	const secToRad = math.Pi / (180 * 3600)
	rx, ry, rz := helmertRX*secToRad, helmertRY*secToRad, helmertRZ*secToRad
	s1 := 1 + helmertS*1e-6

	x2 := helmertTX + s1*x - rz*y + ry*z
	y2 := helmertTY + rz*x + s1*y - rx*z
	z2 := helmertTZ - ry*x + rx*y + s1*z
	return x2, y2, z2
}

func cartesianToGeodetic(x, y, z, a, b float64) (phi, lambda float64) {
	e2 := 1 - (b*b)/(a*a)
	p := math.Hypot(x, y)

	phi = math.Atan2(z, p*(1-e2))
	for i := 0; i < maxIterations; i++ {
		sinPhi := math.Sin(phi)
		nu := a / math.Sqrt(1-e2*sinPhi*sinPhi)
		next := math.Atan2(z+e2*nu*sinPhi, p)
		if math.Abs(next-phi) < latitudeTolerance {
			phi = next
			break
		}
		phi = next
	}
	return phi, math.Atan2(y, x)
}
