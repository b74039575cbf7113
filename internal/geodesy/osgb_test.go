package geodesy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Worked example from the Ordnance Survey guide to coordinate systems
// (Caister water tower), followed by Helmert to WGS84.
func TestToGeodetic_CaisterWaterTower(t *testing.T) {
	lon, lat := ToGeodetic(651409.903, 313177.270)
	assert.InDelta(t, 1.716052, lon, 1e-5)
	assert.InDelta(t, 52.657979, lat, 1e-5)
}

func TestGridToAiry_CaisterWaterTower(t *testing.T) {
	phi, lambda := gridToAiry(651409.903, 313177.270)
	assert.InDelta(t, 52.657570, phi*180/math.Pi, 1e-5)
	assert.InDelta(t, 1.717922, lambda*180/math.Pi, 1e-5)
}

func TestToGeodetic_KnownPoints(t *testing.T) {
	tests := []struct {
		name     string
		e, n     float64
		lon, lat float64
	}{
		{"true origin meridian", 400000, 300000, -2.001433, 52.597792},
		{"trafalgar square", 530047, 180422, -0.127522, 51.507772},
		{"midlands cell corner", 405000, 305000, -1.927541, 52.642719},
		{"false origin", 0, 0, -7.557160, 49.766807},
		{"north sea", 700000, 1300000, 3.632021, 61.464590},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lon, lat := ToGeodetic(tt.e, tt.n)
			assert.InDelta(t, tt.lon, lon, 1e-5)
			assert.InDelta(t, tt.lat, lat, 1e-5)
		})
	}
}

func TestToGeodetic_NonFinite(t *testing.T) {
	lon, lat := ToGeodetic(math.NaN(), 300000)
	assert.True(t, math.IsNaN(lon))
	assert.True(t, math.IsNaN(lat))

	lon, lat = ToGeodetic(400000, math.Inf(1))
	assert.True(t, math.IsNaN(lon))
	assert.True(t, math.IsNaN(lat))
}

func TestToGeodetic_EastingIncreasesLongitude(t *testing.T) {
	prev, _ := ToGeodetic(100000, 400000)
	for e := 150000.0; e <= 650000; e += 50000 {
		lon, _ := ToGeodetic(e, 400000)
		assert.Greater(t, lon, prev)
		prev = lon
	}
}

func TestHelmert_ShiftsByHundredsOfMetres(t *testing.T) {
	phi, lambda := gridToAiry(530047, 180422)
	x, y, z := geodeticToCartesian(phi, lambda, airyA, airyB)
	x2, y2, z2 := helmert(x, y, z)
	shift := math.Sqrt((x2-x)*(x2-x) + (y2-y)*(y2-y) + (z2-z)*(z2-z))
	assert.Greater(t, shift, 400.0)
	assert.Less(t, shift, 800.0)
}
