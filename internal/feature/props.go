package feature

import (
	"encoding/json"
	"math"

	"github.com/paulmach/orb/geojson"
)

// Number reads a numeric property. Built features carry float64 values, but
// collections decoded elsewhere may hold ints or json.Number. Non-finite and
// non-numeric values report false.
func Number(f *geojson.Feature, name string) (float64, bool) {
	if f == nil {
		return 0, false
	}
	var v float64
	switch x := f.Properties[name].(type) {
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int64:
		v = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		v = n
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
