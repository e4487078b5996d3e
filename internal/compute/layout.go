package compute

import (
	"unsafe"

	"github.com/smaq/smaq/internal/model"
)

// LayoutVersion identifies the record layout shared with engines. Bump it
// whenever Candlestick or Indicator change shape.
const LayoutVersion = 1

const (
	candlestickSize = 16
	indicatorSize   = 16
)

// Candlestick is the input record handed to an engine. Field order and size
// are part of the engine contract.
type Candlestick struct {
	Open  float32
	High  float32
	Low   float32
	Close float32
}

// Indicator is the output record an engine fills in. Value carries the
// indicator; the reserved fields are kept for future indicators and must be
// left zero by current engines.
type Indicator struct {
	Value     float32
	Reserved1 float32
	Reserved2 float32
	Reserved3 float32
}

// Compile-time layout checks: a negative array length fails the build.
var (
	_ [candlestickSize - unsafe.Sizeof(Candlestick{})]struct{}
	_ [unsafe.Sizeof(Candlestick{}) - candlestickSize]struct{}
	_ [indicatorSize - unsafe.Sizeof(Indicator{})]struct{}
	_ [unsafe.Sizeof(Indicator{}) - indicatorSize]struct{}

	_ [unsafe.Offsetof(Candlestick{}.Open) - 0]struct{}
	_ [0 - unsafe.Offsetof(Candlestick{}.Open)]struct{}
	_ [unsafe.Offsetof(Candlestick{}.High) - 4]struct{}
	_ [4 - unsafe.Offsetof(Candlestick{}.High)]struct{}
	_ [unsafe.Offsetof(Candlestick{}.Low) - 8]struct{}
	_ [8 - unsafe.Offsetof(Candlestick{}.Low)]struct{}
	_ [unsafe.Offsetof(Candlestick{}.Close) - 12]struct{}
	_ [12 - unsafe.Offsetof(Candlestick{}.Close)]struct{}
	_ [unsafe.Offsetof(Indicator{}.Value) - 0]struct{}
	_ [0 - unsafe.Offsetof(Indicator{}.Value)]struct{}
)

// Pack converts price points into engine input records.
func Pack(points []model.PricePoint) []Candlestick {
	kline := make([]Candlestick, len(points))
	for i, p := range points {
		kline[i] = Candlestick{
			Open:  float32(p.Open),
			High:  float32(p.High),
			Low:   float32(p.Low),
			Close: float32(p.Close),
		}
	}
	return kline
}

// Values extracts the primary indicator from engine output records.
func Values(out []Indicator) []float64 {
	values := make([]float64, len(out))
	for i, ind := range out {
		values[i] = float64(ind.Value)
	}
	return values
}
