package profile

import (
	"math"
	"strconv"
)

func itoa(v int) string {
	return strconv.Itoa(v)
}

func ftoa(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}
