// Package mapper converts points on a rendered screenshot to device pixels.
package mapper

import "math"

// DisplayToDevice maps a click on the displayed image to device coordinates.
// Each axis is scaled independently and clamped to the device bounds.
// A non-positive display size yields (0, 0) because callers do not always
// know the rendered size yet.
func DisplayToDevice(clickX, clickY, displayW, displayH float64, deviceW, deviceH int) (int, int) {
	if displayW <= 0 || displayH <= 0 || deviceW <= 0 || deviceH <= 0 {
		return 0, 0
	}

	x := int(math.Round(clickX / displayW * float64(deviceW)))
	y := int(math.Round(clickY / displayH * float64(deviceH)))

	return clamp(x, 0, deviceW-1), clamp(y, 0, deviceH-1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
