package telemetry

import (
	"fmt"
	"time"
)

var byteUnits = []string{"bytes", "KB", "MB", "GB", "TB"}

// FormatBytes renders n with a binary unit, e.g. "12.5 MB".
func FormatBytes(n float64) string {
	for _, unit := range byteUnits[:len(byteUnits)-1] {
		if n < 1024 {
			return fmt.Sprintf("%3.1f %s", n, unit)
		}
		n /= 1024
	}
	return fmt.Sprintf("%3.1f %s", n, byteUnits[len(byteUnits)-1])
}

// FormatElapsed renders d as HH:MM:SS.ss.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)
	d -= time.Duration(minutes) * time.Minute
	return fmt.Sprintf("%02d:%02d:%05.2f", hours, minutes, d.Seconds())
}
