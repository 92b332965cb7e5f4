package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// GPSRational is one EXIF GPS rational: numerator over denominator.
type GPSRational struct {
	Num float64
	Den float64
}

// Value returns the rational as a float. A zero denominator yields an
// error rather than an Inf coordinate.
func (r GPSRational) Value() (float64, error) {
	if r.Den == 0 {
		return 0, fmt.Errorf("gps rational with zero denominator")
	}
	return r.Num / r.Den, nil
}

// ParseGPSRational parses the "num/den" form EXIF tools emit. A bare
// number is treated as num/1.
func ParseGPSRational(s string) (GPSRational, error) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, "/", 2)
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return GPSRational{}, fmt.Errorf("bad gps rational %q: %w", s, err)
	}
	den := 1.0
	if len(parts) == 2 {
		den, err = strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return GPSRational{}, fmt.Errorf("bad gps rational %q: %w", s, err)
		}
	}
	return GPSRational{Num: num, Den: den}, nil
}

// GPSAnglesToDecimal converts an EXIF degrees/minutes/seconds triplet
// plus its N/S/E/W reference into signed decimal degrees.
func GPSAnglesToDecimal(ref string, degrees, minutes, seconds GPSRational) (float64, error) {
	d, err := degrees.Value()
	if err != nil {
		return 0, err
	}
	m, err := minutes.Value()
	if err != nil {
		return 0, err
	}
	s, err := seconds.Value()
	if err != nil {
		return 0, err
	}

	dec := d + m/60.0 + s/3600.0
	switch ref {
	case "N", "E":
	case "S", "W":
		dec = -dec
	default:
		return 0, fmt.Errorf("gps reference %q needs to be one of N, S, E, W", ref)
	}
	return dec, nil
}
