// v0
// splitrange.go
package control

// SplitRange maps a signed control output onto the two gas channels.
//
// Positive u injects CO2; negative u boosts AIR above its baseline. In
// CO2-only mode AIR stays pinned to the baseline regardless of sign. The
// returned values are desired flows before rate limiting and before the
// safety arbiter; they are never written to hardware directly.
func SplitRange(u, airBaseline, airMax, co2Max float64, co2Only bool) (air, co2 float64) {
	if u >= 0 {
		return airBaseline, clamp(u, 0, co2Max)
	}
	if co2Only {
		return airBaseline, 0
	}
	return clamp(airBaseline-u, airBaseline, airMax), 0
}
