package espi

// Namespace is the NAESB ESPI XML namespace used by Green Button documents.
const Namespace = "http://naesb.org/espi"

// AtomNamespace wraps the ESPI payload in Green Button feeds and
// notification bodies.
const AtomNamespace = "http://www.w3.org/2005/Atom"

// Reading is one normalized interval sample: an hour of energy usage
// anchored at a UTC epoch second. WattHours may be negative for
// net-metering export.
type Reading struct {
	Start     int64
	Duration  int64
	WattHours int64
}

// End returns the epoch second immediately after the interval.
func (r Reading) End() int64 {
	return r.Start + r.Duration
}
