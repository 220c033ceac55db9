package raid

import "dracd/internal/dracerr"

// CalculateSpans computes (span_length, span_depth) for a RAID level given
// the number of disks assigned to it. The bitwise rounding in the
// 5+0/6+0/1+0 branches is preserved literally to match observed firmware
// behavior rather than a "nicer" equivalent.
func CalculateSpans(raidLevel string, disksCount int) (spanLength int, spanDepth int, err error) {
	switch raidLevel {
	case "0", "1", "5", "6":
		return disksCount, 1, nil
	case "5+0", "6+0":
		return disksCount &^ 1, 2, nil
	case "1+0":
		return disksCount &^ 1, disksCount >> 1, nil
	default:
		return 0, 0, &dracerr.InvalidRaidConfiguration{Reason: "unsupported raid level: " + raidLevel}
	}
}
