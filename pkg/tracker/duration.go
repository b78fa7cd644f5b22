package tracker

import "time"

func clampDuration(d time.Duration, minDuration time.Duration, maxDuration time.Duration) time.Duration {
	if d < minDuration {
		return minDuration
	}
	if d > maxDuration {
		return maxDuration
	}
	return d
}

// baseDuration is the time since the previous refresh, or the minimum on the first one
func baseDuration(now time.Time, lastRefresh time.Time, minDuration time.Duration, maxDuration time.Duration) time.Duration {
	if lastRefresh.IsZero() {
		return minDuration
	}

	return clampDuration(now.Sub(lastRefresh), minDuration, maxDuration)
}

// frameDuration stretches the animation for vehicles whose report is older than the refresh gap
func frameDuration(base time.Duration, secsSinceReport int, minDuration time.Duration, maxDuration time.Duration) time.Duration {
	if int64(secsSinceReport) > int64(maxDuration/time.Second) {
		return maxDuration
	}

	reportAge := time.Duration(secsSinceReport) * time.Second
	if reportAge > base {
		base = reportAge
	}

	return clampDuration(base, minDuration, maxDuration)
}
