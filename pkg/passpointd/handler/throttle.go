package handler

import (
	"time"

	"github.com/vpbank/passpointd/models"
)

// requestTime is the per-BSSID throttling record: when the last query was
// sent and the current backoff exponent.
type requestTime struct {
	last     time.Time
	exponent int
}

// window is minEscape * 2^exponent.
func (r *requestTime) window(minEscape time.Duration) time.Duration {
	return minEscape << uint(r.exponent)
}

// readyToRequest reports whether the backoff window has strictly elapsed.
func (r *requestTime) readyToRequest(now time.Time, minEscape time.Duration) bool {
	return now.Sub(r.last) > r.window(minEscape)
}

// updateTimeStamp records a successful send.
func (r *requestTime) updateTimeStamp(now time.Time, maxExponent int) {
	r.last = now
	if r.exponent < maxExponent {
		r.exponent++
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Element request lists
// ─────────────────────────────────────────────────────────────────────────────

var releaseOneElements = []models.ElementType{
	models.ElementVenueName,
	models.ElementIPAddrAvailability,
	models.ElementNAIRealm,
	models.ElementThreeGPPNetwork,
	models.ElementDomainName,
}

var releaseTwoSubtypes = []models.ElementType{
	models.ElementHSFriendlyName,
	models.ElementHSWANMetrics,
	models.ElementHSConnCapability,
	models.ElementHSOSUProviders,
}

// buildRequestLists returns the IEEE info ids and HS2.0 subtypes to query.
// Fresh slices are returned on every call.
func buildRequestLists(includeRoamingConsortium, supportRelease2 bool) (infoElements, hs20Subtypes []uint32) {
	infoElements = make([]uint32, 0, len(releaseOneElements)+1)
	for _, t := range releaseOneElements {
		infoElements = append(infoElements, uint32(t))
	}
	if includeRoamingConsortium {
		infoElements = append(infoElements, uint32(models.ElementRoamingConsortium))
	}

	hs20Subtypes = []uint32{}
	if supportRelease2 {
		for _, t := range releaseTwoSubtypes {
			hs20Subtypes = append(hs20Subtypes, uint32(t))
		}
	}
	return infoElements, hs20Subtypes
}
