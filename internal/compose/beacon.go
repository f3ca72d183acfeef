package compose

import (
	"net/url"
	"strconv"
	"time"
)

// BeaconURL builds the open-tracking pixel URL. The log id must be generated
// before the send so the open event can be correlated back to the exact
// EmailLog row; it cannot be reconstructed after the fact. The timestamp is a
// cache-buster for mail clients that proxy images.
func BeaconURL(base, logID, campaignID, datasetID string, now time.Time) string {
	if base == "" || logID == "" || campaignID == "" {
		return ""
	}
	params := url.Values{}
	params.Set("lid", logID)
	params.Set("cid", campaignID)
	params.Set("dbid", datasetID)
	params.Set("t", strconv.FormatInt(now.UnixMilli(), 10))
	return base + "/trackOpen?" + params.Encode()
}

// BeaconHTML wraps the beacon URL in an invisible 1x1 image tag.
func BeaconHTML(pixelURL string) string {
	if pixelURL == "" {
		return ""
	}
	return `<img src="` + pixelURL + `" width="1" height="1" style="display:none;border:0;width:1px;height:1px;padding:0;margin:0;" alt="" />`
}
