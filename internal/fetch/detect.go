package fetch

import (
	"bytes"
	"net/http"
	"strings"
)

// Detector inspects a fetch result for the signature of a bot-protection
// product that blocked or challenged the request.
type Detector func(res *Result) (detected bool, source string)

// DefaultDetectors returns the standard detector list.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// Detect runs the result through the detectors, updating Blocked/BlockedBy
// in place. The first hit wins.
func Detect(res *Result, detectors []Detector) bool {
	if res == nil {
		return false
	}
	for _, d := range detectors {
		if detected, source := d(res); detected {
			res.Blocked = true
			res.BlockedBy = source
			return true
		}
	}
	res.Blocked = false
	res.BlockedBy = ""
	return false
}

func detectCloudflare(res *Result) (bool, string) {
	if res.StatusCode == http.StatusForbidden || res.StatusCode == http.StatusServiceUnavailable {
		if strings.Contains(strings.ToLower(res.Headers.Get("Server")), "cloudflare") {
			return true, "Cloudflare"
		}
		if bytes.Contains(res.Body, []byte("cf-browser-verification")) ||
			bytes.Contains(res.Body, []byte("cf-turnstile")) ||
			bytes.Contains(res.Body, []byte("Attention Required! | Cloudflare")) {
			return true, "Cloudflare"
		}
	}
	return false, ""
}

func detectAkamai(res *Result) (bool, string) {
	if res.StatusCode == http.StatusForbidden {
		if strings.Contains(strings.ToLower(res.Headers.Get("Server")), "akamai") {
			return true, "Akamai"
		}
		// Akamai block pages carry a generic "Reference #" marker
		if bytes.Contains(res.Body, []byte("Reference #")) && bytes.Contains(res.Body, []byte("Access Denied")) {
			return true, "Akamai"
		}
	}
	return false, ""
}

func detectDataDome(res *Result) (bool, string) {
	if res.StatusCode == http.StatusForbidden {
		if strings.Contains(strings.ToLower(res.Headers.Get("Server")), "datadome") {
			return true, "DataDome"
		}
		if res.Headers.Get("X-DataDome") != "" || res.Headers.Get("X-DataDome-Response") != "" {
			return true, "DataDome"
		}
		if bytes.Contains(res.Body, []byte("geo.captcha-delivery.com")) ||
			bytes.Contains(res.Body, []byte("datadome")) {
			return true, "DataDome"
		}
	}
	return false, ""
}

func detectPerimeterX(res *Result) (bool, string) {
	if res.StatusCode == http.StatusForbidden {
		if res.Headers.Get("X-Px-Captcha") != "" {
			return true, "PerimeterX"
		}
		if bytes.Contains(res.Body, []byte("client.perimeterx.net")) ||
			bytes.Contains(res.Body, []byte("px-captcha")) ||
			bytes.Contains(res.Body, []byte("_pxBlock")) {
			return true, "PerimeterX"
		}
	}
	return false, ""
}
