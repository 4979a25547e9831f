package fetch

import (
	"net/http"
	"testing"
)

func resultWith(status int, headers map[string]string, body string) *Result {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &Result{StatusCode: status, Headers: h, Body: []byte(body)}
}

func TestDetect_Cloudflare(t *testing.T) {
	cases := []*Result{
		resultWith(403, map[string]string{"Server": "cloudflare"}, ""),
		resultWith(503, nil, "cf-browser-verification"),
		resultWith(403, nil, "Attention Required! | Cloudflare"),
	}
	for i, res := range cases {
		if !Detect(res, DefaultDetectors()) {
			t.Errorf("case %d: expected detection", i)
		}
		if res.BlockedBy != "Cloudflare" {
			t.Errorf("case %d: blocked by %q", i, res.BlockedBy)
		}
	}
}

func TestDetect_Akamai(t *testing.T) {
	res := resultWith(403, nil, "Access Denied ... Reference #18.1234")
	if !Detect(res, DefaultDetectors()) || res.BlockedBy != "Akamai" {
		t.Errorf("expected Akamai detection, got %q", res.BlockedBy)
	}
}

func TestDetect_DataDome(t *testing.T) {
	res := resultWith(403, map[string]string{"X-DataDome": "protected"}, "")
	if !Detect(res, DefaultDetectors()) || res.BlockedBy != "DataDome" {
		t.Errorf("expected DataDome detection, got %q", res.BlockedBy)
	}
}

func TestDetect_PerimeterX(t *testing.T) {
	res := resultWith(403, nil, `<div id="px-captcha"></div>`)
	if !Detect(res, DefaultDetectors()) || res.BlockedBy != "PerimeterX" {
		t.Errorf("expected PerimeterX detection, got %q", res.BlockedBy)
	}
}

func TestDetect_CleanResponse(t *testing.T) {
	res := resultWith(200, map[string]string{"Server": "cloudflare"}, "normal page")
	if Detect(res, DefaultDetectors()) {
		t.Error("a 200 behind cloudflare is not a block")
	}
	if res.Blocked || res.BlockedBy != "" {
		t.Errorf("fields not cleared: %+v", res)
	}
}

func TestDetect_Plain403(t *testing.T) {
	res := resultWith(403, nil, "forbidden")
	if Detect(res, DefaultDetectors()) {
		t.Error("an unadorned 403 should not be attributed to a bot-protection product")
	}
}

func TestDetect_NilResult(t *testing.T) {
	if Detect(nil, DefaultDetectors()) {
		t.Error("nil result must not detect")
	}
}
