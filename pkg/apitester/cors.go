package apitester

import (
	"context"
	"net/http"
	"strings"

	"github.com/PentesterFlow/apiprobe/internal/auth"
	"github.com/PentesterFlow/apiprobe/internal/errors"
	probehttp "github.com/PentesterFlow/apiprobe/internal/http"
	"github.com/PentesterFlow/apiprobe/internal/logger"
	"github.com/PentesterFlow/apiprobe/internal/model"
)

// CORSTestOrigin is the foreign origin sent by the CORS sweep.
const CORSTestOrigin = "https://evil.com"

// TestCORSConfiguration replays every endpoint with a foreign Origin and
// reports those that allow it. endpoints defaults to the discovered ones.
// Findings are added to the session. The error is non-nil only when ctx is
// done.
func (t *APITester) TestCORSConfiguration(ctx context.Context, endpoints []model.Endpoint) ([]model.Vulnerability, error) {
	if len(endpoints) == 0 {
		endpoints = t.Endpoints()
	}
	if t.simulator != nil {
		return nil, nil
	}

	log := t.logger.WithComponent("cors")
	var found []model.Vulnerability
	for _, ep := range endpoints {
		if ctx.Err() != nil {
			break
		}
		if v := t.corsProbe(ctx, log, ep); v != nil {
			found = append(found, *v)
		}
	}

	t.addVulnerabilities(found)

	if ctx.Err() != nil {
		return found, errors.NewCancelledError(t.config.BaseURL, "cors")
	}
	return found, nil
}

func (t *APITester) corsProbe(ctx context.Context, log *logger.Logger, ep model.Endpoint) *model.Vulnerability {
	probe := auth.Apply(ep, t.currentProvider()).WithHeaders(map[string]string{"Origin": CORSTestOrigin})
	req := probehttp.NewRequest("cors", probe)
	req.Timeout = t.config.Timeouts.CORS

	resp, err := t.client.Do(ctx, req)
	if err != nil {
		log.ProbeFailed("cors", req.URL, err)
		return nil
	}
	return CORSFinding(ep, resp.Header)
}

// CORSFinding inspects the CORS headers of a response to a request sent
// with CORSTestOrigin. A wildcard or echoed origin is MEDIUM, HIGH when
// credentials are allowed too.
func CORSFinding(ep model.Endpoint, h http.Header) *model.Vulnerability {
	acao := h.Get("Access-Control-Allow-Origin")
	acac := h.Get("Access-Control-Allow-Credentials")
	if acao != "*" && acao != CORSTestOrigin {
		return nil
	}

	sev := model.SeverityMedium
	if strings.ToLower(acac) == "true" {
		sev = model.SeverityHigh
	}
	v := model.NewVulnerability(model.CategoryCORS, sev, "CORS misconfiguration allows any origin", ep, "", model.Evidence{
		"access_control_allow_origin":      acao,
		"access_control_allow_credentials": acac,
		"test_origin":                      CORSTestOrigin,
		"recommendation":                   "Restrict allowed origins to trusted domains",
	})
	return &v
}
