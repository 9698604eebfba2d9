package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/orderbridge/rpa-backend/internal/infrastructure/browser"
)

// ErrNoPayload is returned when every extraction strategy has been
// tried against the current page and none produced a JSON document.
var ErrNoPayload = errors.New("no embedded order payload found on page")

// Extractor locates the order payload embedded in a seller back-office
// page. Strategies are tried in a fixed order and the first one that
// yields parseable JSON wins; strategies that error are skipped, not
// fatal.
type Extractor struct {
	session browser.Session
	logger  *slog.Logger

	// Platform is an optional vendor hint ("base" enables the admin
	// API fallback for that platform).
	Platform string
}

func NewExtractor(session browser.Session, logger *slog.Logger) *Extractor {
	return &Extractor{session: session, logger: logger}
}

type strategy struct {
	name string
	run  func(ctx context.Context) (json.RawMessage, error)
}

// Extract runs the strategy cascade against the page the session is
// currently on. It returns the first payload found, or ErrNoPayload
// once the cascade is exhausted.
func (e *Extractor) Extract(ctx context.Context) (json.RawMessage, error) {
	strategies := []strategy{
		{"next_data_script", e.fromNextDataScript},
		{"data_json_attribute", e.fromDataJSONAttribute},
		{"inline_script_regex", e.fromInlineScripts},
		{"page_globals", e.fromPageGlobals},
		{"ld_json", e.fromLDJSON},
	}
	if strings.EqualFold(e.Platform, "base") {
		strategies = append(strategies, strategy{"base_admin_api", e.fromBaseAdminAPI})
	}

	for _, s := range strategies {
		payload, err := s.run(ctx)
		if err != nil {
			e.logger.Debug("extraction strategy failed", "strategy", s.name, "error", err)
			continue
		}
		if payload == nil {
			continue
		}
		e.logger.Info("order payload extracted", "strategy", s.name, "bytes", len(payload))
		return payload, nil
	}

	return nil, ErrNoPayload
}

// fromNextDataScript reads the __NEXT_DATA__ bootstrap script that
// Next.js pages embed.
func (e *Extractor) fromNextDataScript(ctx context.Context) (json.RawMessage, error) {
	texts, err := e.session.Texts(ctx, `script#__NEXT_DATA__`)
	if err != nil {
		return nil, err
	}
	for _, text := range texts {
		if payload := parseJSON(text); payload != nil {
			return payload, nil
		}
	}
	return nil, nil
}

// fromDataJSONAttribute reads script tags that carry their payload in
// a data-json attribute rather than the element body.
func (e *Extractor) fromDataJSONAttribute(ctx context.Context) (json.RawMessage, error) {
	var values []string
	expr := `Array.from(document.querySelectorAll('script[data-json]')).map(e => e.getAttribute('data-json'))`
	if err := e.session.Evaluate(ctx, expr, &values); err != nil {
		return nil, err
	}
	for _, v := range values {
		if payload := parseJSON(v); payload != nil {
			return payload, nil
		}
	}
	return nil, nil
}

var inlineScriptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)window\.__INITIAL_STATE__\s*=\s*(\{.+?\});`),
	regexp.MustCompile(`(?s)var\s+orderData\s*=\s*(\{.+?\});`),
}

// fromInlineScripts scans every script body for known assignment
// patterns that inline the order state.
func (e *Extractor) fromInlineScripts(ctx context.Context) (json.RawMessage, error) {
	texts, err := e.session.Texts(ctx, "script")
	if err != nil {
		return nil, err
	}
	for _, text := range texts {
		for _, pattern := range inlineScriptPatterns {
			match := pattern.FindStringSubmatch(text)
			if match == nil {
				continue
			}
			if payload := parseJSON(match[1]); payload != nil {
				return payload, nil
			}
		}
	}
	return nil, nil
}

// fromPageGlobals asks the page itself for the well-known globals,
// which catches state assigned after initial load.
func (e *Extractor) fromPageGlobals(ctx context.Context) (json.RawMessage, error) {
	expr := `(() => {
		const candidates = [window.__NEXT_DATA__, window.__INITIAL_STATE__, window.orderData];
		for (const c of candidates) {
			if (c && typeof c === 'object') { return JSON.stringify(c); }
		}
		return "";
	})()`
	var encoded string
	if err := e.session.Evaluate(ctx, expr, &encoded); err != nil {
		return nil, err
	}
	return parseJSON(encoded), nil
}

// fromLDJSON reads structured-data blocks as a last resort before the
// platform-specific fallbacks.
func (e *Extractor) fromLDJSON(ctx context.Context) (json.RawMessage, error) {
	texts, err := e.session.Texts(ctx, `script[type="application/ld+json"]`)
	if err != nil {
		return nil, err
	}
	for _, text := range texts {
		if payload := parseJSON(text); payload != nil {
			return payload, nil
		}
	}
	return nil, nil
}

var baseOrderIDPattern = regexp.MustCompile(`/orders/order/([A-Za-z0-9]+)`)

const baseOrderAPIFormat = "https://admin.thebase.in/shop_admin/api/orders/view/order/%s"

// fromBaseAdminAPI recovers the order id from the current URL and
// fetches the order through the back-office REST endpoint, reusing
// the browser's authenticated cookies. If the in-page fetch fails it
// navigates to the endpoint and parses the response body instead.
func (e *Extractor) fromBaseAdminAPI(ctx context.Context) (json.RawMessage, error) {
	currentURL, err := e.session.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}
	match := baseOrderIDPattern.FindStringSubmatch(currentURL)
	if match == nil {
		return nil, fmt.Errorf("no order id in url %s", currentURL)
	}
	apiURL := fmt.Sprintf(baseOrderAPIFormat, match[1])

	if payload, err := e.fetchWithSession(ctx, apiURL); err == nil && payload != nil {
		return payload, nil
	} else if err != nil {
		e.logger.Debug("in-page api fetch failed, navigating instead", "url", apiURL, "error", err)
	}

	return e.navigateAndParse(ctx, apiURL)
}

func (e *Extractor) fetchWithSession(ctx context.Context, apiURL string) (json.RawMessage, error) {
	expr := fmt.Sprintf(`fetch(%q, {credentials: 'include'}).then(r => r.text())`, apiURL)
	var body string
	if err := e.session.EvaluateAsync(ctx, expr, &body); err != nil {
		return nil, err
	}
	payload := parseJSON(body)
	if payload == nil {
		return nil, fmt.Errorf("api response is not json")
	}
	return payload, nil
}

func (e *Extractor) navigateAndParse(ctx context.Context, apiURL string) (json.RawMessage, error) {
	if err := e.session.Navigate(ctx, apiURL); err != nil {
		return nil, err
	}
	var body string
	if err := e.session.Evaluate(ctx, "document.body.innerText", &body); err != nil {
		return nil, err
	}
	payload := parseJSON(body)
	if payload == nil {
		return nil, fmt.Errorf("api page body is not json")
	}
	return payload, nil
}

// parseJSON validates that text is a JSON document and returns it
// compacted to its raw form, or nil when it is not parseable.
func parseJSON(text string) json.RawMessage {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return nil
	}
	encoded, err := json.Marshal(decoded)
	if err != nil {
		return nil
	}
	return encoded
}
