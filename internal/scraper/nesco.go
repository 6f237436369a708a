// Package scraper fetches prepaid balances from the NESCO customer panel.
// The panel has no API: the balance is read from the recharge-history form
// result, one of the disabled text inputs on the page.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shahariarshuvo/nesco-helper/internal/config"
	"github.com/shopspring/decimal"
)

const submitLabel = "রিচার্জ হিস্ট্রি"

// NescoClient scrapes the NESCO prepaid customer panel.
type NescoClient struct {
	panelURL          string
	balanceInputIndex int
	httpClient        *http.Client
}

// NewNescoClient builds a panel client from config.
func NewNescoClient(cfg config.ScraperConfig) *NescoClient {
	jar, _ := cookiejar.New(nil)
	return &NescoClient{
		panelURL:          cfg.PanelURL,
		balanceInputIndex: cfg.BalanceInputIndex,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
	}
}

// FetchBalance loads the panel page, extracts the CSRF token, submits the
// lookup form for the meter and parses the balance field from the result.
func (c *NescoClient) FetchBalance(ctx context.Context, meterNumber string) (decimal.Decimal, error) {
	token, err := c.fetchCSRFToken(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	form := url.Values{}
	form.Set("_token", token)
	form.Set("cust_no", strings.TrimSpace(meterNumber))
	form.Set("submit", submitLabel)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.panelURL, strings.NewReader(form.Encode()))
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("panel request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("panel returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse panel response: %w", err)
	}

	return c.extractBalance(doc)
}

func (c *NescoClient) fetchCSRFToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.panelURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("panel request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("panel returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse panel page: %w", err)
	}

	token, _ := doc.Find(`input[name="_token"]`).First().Attr("value")
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("CSRF _token input not found")
	}
	return token, nil
}

func (c *NescoClient) extractBalance(doc *goquery.Document) (decimal.Decimal, error) {
	inputs := doc.Find(`input[type="text"][disabled]`)
	if inputs.Length() == 0 {
		return decimal.Zero, fmt.Errorf("no disabled text inputs found in response")
	}
	if c.balanceInputIndex >= inputs.Length() {
		return decimal.Zero, fmt.Errorf("balance input index %d out of range; found %d inputs",
			c.balanceInputIndex, inputs.Length())
	}

	raw, _ := inputs.Eq(c.balanceInputIndex).Attr("value")
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return decimal.Zero, fmt.Errorf("balance field empty or missing")
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse balance %q: %w", raw, err)
	}
	return balance, nil
}
