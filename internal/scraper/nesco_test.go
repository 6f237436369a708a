package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shahariarshuvo/nesco-helper/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const panelPage = `<html><body>
<form method="POST">
<input type="hidden" name="_token" value="csrf-token-123">
<input type="text" name="cust_no">
</form>
</body></html>`

// resultPage renders the post-lookup panel with the balance at the given
// position among the disabled inputs.
func resultPage(balance string, index int) string {
	var b strings.Builder
	b.WriteString(`<html><body><form>`)
	b.WriteString(`<input type="hidden" name="_token" value="csrf-token-123">`)
	for i := 0; i <= index; i++ {
		value := fmt.Sprintf("field-%d", i)
		if i == index {
			value = balance
		}
		fmt.Fprintf(&b, `<input type="text" disabled value="%s">`, value)
	}
	b.WriteString(`</form></body></html>`)
	return b.String()
}

func newPanelServer(t *testing.T, index int, balance string) (*httptest.Server, *url.Values) {
	t.Helper()
	var captured url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, panelPage)
			return
		}
		require.NoError(t, r.ParseForm())
		captured = r.PostForm
		fmt.Fprint(w, resultPage(balance, index))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func newClient(panelURL string, index int) *NescoClient {
	return NewNescoClient(config.ScraperConfig{
		PanelURL:          panelURL,
		BalanceInputIndex: index,
		Timeout:           5 * time.Second,
	})
}

func TestFetchBalance(t *testing.T) {
	srv, form := newPanelServer(t, 14, "1,234.56")
	client := newClient(srv.URL, 14)

	balance, err := client.FetchBalance(context.Background(), " 12345678 ")
	require.NoError(t, err)
	assert.Equal(t, "1234.56", balance.String())

	// The lookup form carries the CSRF token and the trimmed meter number.
	assert.Equal(t, "csrf-token-123", form.Get("_token"))
	assert.Equal(t, "12345678", form.Get("cust_no"))
	assert.Equal(t, submitLabel, form.Get("submit"))
}

func TestFetchBalanceIndexOutOfRange(t *testing.T) {
	srv, _ := newPanelServer(t, 2, "500.00")
	client := newClient(srv.URL, 14)

	_, err := client.FetchBalance(context.Background(), "12345678")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestFetchBalanceEmptyField(t *testing.T) {
	srv, _ := newPanelServer(t, 3, "  ")
	client := newClient(srv.URL, 3)

	_, err := client.FetchBalance(context.Background(), "12345678")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestFetchBalanceUnparseable(t *testing.T) {
	srv, _ := newPanelServer(t, 3, "N/A")
	client := newClient(srv.URL, 3)

	_, err := client.FetchBalance(context.Background(), "12345678")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse balance")
}

func TestFetchBalanceMissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>maintenance</body></html>`)
	}))
	t.Cleanup(srv.Close)
	client := newClient(srv.URL, 14)

	_, err := client.FetchBalance(context.Background(), "12345678")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "_token")
}

func TestFetchBalancePanelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	client := newClient(srv.URL, 14)

	_, err := client.FetchBalance(context.Background(), "12345678")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
