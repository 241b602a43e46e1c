package render

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const DefaultChartBaseURL = "https://quickchart.io/chart"

const maxChartBytes = 8 * 1024 * 1024

// ChartClient fetches rendered bar charts from a QuickChart-compatible
// HTTP service.
type ChartClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewChartClient(baseURL string, httpClient *http.Client) *ChartClient {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultChartBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ChartClient{baseURL: baseURL, httpClient: httpClient}
}

// ChartURL builds the render URL for the given counts. Labels are sorted
// so the same mapping always produces the same URL.
func ChartURL(baseURL string, counts map[string]int) (string, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultChartBaseURL
	}

	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	data := make([]int, len(labels))
	for i, label := range labels {
		data[i] = counts[label]
	}

	config := map[string]any{
		"type": "bar",
		"data": map[string]any{
			"labels": labels,
			"datasets": []map[string]any{{
				"label":           "Engagement sources",
				"data":            data,
				"backgroundColor": "rgba(40,150,255,0.8)",
			}},
		},
	}
	b, err := json.Marshal(config)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("c", string(b))
	q.Set("w", "800")
	q.Set("h", "450")
	q.Set("format", "png")
	return baseURL + "?" + q.Encode(), nil
}

// Fetch renders the counts as a PNG via the remote service.
func (c *ChartClient) Fetch(ctx context.Context, counts map[string]int) ([]byte, error) {
	target, err := ChartURL(c.baseURL, counts)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxChartBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("chart service status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("chart service returned empty body")
	}
	return body, nil
}
