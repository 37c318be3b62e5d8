package fedex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/config"
	"bitbucket.org/bloomspal/sonia_backend/models"
	"bitbucket.org/bloomspal/sonia_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	productionBaseURL = "https://apis.fedex.com"
	sandboxBaseURL    = "https://apis-sandbox.fedex.com"

	maxRequestRetries = 3
)

// Client talks to the FedEx Track API v1 with OAuth2 client
// credentials. Safe for concurrent use; the token is refreshed under a
// mutex shortly before expiry.
type Client struct {
	clientId      string
	clientSecret  string
	accountNumber string
	baseURL       string
	batchSize     int
	httpClient    *http.Client
	logger        *logrus.Logger

	mu             sync.Mutex
	accessToken    string
	tokenExpiresAt time.Time
}

func NewClient(settings config.TrackerSettings) *Client {
	baseURL := productionBaseURL
	if os.Getenv("FEDEX_SANDBOX") == "1" {
		baseURL = sandboxBaseURL
	}
	return &Client{
		clientId:      os.Getenv("FEDEX_CLIENT_ID"),
		clientSecret:  os.Getenv("FEDEX_CLIENT_SECRET"),
		accountNumber: os.Getenv("FEDEX_ACCOUNT_NUMBER"),
		baseURL:       baseURL,
		batchSize:     settings.CarrierBatchSize,
		httpClient:    &http.Client{Timeout: settings.CarrierTimeout},
		logger:        config.GetLogger(),
	}
}

func (c *Client) authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiresAt) {
		return nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientId)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.doWithRetry(req, func() io.Reader { return strings.NewReader(form.Encode()) })
	if err != nil {
		return fmt.Errorf("fedex auth: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("fedex auth: status %d: %s", resp.StatusCode, body)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("fedex auth: %w", err)
	}
	if token.ExpiresIn == 0 {
		token.ExpiresIn = 3600
	}
	c.accessToken = token.AccessToken
	// refresh a minute early so in-flight requests never carry an
	// expired token
	c.tokenExpiresAt = time.Now().Add(time.Duration(token.ExpiresIn-60) * time.Second)
	return nil
}

// TrackBatch looks up the current status of every tracking number,
// splitting into API-sized batches. Per-number failures come back in
// the result's Err field; the returned error is reserved for failures
// that sink the whole call, like authentication.
func (c *Client) TrackBatch(ctx context.Context, trackingNumbers []string) (map[string]TrackResult, error) {
	results := make(map[string]TrackResult, len(trackingNumbers))
	if len(trackingNumbers) == 0 {
		return results, nil
	}
	if err := c.authenticate(ctx); err != nil {
		return nil, err
	}

	batchSize := c.batchSize
	if batchSize <= 0 {
		batchSize = 30
	}
	for start := 0; start < len(trackingNumbers); start += batchSize {
		end := min(start+batchSize, len(trackingNumbers))
		batch := trackingNumbers[start:end]
		if err := ctx.Err(); err != nil {
			return results, err
		}
		c.trackOneBatch(ctx, batch, results)
	}
	return results, nil
}

func (c *Client) trackOneBatch(ctx context.Context, batch []string, results map[string]TrackResult) {
	type trackingNumberInfo struct {
		TrackingNumber string `json:"trackingNumber"`
	}
	type trackingInfo struct {
		TrackingNumberInfo trackingNumberInfo `json:"trackingNumberInfo"`
	}
	payload := struct {
		TrackingInfo         []trackingInfo `json:"trackingInfo"`
		IncludeDetailedScans bool           `json:"includeDetailedScans"`
	}{IncludeDetailedScans: true}
	for _, tn := range batch {
		payload.TrackingInfo = append(payload.TrackingInfo, trackingInfo{trackingNumberInfo{tn}})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		c.failBatch(batch, results, err)
		return
	}

	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/track/v1/trackingnumbers", bytes.NewReader(body))
	if err != nil {
		c.failBatch(batch, results, err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.doWithRetry(req, func() io.Reader { return bytes.NewReader(body) })
	if err != nil {
		c.failBatch(batch, results, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.failBatch(batch, results, fmt.Errorf("track api status %d: %s", resp.StatusCode, snippet))
		return
	}

	var envelope struct {
		Output struct {
			CompleteTrackResults []json.RawMessage `json:"completeTrackResults"`
		} `json:"output"`
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.failBatch(batch, results, err)
		return
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.failBatch(batch, results, err)
		return
	}

	for _, item := range envelope.Output.CompleteTrackResults {
		result := parseTrackResult(item)
		if result.TrackingNumber != "" {
			results[result.TrackingNumber] = result
		}
	}
	for _, tn := range batch {
		if _, ok := results[tn]; !ok {
			results[tn] = TrackResult{
				TrackingNumber: tn,
				SoniaStatus:    models.ShipmentStatusUnknown,
				Err:            fmt.Errorf("tracking number absent from carrier response"),
			}
		}
	}
}

func (c *Client) failBatch(batch []string, results map[string]TrackResult, err error) {
	config.LogError(c.logger, "client.go", "trackOneBatch", "carrier batch failed", batch, err)
	for _, tn := range batch {
		results[tn] = TrackResult{
			TrackingNumber: tn,
			SoniaStatus:    models.ShipmentStatusUnknown,
			Err:            err,
		}
	}
}

// doWithRetry retries 429 and 5xx responses and transport errors with
// exponential backoff. newBody rebuilds the request body per attempt.
func (c *Client) doWithRetry(req *http.Request, newBody func() io.Reader) (*http.Response, error) {
	var resp *http.Response
	var err error
	for attempt := 0; attempt < maxRequestRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(wait):
			}
			clone := req.Clone(req.Context())
			clone.Body = io.NopCloser(newBody())
			req = clone
		}
		resp, err = c.httpClient.Do(req)
		if err != nil {
			continue
		}
		switch resp.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			resp.Body.Close()
			continue
		}
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// parseTrackResult flattens one completeTrackResults item. The carrier
// nests everything under trackResults[0].
func parseTrackResult(raw json.RawMessage) TrackResult {
	var item struct {
		TrackingNumber string `json:"trackingNumber"`
		TrackResults   []struct {
			LatestStatusDetail struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"latestStatusDetail"`
			DateAndTimes []struct {
				Type     string `json:"type"`
				DateTime string `json:"dateTime"`
			} `json:"dateAndTimes"`
			ScanEvents []struct {
				Date             string `json:"date"`
				EventDescription string `json:"eventDescription"`
				ScanLocation     struct {
					City string `json:"city"`
				} `json:"scanLocation"`
			} `json:"scanEvents"`
			RecipientInformation struct {
				Address address `json:"address"`
			} `json:"recipientInformation"`
			DestinationLocation struct {
				LocationContactAndAddress struct {
					Address address `json:"address"`
				} `json:"locationContactAndAddress"`
			} `json:"destinationLocation"`
		} `json:"trackResults"`
	}

	result := TrackResult{Raw: raw, SoniaStatus: models.ShipmentStatusUnknown}
	if err := json.Unmarshal(raw, &item); err != nil {
		result.Err = err
		return result
	}
	result.TrackingNumber = item.TrackingNumber
	if len(item.TrackResults) == 0 {
		result.FedexStatus = "No track results"
		return result
	}
	detail := item.TrackResults[0]

	result.FedexStatusCode = detail.LatestStatusDetail.Code
	result.FedexStatus = detail.LatestStatusDetail.Description
	result.SoniaStatus = MapStatus(result.FedexStatusCode, result.FedexStatus)

	for _, dt := range detail.DateAndTimes {
		switch dt.Type {
		case "ESTIMATED_DELIVERY", "ESTIMATED_DELIVERY_TIMESTAMP":
			if result.EstimatedDeliveryDate == nil {
				result.EstimatedDeliveryDate = utils.ParseFlexibleDate(dt.DateTime)
			}
		case "ACTUAL_PICKUP", "SHIP":
			if result.ShipDate == nil {
				result.ShipDate = utils.ParseFlexibleDate(dt.DateTime)
			}
		case "ACTUAL_DELIVERY":
			if result.DeliveryDate == nil {
				result.DeliveryDate = utils.ParseFlexibleDate(dt.DateTime)
			}
		}
	}

	for i, event := range detail.ScanEvents {
		if i >= 5 {
			break
		}
		result.ScanEvents = append(result.ScanEvents, ScanEvent{
			Date:        event.Date,
			Description: event.EventDescription,
			City:        event.ScanLocation.City,
		})
	}
	// label creation and ship date fall back to the oldest matching
	// scan event
	for i := len(detail.ScanEvents) - 1; i >= 0; i-- {
		desc := strings.ToLower(detail.ScanEvents[i].EventDescription)
		if result.LabelCreationDate == nil && containsAny(desc, "shipment information sent", "label created", "shipping label") {
			result.LabelCreationDate = utils.ParseFlexibleDate(detail.ScanEvents[i].Date)
		}
		if result.ShipDate == nil && containsAny(desc, "picked up", "package received") {
			result.ShipDate = utils.ParseFlexibleDate(detail.ScanEvents[i].Date)
		}
	}

	result.DestinationCity = detail.RecipientInformation.Address.City
	result.DestinationState = detail.RecipientInformation.Address.StateOrProvinceCode
	result.DestinationCountry = detail.RecipientInformation.Address.CountryCode
	if result.DestinationCity == "" {
		addr := detail.DestinationLocation.LocationContactAndAddress.Address
		result.DestinationCity = addr.City
		result.DestinationState = addr.StateOrProvinceCode
		result.DestinationCountry = addr.CountryCode
	}

	result.IsDelivered = result.SoniaStatus == models.ShipmentStatusDelivered || result.DeliveryDate != nil
	return result
}

type address struct {
	City                string `json:"city"`
	StateOrProvinceCode string `json:"stateOrProvinceCode"`
	CountryCode         string `json:"countryCode"`
}

func containsAny(s string, terms ...string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
