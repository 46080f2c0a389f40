package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"txdata/internal/domain"
	"txdata/internal/util"
)

// Compile-time interface check.
var _ Client = (*SinotradeClient)(nil)

// SinotradeClient talks to a Shioaji HTTP bridge: a thin REST service in
// front of the SinoPac Shioaji API. The bridge issues a bearer token at
// login; historical queries reuse it until SinoPac expires it server-side,
// which surfaces as ErrAuthExpired.
type SinotradeClient struct {
	baseURL    string
	apiKey     string
	secretKey  string
	certPath   string
	certPass   string
	token      string
	httpClient *http.Client
}

// NewSinotradeClient creates a client for the bridge at baseURL holding the
// given credentials. No network call is made until Login.
func NewSinotradeClient(baseURL, apiKey, secretKey, certPath, certPass string) *SinotradeClient {
	return &SinotradeClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		secretKey:  secretKey,
		certPath:   certPath,
		certPass:   certPass,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// bridge wire types

type loginRequest struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	CAPath    string `json:"ca_path"`
	CAPasswd  string `json:"ca_passwd"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type contractsResponse struct {
	Contracts []struct {
		Code         string `json:"code"`
		Name         string `json:"name"`
		DeliveryDate string `json:"delivery_date"` // YYYY/MM/DD, Shioaji convention
	} `json:"contracts"`
}

// ticksResponse mirrors Shioaji's columnar tick payload.
type ticksResponse struct {
	TS        []int64   `json:"ts"` // epoch nanoseconds
	Close     []float64 `json:"close"`
	Volume    []int64   `json:"volume"`
	BidPrice  []float64 `json:"bid_price"`
	BidVolume []int64   `json:"bid_volume"`
	AskPrice  []float64 `json:"ask_price"`
	AskVolume []int64   `json:"ask_volume"`
	TickType  []int     `json:"tick_type"` // 0 deal, 1 buy, 2 sell
}

type kbarsResponse struct {
	TS     []int64   `json:"ts"` // epoch nanoseconds of interval start
	Open   []float64 `json:"Open"`
	High   []float64 `json:"High"`
	Low    []float64 `json:"Low"`
	Close  []float64 `json:"Close"`
	Volume []int64   `json:"Volume"`
}

type usageResponse struct {
	Bytes      int64 `json:"bytes"`
	LimitBytes int64 `json:"limit_bytes"`
}

// Login authenticates with the bridge and activates the signing certificate.
// Credential rejection maps to ErrCredentialInvalid, certificate rejection
// to ErrCertificateInvalid; both are fatal at startup.
func (c *SinotradeClient) Login(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{
		APIKey:    c.apiKey,
		SecretKey: c.secretKey,
		CAPath:    c.certPath,
		CAPasswd:  c.certPass,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.loginError(resp)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}
	if lr.Token == "" {
		return fmt.Errorf("login succeeded but bridge returned no token")
	}

	c.token = lr.Token
	return nil
}

func (c *SinotradeClient) loginError(resp *http.Response) error {
	er := decodeError(resp)
	switch er.Code {
	case "CA_INVALID", "CA_ACTIVATION_FAILED":
		return fmt.Errorf("%w: %s", ErrCertificateInvalid, er.Message)
	default:
		return fmt.Errorf("%w: %s", ErrCredentialInvalid, er.Message)
	}
}

// Logout releases the bridge session.
func (c *SinotradeClient) Logout(ctx context.Context) error {
	if c.token == "" {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/v1/logout", nil, nil)
	c.token = ""
	return err
}

// Usage returns historical-data quota consumption.
func (c *SinotradeClient) Usage(ctx context.Context) (Usage, error) {
	var ur usageResponse
	if err := c.do(ctx, http.MethodGet, "/v1/usage", nil, &ur); err != nil {
		return Usage{}, err
	}
	return Usage{BytesUsed: ur.Bytes, LimitBytes: ur.LimitBytes}, nil
}

// Contracts lists TXF futures contracts known to the bridge.
func (c *SinotradeClient) Contracts(ctx context.Context) ([]domain.Contract, error) {
	var cr contractsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/contracts/futures/TXF", nil, &cr); err != nil {
		return nil, err
	}

	contracts := make([]domain.Contract, 0, len(cr.Contracts))
	for _, rc := range cr.Contracts {
		delivery, err := time.Parse("2006/01/02", rc.DeliveryDate)
		if err != nil {
			return nil, fmt.Errorf("contract %s: bad delivery date %q: %w", rc.Code, rc.DeliveryDate, err)
		}
		contracts = append(contracts, domain.Contract{Code: rc.Code, Name: rc.Name, Delivery: delivery})
	}
	return contracts, nil
}

// FetchTicks returns every tick for contractID on the given calendar day.
func (c *SinotradeClient) FetchTicks(ctx context.Context, contractID string, date time.Time) ([]domain.Tick, error) {
	q := url.Values{}
	q.Set("contract", contractID)
	q.Set("date", date.Format(domain.DateLayout))

	var tr ticksResponse
	if err := c.do(ctx, http.MethodGet, "/v1/ticks", q, &tr); err != nil {
		return nil, fmt.Errorf("ticks %s %s: %w", contractID, date.Format(domain.DateLayout), err)
	}

	ticks := make([]domain.Tick, 0, len(tr.TS))
	for i := range tr.TS {
		t := domain.Tick{TimestampNS: tr.TS[i], Side: domain.SideDeal}
		if i < len(tr.Close) {
			t.Price = tr.Close[i]
		}
		if i < len(tr.Volume) {
			t.Size = tr.Volume[i]
		}
		if i < len(tr.BidPrice) {
			t.BidPrice = tr.BidPrice[i]
		}
		if i < len(tr.BidVolume) {
			t.BidSize = tr.BidVolume[i]
		}
		if i < len(tr.AskPrice) {
			t.AskPrice = tr.AskPrice[i]
		}
		if i < len(tr.AskVolume) {
			t.AskSize = tr.AskVolume[i]
		}
		if i < len(tr.TickType) {
			switch tr.TickType[i] {
			case 1:
				t.Side = domain.SideBuy
			case 2:
				t.Side = domain.SideSell
			}
		}
		ticks = append(ticks, t)
	}
	return ticks, nil
}

// FetchKBars returns minute bars for an inclusive date range. Timestamps are
// rendered in the market timezone.
func (c *SinotradeClient) FetchKBars(ctx context.Context, contractID string, start, end time.Time) ([]domain.Bar, error) {
	q := url.Values{}
	q.Set("contract", contractID)
	q.Set("start", start.Format(domain.DateLayout))
	q.Set("end", end.Format(domain.DateLayout))

	var kr kbarsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/kbars", q, &kr); err != nil {
		return nil, fmt.Errorf("kbars %s: %w", contractID, err)
	}

	loc := util.MarketLocation()
	barsOut := make([]domain.Bar, 0, len(kr.TS))
	for i := range kr.TS {
		b := domain.Bar{Timestamp: time.Unix(0, kr.TS[i]).In(loc)}
		if i < len(kr.Open) {
			b.Open = kr.Open[i]
		}
		if i < len(kr.High) {
			b.High = kr.High[i]
		}
		if i < len(kr.Low) {
			b.Low = kr.Low[i]
		}
		if i < len(kr.Close) {
			b.Close = kr.Close[i]
		}
		if i < len(kr.Volume) {
			b.Volume = kr.Volume[i]
		}
		barsOut = append(barsOut, b)
	}
	return barsOut, nil
}

// do issues one authenticated bridge request and decodes the JSON response
// into out when out is non-nil.
func (c *SinotradeClient) do(ctx context.Context, method, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		er := decodeError(resp)
		if resp.StatusCode == http.StatusUnauthorized || er.Code == "TOKEN_EXPIRED" {
			return fmt.Errorf("%w: %s", ErrAuthExpired, er.Message)
		}
		return fmt.Errorf("bridge %s: %s (%s)", path, er.Message, er.Code)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) errorResponse {
	er := errorResponse{Code: "UNKNOWN", Message: resp.Status}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return er
	}
	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
		return parsed
	}
	return er
}
