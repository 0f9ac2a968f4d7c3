package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"storefront/internal/config"
	"time"
)

const (
	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkTimestamp = "20060102150405"
	maxBodyBytes = 1 << 20
)

// Daraja timestamps are East Africa Time.
var eat = time.FixedZone("EAT", 3*60*60)

type MpesaClient struct {
	cfg  config.MpesaConfig
	http *http.Client
	now  func() time.Time
}

func NewMpesaClient(cfg config.MpesaConfig, httpClient *http.Client) *MpesaClient {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &MpesaClient{cfg: cfg, http: httpClient, now: time.Now}
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`

	// Error shape returned on 4xx/5xx.
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (c *MpesaClient) InitiateCharge(ctx context.Context, req ChargeRequest) (ChargeResponse, error) {
	if err := c.cfg.Validate(); err != nil {
		return ChargeResponse{}, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	req, err := req.validate()
	if err != nil {
		return ChargeResponse{}, err
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return ChargeResponse{}, err
	}

	timestamp := c.now().In(eat).Format(stkTimestamp)
	body, err := json.Marshal(stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount,
		PartyA:            req.PhoneNumber,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  req.Reference,
		TransactionDesc:   req.Description,
	})
	if err != nil {
		return ChargeResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+stkPushPath, bytes.NewReader(body))
	if err != nil {
		return ChargeResponse{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ChargeResponse{}, fmt.Errorf("%w: submit charge: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return ChargeResponse{}, fmt.Errorf("%w: read charge response: %v", ErrGatewayUnavailable, err)
	}

	var out stkPushResponse
	_ = json.Unmarshal(payload, &out)

	if resp.StatusCode != http.StatusOK || out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		rej := &ChargeRejectedError{
			HTTPStatus:   resp.StatusCode,
			ResponseCode: out.ResponseCode,
			Description:  out.ResponseDescription,
			Payload:      payload,
		}
		if rej.ResponseCode == "" {
			rej.ResponseCode = out.ErrorCode
		}
		if rej.Description == "" {
			rej.Description = out.ErrorMessage
		}
		return ChargeResponse{}, rej
	}

	return ChargeResponse{
		MerchantRequestID: out.MerchantRequestID,
		CheckoutRequestID: out.CheckoutRequestID,
		CustomerMessage:   out.CustomerMessage,
	}, nil
}

// accessToken exchanges consumer credentials for a short-lived bearer token.
// Tokens are not cached; each charge performs one exchange.
func (c *MpesaClient) accessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token exchange returned http %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&tok); err != nil {
		return "", fmt.Errorf("%w: decode token: %v", ErrGatewayUnavailable, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrGatewayUnavailable)
	}
	return tok.AccessToken, nil
}

// Password is base64(shortcode + passkey + timestamp).
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}
