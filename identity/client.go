package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gullin-backend/config"
)

var ErrUnavailable = errors.New("identity provider unavailable")

// Application is the payload for handing a verification to the provider.
// Field names follow the provider's wire format.
type Application struct {
	TID               string   `json:"tid"`
	MerchantAccount   string   `json:"man"`
	Email             string   `json:"tea"`
	FirstName         string   `json:"bfn"`
	LastName          string   `json:"bln"`
	DateOfBirth       string   `json:"dob"`
	Street            string   `json:"bsn"`
	City              string   `json:"bc"`
	State             string   `json:"bs"`
	Zipcode           string   `json:"bz"`
	Country           string   `json:"bco"`
	DocType           string   `json:"docType"`
	DocCountry        string   `json:"docCountry"`
	ScanData          string   `json:"scanData"`
	BacksideImageData string   `json:"backsideImageData"`
	FaceImages        []string `json:"faceImages"`
	IP                string   `json:"ip"`
	Phone             string   `json:"phn"`
	Stage             int      `json:"stage"`
}

type Decision struct {
	State string `json:"state"`
	// Raw is the unparsed response body, kept as the audit note.
	Raw string `json:"-"`
}

type Provider interface {
	Submit(ctx context.Context, app *Application) error
	Decision(ctx context.Context, tid string) (*Decision, error)
}

type Client struct {
	baseURL string
	user    string
	key     string
	http    *http.Client
}

func NewClient(cfg config.IdentityConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		user:    cfg.APIUser,
		key:     cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Submit(ctx context.Context, app *Application) error {
	body, err := json.Marshal(app)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req)
	return err
}

func (c *Client) Decision(ctx context.Context, tid string) (*Decision, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+tid, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var d Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: malformed decision for %s: %v", ErrUnavailable, tid, err)
	}
	d.Raw = string(raw)
	return &d, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: no API URL configured", ErrUnavailable)
	}
	req.SetBasicAuth(c.user, c.key)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s %s returned %d after %s", ErrUnavailable, req.Method, req.URL.Path, resp.StatusCode, time.Since(start))
	}
	return raw, nil
}
