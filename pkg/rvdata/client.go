package rvdata

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	util_http "github.com/ewhitman/davit/pkg/util/http"
)

const DefaultBaseURL = "https://service.rvdata.us/api/fileset/"

type Config struct {
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	RetryMax int           `yaml:"retry_max"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.BaseURL, flagPrefix+"base-url", DefaultBaseURL, `R2R fileset API base URL`)
	f.DurationVar(&c.Timeout, flagPrefix+"timeout", 30*time.Second, `R2R API request timeout`)
	f.IntVar(&c.RetryMax, flagPrefix+"retry-max", 3, `R2R API max retries`)
}

// APIError is a non-success or empty response from the fileset API.
type APIError struct {
	FilesetID  string
	StatusCode int
	Reason     string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("rvdata fileset %s: status %d", e.FilesetID, e.StatusCode)
	}
	return fmt.Sprintf("rvdata fileset %s: %s", e.FilesetID, e.Reason)
}

// Fileset is the descriptive metadata record the API returns per fileset.
type Fileset struct {
	CruiseID      string `json:"cruise_id"`
	VesselName    string `json:"vessel_name"`
	DeviceName    string `json:"device_name"`
	MakeModelName string `json:"make_model_name"`
	Files         int    `json:"files"`
	TotalBytes    int64  `json:"total_bytes"`
	URL           string `json:"url"`
}

type filesetResponse struct {
	Data []Fileset `json:"data"`
}

type Client struct {
	cfg        Config
	httpClient *retryablehttp.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	c := retryablehttp.NewClient()
	c.RetryMax = cfg.RetryMax
	c.HTTPClient.Timeout = cfg.Timeout
	c.Logger = nil

	return &Client{
		cfg:        cfg,
		httpClient: c,
	}
}

func (c *Client) GetFileset(ctx context.Context, filesetID string) (*Fileset, error) {
	reqURL := c.cfg.BaseURL + "?fileset_id=" + url.QueryEscape(filesetID)
	req, err := retryablehttp.NewRequest("GET", reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "get fileset metadata")
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "get fileset metadata")
	}
	defer resp.Body.Close()

	if err := util_http.EnsureSuccessStatusCode(resp); err != nil {
		return nil, &APIError{FilesetID: filesetID, StatusCode: resp.StatusCode, Reason: err.Error()}
	}

	res := filesetResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, errors.Wrap(err, "get fileset metadata")
	}

	if len(res.Data) == 0 {
		return nil, &APIError{FilesetID: filesetID, Reason: "empty data"}
	}

	return &res.Data[0], nil
}
