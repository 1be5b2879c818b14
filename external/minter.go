package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/NoNameWrath/poap-api/util"
)

const (
	mintServicePath = "/mint"
)

// MintServiceClient talks to the credential minting service: a single
// idempotent-by-caller operation that writes the credential to the ledger
// and returns its identifier. Retry and backoff are the service's problem;
// here a failure is just surfaced to the caller.
type MintServiceClient struct {
	url    string
	client *http.Client
}

type mintServiceRequest struct {
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	MetadataURI string `json:"metadata_uri"`
}

type mintServiceResponse struct {
	Asset string `json:"asset"`
	Error string `json:"error,omitempty"`
}

func NewMintServiceClient(serviceURL string, timeout time.Duration) *MintServiceClient {
	return &MintServiceClient{
		url:    serviceURL,
		client: &http.Client{Timeout: timeout},
	}
}

// Mint issues a credential to the owner address and returns its identifier.
func (c *MintServiceClient) Mint(ctx context.Context, owner, name, metadataURI string) (string, error) {
	u, err := url.JoinPath(c.url, mintServicePath)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(mintServiceRequest{
		Owner:       owner,
		Name:        name,
		MetadataURI: metadataURI,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// Limit the response size to 1MB; the expected payload is tiny.
	respBody, err := util.ReadLimitedBody(resp, 1024*1024)
	if err != nil {
		return "", err
	}

	var mintResp mintServiceResponse
	if err := json.Unmarshal(respBody, &mintResp); err != nil {
		return "", fmt.Errorf("invalid mint service response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		if mintResp.Error != "" {
			return "", fmt.Errorf("mint service returned status %d: %s", resp.StatusCode, mintResp.Error)
		}
		return "", fmt.Errorf("mint service returned status %d", resp.StatusCode)
	}
	if mintResp.Asset == "" {
		return "", errors.New("mint service returned no asset identifier")
	}

	return mintResp.Asset, nil
}
