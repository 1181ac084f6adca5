// Adapted from vercel/turborepo's internal/client package.
package cache

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/forgerepo/forge/internal/config"
	"github.com/forgerepo/forge/internal/util"
)

// _maxRemoteFailCount is the number of failed requests we allow before we
// stop trying to reach the remote cache for the rest of the run. The count
// is never reset, so failures need not be consecutive.
const _maxRemoteFailCount = 3

// ErrTooManyFailures is returned once the remote cache circuit breaker trips.
var ErrTooManyFailures = errors.New("too many failures contacting remote cache")

// remoteCacheClient is the client satisfying cache_http.go's client
// interface, talking to a remote HTTP cache using the go-retryablehttp
// transport with a small circuit breaker layered on top.
type remoteCacheClient struct {
	remoteConfig *config.RemoteCacheConfig
	version      string

	// currentFailCount must be accessed via the atomic package.
	currentFailCount uint64

	httpClient *retryablehttp.Client
}

func newRemoteCacheClient(cfg *config.Config) (client, error) {
	c := &remoteCacheClient{
		remoteConfig: cfg.RemoteConfig,
		version:      cfg.Version,
		httpClient: &retryablehttp.Client{
			HTTPClient: &http.Client{
				Timeout: 20 * time.Second,
			},
			RetryWaitMin: 2 * time.Second,
			RetryWaitMax: 10 * time.Second,
			RetryMax:     2,
			Backoff:      retryablehttp.DefaultBackoff,
			Logger:       cfg.Logger,
		},
	}
	c.httpClient.CheckRetry = c.checkRetry
	return c, nil
}

func (c *remoteCacheClient) retryPolicy(resp *http.Response, err error) (bool, error) {
	if err != nil {
		var certErr x509.UnknownAuthorityError
		if errors.As(err, &certErr) {
			atomic.AddUint64(&c.currentFailCount, 1)
			return false, err
		}
		atomic.AddUint64(&c.currentFailCount, 1)
		return true, nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		atomic.AddUint64(&c.currentFailCount, 1)
		return true, nil
	}

	if resp.StatusCode == 0 || (resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented) {
		atomic.AddUint64(&c.currentFailCount, 1)
		return true, fmt.Errorf("unexpected HTTP status %s", resp.Status)
	}

	return false, nil
}

func (c *remoteCacheClient) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		atomic.AddUint64(&c.currentFailCount, 1)
		return false, ctx.Err()
	}
	shouldRetry, retryErr := c.retryPolicy(resp, err)
	if shouldRetry {
		if blockedErr := c.okToRequest(); blockedErr != nil {
			return false, blockedErr
		}
	}
	return shouldRetry, retryErr
}

func (c *remoteCacheClient) okToRequest() error {
	if atomic.LoadUint64(&c.currentFailCount) < _maxRemoteFailCount {
		return nil
	}
	return ErrTooManyFailures
}

func (c *remoteCacheClient) userAgent() string {
	return fmt.Sprintf("forge %v %v %v (%v)", c.version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func (c *remoteCacheClient) makeURL(endpoint string) string {
	return fmt.Sprintf("%v%v", c.remoteConfig.ApiUrl, endpoint)
}

func (c *remoteCacheClient) teamParams() string {
	params := url.Values{}
	if c.remoteConfig.TeamId != "" && strings.HasPrefix(c.remoteConfig.TeamId, "team_") {
		params.Add("teamId", c.remoteConfig.TeamId)
	}
	if c.remoteConfig.TeamSlug != "" {
		params.Add("slug", c.remoteConfig.TeamSlug)
	}
	encoded := params.Encode()
	if encoded == "" {
		return ""
	}
	return "?" + encoded
}

// GetTeamID returns the team identifier used to scope signature verification.
func (c *remoteCacheClient) GetTeamID() string {
	return c.remoteConfig.TeamId
}

// PutArtifact uploads a cache artifact's already-compressed tar body.
func (c *remoteCacheClient) PutArtifact(hash string, body []byte, duration int, tag string) error {
	if err := c.okToRequest(); err != nil {
		return err
	}
	req, err := retryablehttp.NewRequest(http.MethodPut, c.makeURL("/v8/artifacts/"+hash+c.teamParams()), body)
	if err != nil {
		return fmt.Errorf("invalid cache URL: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("x-artifact-duration", fmt.Sprintf("%v", duration))
	req.Header.Set("Authorization", "Bearer "+c.remoteConfig.Token)
	req.Header.Set("User-Agent", c.userAgent())
	if tag != "" {
		req.Header.Set("x-artifact-tag", tag)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to store files in HTTP cache: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusForbidden {
		return c.handle403(resp.Body)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to store files in HTTP cache: %s", resp.Status)
	}
	return nil
}

// FetchArtifact downloads a cache artifact. A 404 is returned as a normal
// response (not an error) so callers can distinguish "miss" from "failure".
func (c *remoteCacheClient) FetchArtifact(hash string) (*http.Response, error) {
	return c.getArtifact(hash, http.MethodGet)
}

// ArtifactExists issues a HEAD existence check for hash.
func (c *remoteCacheClient) ArtifactExists(hash string) (*http.Response, error) {
	return c.getArtifact(hash, http.MethodHead)
}

func (c *remoteCacheClient) getArtifact(hash string, method string) (*http.Response, error) {
	if err := c.okToRequest(); err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequest(method, c.makeURL("/v8/artifacts/"+hash+c.teamParams()), nil)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.remoteConfig.Token)
	req.Header.Set("User-Agent", c.userAgent())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch artifact: %w", err)
	}
	if resp.StatusCode == http.StatusForbidden {
		err = c.handle403(resp.Body)
		_ = resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func (c *remoteCacheClient) handle403(body io.Reader) error {
	raw, err := ioutil.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read response %v", err)
	}
	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &apiErr); err != nil {
		return fmt.Errorf("failed to read response (%s): %w", string(raw), err)
	}
	if strings.HasPrefix(apiErr.Code, "remote_caching_") {
		status, err := util.CachingStatusFromString(apiErr.Code[len("remote_caching_"):])
		if err != nil {
			return err
		}
		return &util.CacheDisabledError{Status: status, Message: apiErr.Message}
	}
	return fmt.Errorf("unknown status %v: %v", apiErr.Code, apiErr.Message)
}
