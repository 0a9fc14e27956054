package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"carma/internal/models"

	"github.com/redis/go-redis/v9"
)

// GatewayClient talks to a node's JSON gateway.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

func NewGatewayClient(baseURL string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// UseRedisCache caches finalized statuses, which never change.
func (c *GatewayClient) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

func (c *GatewayClient) GetBlockItemStatus(ctx context.Context, txHash string) (*models.BlockItemStatus, error) {
	cacheKey := "carma:txstatus:" + txHash
	var status models.BlockItemStatus
	if c.readCache(ctx, cacheKey, &status) {
		return &status, nil
	}

	endpoint := fmt.Sprintf("%s/v0/transactionStatus/%s", c.baseURL, url.PathEscape(txHash))
	if err := c.doGet(ctx, endpoint, &status); err != nil {
		return nil, fmt.Errorf("transaction status %s: %w", txHash, err)
	}
	if status.Status == models.TxStatusFinalized {
		c.writeCache(ctx, cacheKey, status)
	}
	return &status, nil
}

func (c *GatewayClient) InvokeContract(ctx context.Context, req models.InvokeContractRequest) (*models.InvokeContractResult, error) {
	var res models.InvokeContractResult
	if err := c.doPost(ctx, c.baseURL+"/v0/invokeContract", req, &res); err != nil {
		return nil, fmt.Errorf("invoke %s: %w", req.Method, err)
	}
	return &res, nil
}

func (c *GatewayClient) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *GatewayClient) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *GatewayClient) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *GatewayClient) doPost(ctx context.Context, endpoint string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *GatewayClient) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
