package og

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"polytrader/internal/model"
)

// GatewayVenue places orders through an order gateway that owns signing and
// venue credentials. The gateway answers with the venue order id and reports
// fills back on the admin API.
type GatewayVenue struct {
	URL    string
	Client *http.Client
}

func NewGatewayVenue(url string) *GatewayVenue {
	return &GatewayVenue{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

type gatewayResponse struct {
	OrderID string `json:"order_id"`
	Error   string `json:"error"`
}

func (g *GatewayVenue) Place(ctx context.Context, req model.OrderRequest) (string, error) {
	body, err := sonic.ConfigStd.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.ClientOrderID)

	resp, err := g.Client.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, "post order").With("order_id", req.ClientOrderID)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "read gateway response").With("order_id", req.ClientOrderID)
	}
	var out gatewayResponse
	if len(raw) > 0 {
		if err := sonic.Unmarshal(raw, &out); err != nil {
			return "", errors.Wrap(err, "decode gateway response").With("status", resp.StatusCode)
		}
	}
	switch {
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("gateway status %d: %s", resp.StatusCode, out.Error)
	case out.OrderID == "":
		return "", fmt.Errorf("gateway returned no order id")
	}
	return out.OrderID, nil
}
