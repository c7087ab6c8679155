package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"

	"polytrader/internal/model"
)

// Notifier delivers a fired alert.
type Notifier interface {
	Notify(ctx context.Context, a model.Alert) error
}

// LogNotifier writes alerts to the log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, a model.Alert) error {
	logs.Warnf("alert %s on %s at %s: %s", a.RuleName, a.InstrumentID, a.Price, a.Message)
	return nil
}

// DiscordNotifier posts alerts to a Discord webhook.
type DiscordNotifier struct {
	URL    string
	Client *http.Client
}

func NewDiscordNotifier(url string) *DiscordNotifier {
	return &DiscordNotifier{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

type discordMessage struct {
	Content string `json:"content"`
}

func (n *DiscordNotifier) Notify(ctx context.Context, a model.Alert) error {
	body, err := sonic.ConfigStd.Marshal(discordMessage{
		Content: fmt.Sprintf("**%s** `%s` price %s\n%s", a.RuleName, a.InstrumentID, a.Price, a.Message),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook status %d", resp.StatusCode)
	}
	return nil
}
