// Package feed adapts the Polymarket market websocket into validated ticks.
package feed

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"polytrader/internal/model"
	"polytrader/internal/obs"
	"polytrader/pkg/exception"
)

const DefaultMarketURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

// Publisher receives normalized ticks. The hub implements it.
type Publisher interface {
	PublishTick(ctx context.Context, tick model.Tick) error
}

// Polymarket streams the market channel of the CLOB websocket.
type Polymarket struct {
	wss     *ws.WebSocket
	metrics *obs.Metrics
	now     func() time.Time
}

func NewPolymarket(ctx context.Context, url string, metrics *obs.Metrics) *Polymarket {
	if url == "" {
		url = DefaultMarketURL
	}
	return &Polymarket{
		wss:     ws.New(ctx, url),
		metrics: metrics,
		now:     time.Now,
	}
}

func (p *Polymarket) Start(ctx context.Context) error {
	if err := p.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	return nil
}

func (p *Polymarket) Close() {
	p.wss.Close()
}

type subscribeRequest struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"`
}

// Subscribe joins the market channel of the given asset ids. The request is
// registered so it is sent again after a reconnect. The first book snapshot
// acknowledges it.
func (p *Polymarket) Subscribe(ctx context.Context, assetIDs []string) error {
	appendIntoRegister := true
	if err := p.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := subscribeRequest{AssetIDs: assetIDs, Type: "market"}
			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			if books, ok := ws.ReadMessage[[]event](m); ok && len(books) > 0 {
				return true, nil
			}
			ev, ok := ws.ReadMessage[event](m)
			return ok && ev.EventType == eventBook, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(exception.ErrSubscribeFailed, err.Error()).With("assets", len(assetIDs))
	}

	logs.Infof("subscribed market channel for %d assets", len(assetIDs))
	return nil
}

// Observe forwards every valid tick to pub until ctx ends or shutdown.
// Invalid events are dropped with a warning and counted as feed anomalies.
func (p *Polymarket) Observe(ctx context.Context, pub Publisher) (unsubscribe func()) {
	ch, cancel := p.wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				p.dispatch(ctx, m, pub)
			}
		}
	}()

	return cancel
}

func (p *Polymarket) dispatch(ctx context.Context, m ws.Message, pub Publisher) {
	var events []event
	if batch, ok := ws.ReadMessage[[]event](m); ok {
		events = batch
	} else if ev, ok := ws.ReadMessage[event](m); ok {
		events = []event{ev}
	} else {
		return
	}

	now := p.now()
	ticks, errs := normalize(events, now)
	for _, err := range errs {
		p.metrics.IncFeedAnomaly()
		logs.Warnf("drop market event, err: %+v", err)
	}
	for _, t := range ticks {
		p.metrics.ObserveFeedDelay(now.Sub(t.Timestamp))
		if err := pub.PublishTick(ctx, t); err != nil {
			logs.Errorf("publish tick %s, err: %+v", t.InstrumentID, err)
		}
	}
}
