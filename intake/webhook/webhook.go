// Package webhook is the HTTP adapter for marketplace-B "buy-box
// changed" push notifications (C1, §4.1, §6). It serves a single
// POST endpoint, validates the payload syntactically, enqueues it to
// the shared internal stream, and returns immediately — grounded on
// the teacher's cmd/server/main.go style of raw net/http.HandleFunc
// registration with manual CORS header-setting and an OPTIONS
// short-circuit per handler.
package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/epic1st/repricer/intake"
	"github.com/epic1st/repricer/logging"
)

// payload mirrors the marketplace-B wire format (§6 "Source B").
type payload struct {
	EventType           string  `json:"eventType"`
	ItemID              string  `json:"itemId"`
	SellerID            string  `json:"sellerId"`
	Timestamp           string  `json:"timestamp"`
	CurrentBuyboxPrice  float64 `json:"currentBuyboxPrice"`
	CurrentBuyboxWinner string  `json:"currentBuyboxWinner"`
	Offers              []struct {
		SellerID  string  `json:"sellerId"`
		Price     float64 `json:"price"`
		Condition string  `json:"condition"`
	} `json:"offers"`
}

// noopAck is the Acker for webhook-sourced events: the HTTP response
// already returned 202 before the event reaches the orchestrator, so
// there is nothing left to acknowledge or retry (§4.1, §7).
type noopAck struct{}

func (noopAck) Ack()   {}
func (noopAck) Retry() {}

// Adapter serves the webhook endpoint and enqueues accepted payloads
// onto the shared internal stream.
type Adapter struct {
	path         string
	secretHeader string
	sharedSecret string
	logger       *logging.Logger

	out chan<- intake.RawEvent
}

// NewAdapter builds a webhook adapter bound to the shared output
// channel. An empty sharedSecret disables the header check.
func NewAdapter(path, secretHeader, sharedSecret string, out chan<- intake.RawEvent, logger *logging.Logger) *Adapter {
	return &Adapter{
		path:         path,
		secretHeader: secretHeader,
		sharedSecret: sharedSecret,
		logger:       logger,
		out:          out,
	}
}

// Register wires the adapter's handler into mux under its configured
// path, matching the teacher's per-route CORS + OPTIONS short-circuit
// pattern.
func (a *Adapter) Register(mux *http.ServeMux) {
	mux.HandleFunc(a.path, a.handle)
}

func (a *Adapter) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+a.secretHeader)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if a.sharedSecret != "" && r.Header.Get(a.secretHeader) != a.sharedSecret {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if p.ItemID == "" || p.SellerID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event := intake.NewRawEvent(intake.SourceWebhook, body, noopAck{})
	select {
	case a.out <- event:
		w.WriteHeader(http.StatusAccepted)
	default:
		// Internal channel bound reached (§4.3 backpressure): the pool
		// is saturated and the webhook adapter sheds load rather than
		// blocking the caller.
		a.logger.Warn("webhook: internal stream full, rejecting with 503", logging.String("item_id", p.ItemID))
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}
