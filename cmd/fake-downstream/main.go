// fake-downstream stands in for the notification and payment functions when the
// gateway runs locally or in smoke tests.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/austindbirch/prestus_bff/internal/logging"
)

const (
	notificationPath = "/api/send-notification"
	paymentPath      = "/api/process-payment"
	maxListLimit     = 200
)

type notification struct {
	ID        string `json:"id"`
	BookingID any    `json:"bookingId"`
	Recipient any    `json:"recipient"`
	Message   string `json:"message"`
	Provider  string `json:"provider"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

type payment struct {
	PaymentID string `json:"paymentId"`
	BookingID any    `json:"bookingId"`
	Amount    any    `json:"amount"`
	Method    any    `json:"method"`
	Provider  string `json:"provider"`
	Status    string `json:"status"`
}

// functions holds the in-memory state of both simulated functions
type functions struct {
	mu            sync.Mutex
	failFirstN    int
	calls         map[string]int // per path
	notifications []notification // newest last
	logger        *logging.Logger
}

func newFunctions(failFirstN int, logger *logging.Logger) *functions {
	return &functions{failFirstN: failFirstN, calls: map[string]int{}, logger: logger}
}

func main() {
	logger := logging.New("fake-downstream")

	failFirstN := 0
	if v := os.Getenv("FAIL_FIRST_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			failFirstN = n
		}
	}
	addr := ":7071"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	fn := newFunctions(failFirstN, logger)
	logger.Plain().WithFields(map[string]any{"addr": addr, "fail_first_n": failFirstN}).Info("fake-downstream listening")
	if err := http.ListenAndServe(addr, fn.routes()); err != nil {
		logger.Plain().WithError(err).Fatal("serve failed")
	}
}

func (f *functions) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("GET "+notificationPath, f.flaky(notificationPath, f.listNotifications))
	mux.HandleFunc("POST "+notificationPath, f.flaky(notificationPath, f.sendNotification))
	mux.HandleFunc("POST "+paymentPath, f.flaky(paymentPath, f.processPayment))
	return mux
}

// flaky fails the first N calls to path with a 500
func (f *functions) flaky(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[path]++
		n := f.calls[path]
		f.mu.Unlock()

		if n <= f.failFirstN {
			f.logger.Plain().WithFields(map[string]any{"path": path, "call": n, "fail_first_n": f.failFirstN}).Warn("simulated failure")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "temporary failure"})
			return
		}
		next(w, r)
	}
}

func (f *functions) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}
	limit = min(limit, maxListLimit)

	f.mu.Lock()
	items := make([]notification, 0, limit)
	for i := len(f.notifications) - 1; i >= 0 && len(items) < limit; i-- {
		items = append(items, f.notifications[i])
	}
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (f *functions) sendNotification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookingID any    `json:"bookingId"`
		Recipient any    `json:"recipient"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if isEmpty(req.BookingID) || isEmpty(req.Recipient) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "required fields: bookingId, recipient"})
		return
	}

	n := notification{
		ID:        uuid.NewString(),
		BookingID: req.BookingID,
		Recipient: req.Recipient,
		Message:   req.Message,
		Provider:  "console",
		Status:    "sent",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if n.Message == "" {
		n.Message = "notification for booking"
	}

	f.mu.Lock()
	f.notifications = append(f.notifications, n)
	f.mu.Unlock()

	f.logger.Plain().WithBooking(n.BookingID).WithField("recipient", n.Recipient).Info(n.Message)
	writeJSON(w, http.StatusOK, n)
}

func (f *functions) processPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookingID any `json:"bookingId"`
		Amount    any `json:"amount"`
		Method    any `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if isEmpty(req.BookingID) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "required field: bookingId"})
		return
	}

	p := payment{
		PaymentID: uuid.NewString(),
		BookingID: req.BookingID,
		Amount:    req.Amount,
		Method:    req.Method,
		Provider:  "sandbox",
		Status:    "approved",
	}
	if isEmpty(p.Amount) {
		p.Amount = 0
	}
	if isEmpty(p.Method) {
		p.Method = "cash"
	}

	f.logger.Plain().WithBooking(p.BookingID).WithField("payment_id", p.PaymentID).Info("payment approved")
	writeJSON(w, http.StatusOK, p)
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
