package downstream

import (
	"github.com/austindbirch/prestus_bff/internal/config"
)

// Logical downstream names, also reported by /health
const (
	JobsService          = "jobs"
	BookingsService      = "bookings"
	NotificationsService = "notification-function"
	PaymentsService      = "payment-function"
)

// Names lists every downstream the gateway talks to, in a stable order
func Names() []string {
	return []string{JobsService, BookingsService, NotificationsService, PaymentsService}
}

// Services bundles one client per downstream
type Services struct {
	Jobs          *Client
	Bookings      *Client
	Notifications *Client
	Payments      *Client
}

// NewServices binds a client to each configured base address
func NewServices(cfg config.Services, opts ...Option) Services {
	return Services{
		Jobs:          New(JobsService, cfg.JobsURL, opts...),
		Bookings:      New(BookingsService, cfg.BookingsURL, opts...),
		Notifications: New(NotificationsService, cfg.NotificationURL, opts...),
		Payments:      New(PaymentsService, cfg.PaymentURL, opts...),
	}
}
