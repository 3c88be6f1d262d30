package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Services holds the base addresses of the downstream backends
type Services struct {
	JobsURL         string // jobs catalog, e.g. http://microservice-jobs:3001
	BookingsURL     string // bookings store, e.g. http://microservice-bookings:3002
	NotificationURL string // notification sender function endpoint
	PaymentURL      string // payment processor function endpoint
}

type Dashboard struct {
	NotificationsLimit int // default cap on recent notifications
}

type NSQ struct {
	NsqdTCPAddr   string // e.g. nsqd:4150; empty disables workflow events
	WorkflowTopic string // NSQ topic for booking workflow outcomes
}

type Config struct {
	AppName         string
	HTTPPort        string // :3000
	GRPCPort        string // :50051, empty disables the gRPC health server
	TriggerPayment  bool   // booking creation calls the payment processor
	ShutdownTimeout time.Duration
	Services        Services
	Dashboard       Dashboard
	NSQ             NSQ
}

// Keys are looked up in the environment in upper case (viper.AutomaticEnv).
const (
	KeyAppName            = "app_name"
	KeyPort               = "port"
	KeyGRPCPort           = "grpc_port"
	KeyTriggerPayment     = "trigger_payment"
	KeyShutdownTimeout    = "shutdown_timeout"
	KeyJobsURL            = "jobs_service_url"
	KeyBookingsURL        = "bookings_service_url"
	KeyNotificationURL    = "notification_function_url"
	KeyPaymentURL         = "payment_function_url"
	KeyNotificationsLimit = "dashboard_notifications_limit"
	KeyNsqdTCPAddr        = "nsqd_tcp_addr"
	KeyWorkflowTopic      = "nsq_workflow_topic"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyAppName, "prestus-bff")
	v.SetDefault(KeyPort, "3000")
	v.SetDefault(KeyGRPCPort, "")
	v.SetDefault(KeyTriggerPayment, false)
	v.SetDefault(KeyShutdownTimeout, 10*time.Second)
	v.SetDefault(KeyJobsURL, "http://microservice-jobs:3001")
	v.SetDefault(KeyBookingsURL, "http://microservice-bookings:3002")
	v.SetDefault(KeyNotificationURL, "http://function-notification:7071/api/send-notification")
	v.SetDefault(KeyPaymentURL, "http://function-payment:7071/api/process-payment")
	v.SetDefault(KeyNotificationsLimit, 20)
	v.SetDefault(KeyNsqdTCPAddr, "")
	v.SetDefault(KeyWorkflowTopic, "booking_workflows")
}

// NewViper returns a viper instance with the gateway defaults and environment lookup enabled
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	// PORT wins over HTTP_PORT when both are set
	_ = v.BindEnv(KeyPort, "PORT", "HTTP_PORT")
	return v
}

// Load builds the immutable gateway configuration from v
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		AppName:         v.GetString(KeyAppName),
		HTTPPort:        listenAddr(v.GetString(KeyPort)),
		GRPCPort:        listenAddr(v.GetString(KeyGRPCPort)),
		TriggerPayment:  v.GetBool(KeyTriggerPayment),
		ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
		Services: Services{
			JobsURL:         strings.TrimRight(v.GetString(KeyJobsURL), "/"),
			BookingsURL:     strings.TrimRight(v.GetString(KeyBookingsURL), "/"),
			NotificationURL: v.GetString(KeyNotificationURL),
			PaymentURL:      v.GetString(KeyPaymentURL),
		},
		Dashboard: Dashboard{
			NotificationsLimit: v.GetInt(KeyNotificationsLimit),
		},
		NSQ: NSQ{
			NsqdTCPAddr:   v.GetString(KeyNsqdTCPAddr),
			WorkflowTopic: v.GetString(KeyWorkflowTopic),
		},
	}

	if cfg.Dashboard.NotificationsLimit <= 0 {
		cfg.Dashboard.NotificationsLimit = 20
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv loads the configuration from defaults and environment variables only
func FromEnv() (Config, error) {
	return Load(NewViper())
}

// Validate checks that every downstream address is an absolute URL
func (c Config) Validate() error {
	for name, raw := range map[string]string{
		KeyJobsURL:         c.Services.JobsURL,
		KeyBookingsURL:     c.Services.BookingsURL,
		KeyNotificationURL: c.Services.NotificationURL,
		KeyPaymentURL:      c.Services.PaymentURL,
	} {
		u, err := url.ParseRequestURI(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s: %q is not an absolute url", name, raw)
		}
	}
	if c.HTTPPort == "" {
		return fmt.Errorf("%s is required", KeyPort)
	}
	return nil
}

// listenAddr accepts either "3000" or ":3000" (or host:port)
func listenAddr(port string) string {
	port = strings.TrimSpace(port)
	if port == "" || strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}
