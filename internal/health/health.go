package health

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpc_health "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Status is the liveness report. Downstreams are listed, not probed.
type Status struct {
	Status   string   `json:"status"`
	Services []string `json:"services"`
}

// HTTPHandler returns an HTTP handler that reports the gateway as alive together
// with the logical names of the services it fronts
func HTTPHandler(services []string) http.HandlerFunc {
	if services == nil {
		services = []string{}
	}
	body, _ := json.Marshal(Status{Status: "ok", Services: services})
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

// NewGRPCServer returns a gRPC server exposing the standard health service, plus the
// health server so callers can flip the serving status during shutdown
func NewGRPCServer() (*grpc.Server, *grpc_health.Server) {
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	hs := grpc_health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}
