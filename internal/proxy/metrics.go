// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package proxy

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	exchangesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "local_logger_proxy_exchanges_total",
			Help: "Total request/response exchanges recorded, by direction",
		},
		[]string{"direction"},
	)

	bodyTruncations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "local_logger_proxy_body_truncations_total",
			Help: "Total bodies truncated at max_body_size, by direction",
		},
		[]string{"direction"},
	)

	leafMintFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "local_logger_proxy_leaf_mint_failures_total",
			Help: "Total failed inbound TLS handshakes due to leaf certificate minting or negotiation errors",
		},
	)
)

// MetricsHandler returns the Prometheus scrape endpoint handler. Callers
// mount this only when observability.metrics_addr is set; an unset address
// means no metrics listener is started at all.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
