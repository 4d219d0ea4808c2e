package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Exporter ships the registry after a one-shot pass, when no scraper is
// around to read it: as a node_exporter textfile, to a Pushgateway, or both.
type Exporter struct {
	Textfile       string
	PushgatewayURL string
	Job            string
	Timeout        time.Duration
}

// Enabled reports whether any destination is configured.
func (e Exporter) Enabled() bool { return e.Textfile != "" || e.PushgatewayURL != "" }

// Export writes g to every configured destination and joins their errors.
func (e Exporter) Export(ctx context.Context, g prometheus.Gatherer) error {
	var errs []error
	if e.Textfile != "" {
		if err := prometheus.WriteToTextfile(e.Textfile, g); err != nil {
			errs = append(errs, fmt.Errorf("write textfile: %w", err))
		}
	}
	if e.PushgatewayURL != "" {
		timeout := e.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		job := e.Job
		if job == "" {
			job = namespace
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := push.New(e.PushgatewayURL, job).Gatherer(g).PushContext(pctx); err != nil {
			errs = append(errs, fmt.Errorf("push metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}
