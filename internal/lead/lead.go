// Package lead turns a completed booking flow into a lead and forwards it to
// the CRM webhook.
package lead

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/djbooking/funnel/internal/domain"
	"github.com/djbooking/funnel/pkg/httpclient"
)

// ErrRejected marks a lead the webhook refused with a 4xx. Resending the same
// lead gives the same answer.
var ErrRejected = errors.New("lead rejected by webhook")

// Lead is the flattened view of a completed booking flow.
type Lead struct {
	FlowID      string                    `json:"flowId"`
	EventType   string                    `json:"eventType,omitempty"`
	EventDate   string                    `json:"eventDate,omitempty"`
	PackageID   string                    `json:"packageId,omitempty"`
	Name        string                    `json:"name,omitempty"`
	Email       string                    `json:"email,omitempty"`
	Phone       string                    `json:"phone,omitempty"`
	Steps       map[string]domain.Payload `json:"steps"`
	CompletedAt time.Time                 `json:"completedAt"`
}

// Build merges the stored steps of a flow into a Lead. Later steps win when
// two steps carry the same field.
func Build(flowID string, progress []domain.StepProgress, completedAt time.Time) Lead {
	l := Lead{
		FlowID:      flowID,
		Steps:       make(map[string]domain.Payload, len(progress)),
		CompletedAt: completedAt.UTC(),
	}

	for _, rec := range progress {
		l.Steps[rec.StepID] = rec.Payload
		setString(&l.EventType, rec.Payload, "eventType")
		setString(&l.EventDate, rec.Payload, "eventDate")
		setString(&l.PackageID, rec.Payload, "packageId")
		setString(&l.Name, rec.Payload, "name")
		setString(&l.Email, rec.Payload, "email")
		setString(&l.Phone, rec.Payload, "phone")
	}

	return l
}

func setString(dst *string, p domain.Payload, key string) {
	v, ok := p[key]
	if !ok || v == nil {
		return
	}
	switch t := v.(type) {
	case string:
		if t != "" {
			*dst = t
		}
	case float64:
		*dst = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		*dst = fmt.Sprint(t)
	}
}

// Poster is the HTTP capability the forwarder needs. It is satisfied by
// httpclient.CircuitBreakerClient.
type Poster interface {
	Post(ctx context.Context, url string, contentType string, body io.Reader) (*http.Response, error)
}

// Forwarder posts leads to a webhook.
type Forwarder struct {
	client Poster
	url    string
	logger *slog.Logger
}

// NewForwarder creates a forwarder posting to url.
func NewForwarder(client Poster, url string, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		client: client,
		url:    url,
		logger: logger,
	}
}

// Forward sends the lead as JSON. Any non-2xx answer is returned as an error.
func (f *Forwarder) Forward(ctx context.Context, l Lead) error {
	body, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal lead: %w", err)
	}

	// bytes.Reader lets the retrying client replay the body.
	resp, err := f.client.Post(ctx, f.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post lead for flow %s: %w", l.FlowID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status := resp.StatusCode
		err := httpclient.ParseResponseError(resp, "lead-webhook")
		if httpclient.IsClientError(status) {
			f.logger.WarnContext(ctx, "lead rejected by webhook",
				slog.String("flow_id", l.FlowID),
				slog.Int("status", status),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("%w: %w", ErrRejected, err)
		}
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	f.logger.InfoContext(ctx, "lead forwarded",
		slog.String("flow_id", l.FlowID),
		slog.Int("status", resp.StatusCode),
	)
	return nil
}
