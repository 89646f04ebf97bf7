package service

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"kilnfire"
	"kilnfire/internal/logger"
)

const webhookTimeout = 10 * time.Second

// WebhookNotifier posts firing transition events to the user-configured
// webhook URL. It satisfies engine.Notifier; the engine invokes it on a
// goroutine so a slow endpoint never stalls control.
type WebhookNotifier struct {
	settings *MonitoringService
	client   *http.Client
	log      *logger.Logger
}

func NewWebhookNotifier(settings *MonitoringService, log *logger.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		settings: settings,
		client:   &http.Client{Timeout: webhookTimeout},
		log:      log,
	}
}

type webhookPayload struct {
	EventID     string  `json:"eventId"`
	Event       string  `json:"event"`
	ProfileName string  `json:"profileName"`
	PeakTempC   float64 `json:"peakTempC,omitempty"`
	ErrorCode   string  `json:"errorCode,omitempty"`
	DurationS   uint32  `json:"durationS"`
}

func (n *WebhookNotifier) FiringComplete(profileName string, peakTempC float64, durationS uint32) {
	n.post(webhookPayload{
		Event:       "firing_complete",
		ProfileName: profileName,
		PeakTempC:   peakTempC,
		DurationS:   durationS,
	})
}

func (n *WebhookNotifier) FiringFailed(profileName string, code kilnfire.FiringErrorCode, durationS uint32) {
	n.post(webhookPayload{
		Event:       "firing_error",
		ProfileName: profileName,
		ErrorCode:   string(code),
		DurationS:   durationS,
	})
}

func (n *WebhookNotifier) post(p webhookPayload) {
	set := n.settings.Snapshot()
	if !set.NotificationsEnabled || set.WebhookURL == "" {
		return
	}

	p.EventID = uuid.NewString()
	body, err := json.Marshal(p)
	if err != nil {
		n.log.Warnw("webhook payload encode failed", "err", err)
		return
	}

	resp, err := n.client.Post(set.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		n.log.Warnw("webhook POST failed", "err", err)
		return
	}
	defer resp.Body.Close()
	n.log.Infow("webhook sent", "event", p.Event, "status", resp.StatusCode)
}
