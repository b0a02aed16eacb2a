package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"chirp/internal/config"
	"chirp/internal/core/contracts"
	"chirp/internal/core/domain"
)

// Dispatcher delivers fallback notifications as data-only pushes over an
// FCM-style HTTP endpoint. Data-only because the client app renders the
// notification itself and must be able to judge staleness (call pushes carry
// their initiation time).
type Dispatcher struct {
	endpoint  string
	serverKey string
	client    *http.Client
	users     domain.UserRepository
	log       *slog.Logger
}

func NewDispatcher(cfg config.PushConfig, users domain.UserRepository, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		endpoint:  cfg.Endpoint,
		serverKey: cfg.ServerKey,
		client:    &http.Client{Timeout: cfg.Timeout},
		users:     users,
		log:       log,
	}
}

type pushRequest struct {
	To       string            `json:"to"`
	Priority string            `json:"priority"`
	Data     map[string]string `json:"data"`
}

func (d *Dispatcher) Dispatch(ctx context.Context, n contracts.Notification) error {
	user, err := d.users.GetUserByID(ctx, n.Recipient)
	if err != nil {
		return err
	}
	if user.DeviceToken == "" {
		return domain.ErrNoDeviceToken
	}

	data := make(map[string]string, len(n.Data)+1)
	data["notificationType"] = string(n.Type)
	for k, v := range n.Data {
		// "from" and "to" are reserved words on the push transport
		switch k {
		case "from":
			data["senderId"] = v
		case "to":
			data["recipientId"] = v
		default:
			data[k] = v
		}
	}

	body, err := json.Marshal(pushRequest{
		To:       user.DeviceToken,
		Priority: "high",
		Data:     data,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+d.serverKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push error: status %d", resp.StatusCode)
	}
	d.log.InfoContext(ctx, "push - dispatch - sent", "recipient", n.Recipient, "type", n.Type)
	return nil
}
