package mail

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const otpBodyFormat = `Hello,

You requested to reset your password. Here is your OTP:

%s

The OTP is valid for %d minutes.

If you didn't request this, please ignore this email.

Best Regards,
HealthDom`

// Mailer delivers transactional mail through an HTTP mail provider. When no
// provider URL is configured it degrades to logging, which keeps development
// and tests off the network.
type Mailer struct {
	url    string
	apiKey string
	from   string
	client *http.Client
	logger *zap.Logger
}

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// NewMailer creates the mailer. url may be empty to disable real delivery.
func NewMailer(url, apiKey, from string, logger *zap.Logger) *Mailer {
	return &Mailer{
		url:    url,
		apiKey: apiKey,
		from:   from,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// SendOTP delivers the password-reset code to the address.
func (m *Mailer) SendOTP(to, code string, validFor time.Duration) error {
	body := fmt.Sprintf(otpBodyFormat, code, int(validFor.Minutes()))

	if m.url == "" {
		m.logger.Info("mailer disabled, otp not delivered", zap.String("to", to))
		return nil
	}

	payload, err := json.Marshal(sendRequest{
		From:    m.from,
		To:      to,
		Subject: "Your OTP Code",
		Text:    body,
	})
	if err != nil {
		return fmt.Errorf("encode mail request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, m.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("api-key", m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mail provider returned %d: %s", resp.StatusCode, b)
	}
	return nil
}

// SendOTPAsync delivers on a background goroutine so email latency never
// holds up the request handler. Failure is logged and non-fatal.
func (m *Mailer) SendOTPAsync(to, code string, validFor time.Duration) {
	go func() {
		if err := m.SendOTP(to, code, validFor); err != nil {
			m.logger.Error("otp email delivery failed", zap.String("to", to), zap.Error(err))
		}
	}()
}
