package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/razorpay/razorpay-go/utils"
)

const EventPaymentLinkPaid = "payment_link.paid"

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrIgnoredEvent marks a well-formed notification that does not confirm
	// a payment. Callers acknowledge it without acting.
	ErrIgnoredEvent = errors.New("webhook event ignored")
)

// Confirmation is a verified successful payment.
type Confirmation struct {
	AppointmentID uuid.UUID
	LinkID        string
	PaymentID     string
}

type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		PaymentLink struct {
			Entity struct {
				ID          string `json:"id"`
				ReferenceID string `json:"reference_id"`
				Status      string `json:"status"`
			} `json:"entity"`
		} `json:"payment_link"`
		Payment struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Parse checks the X-Razorpay-Signature of body and extracts the paid
// appointment.
func (v *WebhookVerifier) Parse(body []byte, signature string) (Confirmation, error) {
	if v.secret == "" || signature == "" || !utils.VerifyWebhookSignature(string(body), signature, v.secret) {
		return Confirmation{}, ErrInvalidSignature
	}

	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return Confirmation{}, fmt.Errorf("decode webhook: %w", err)
	}
	if wb.Event != EventPaymentLinkPaid {
		return Confirmation{}, ErrIgnoredEvent
	}

	link := wb.Payload.PaymentLink.Entity
	id, err := uuid.Parse(link.ReferenceID)
	if err != nil {
		return Confirmation{}, fmt.Errorf("webhook reference_id %q: %w", link.ReferenceID, err)
	}

	return Confirmation{
		AppointmentID: id,
		LinkID:        link.ID,
		PaymentID:     wb.Payload.Payment.Entity.ID,
	}, nil
}
