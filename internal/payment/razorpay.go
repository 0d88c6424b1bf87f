// Package payment creates hosted payment links and verifies the provider's
// payment notifications.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/razorpay/razorpay-go"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
)

var ErrNoLinkURL = errors.New("payment provider returned no link url")

// linkCreator is satisfied by the razorpay client's PaymentLink resource.
type linkCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayGateway creates one payment link per appointment. The link's
// reference_id carries the appointment id back in the webhook.
type RazorpayGateway struct {
	links       linkCreator
	currency    string
	callbackURL string
	expiry      time.Duration
	now         func() time.Time
}

func NewRazorpayGateway(keyID, keySecret, callbackURL string) *RazorpayGateway {
	client := razorpay.NewClient(keyID, keySecret)
	return &RazorpayGateway{
		links:       client.PaymentLink,
		currency:    "INR",
		callbackURL: callbackURL,
		expiry:      24 * time.Hour,
		now:         time.Now,
	}
}

func (g *RazorpayGateway) CreateSession(ctx context.Context, a appointment.Appointment, p appointment.Patient) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data := map[string]interface{}{
		// amounts are sent in the smallest currency unit
		"amount":       a.Amount * 100,
		"currency":     g.currency,
		"reference_id": a.ID.String(),
		"description":  fmt.Sprintf("Appointment on %s at %s", a.SlotDate, a.SlotTime),
		"expire_by":    g.now().Add(g.expiry).Unix(),
		"customer": map[string]interface{}{
			"name":  p.Name,
			"email": p.Email,
		},
		"notify": map[string]interface{}{
			"email": p.Email != "",
		},
		"notes": map[string]interface{}{
			"appointment_id": a.ID.String(),
			"doctor_id":      a.DoctorID.String(),
		},
	}
	if g.callbackURL != "" {
		data["callback_url"] = g.callbackURL
		data["callback_method"] = "get"
	}

	body, err := g.links.Create(data, nil)
	if err != nil {
		return "", fmt.Errorf("create payment link: %w", err)
	}

	url, _ := body["short_url"].(string)
	if url == "" {
		return "", ErrNoLinkURL
	}
	return url, nil
}
