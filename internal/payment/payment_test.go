package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
)

type fakeLinks struct {
	got  map[string]interface{}
	resp map[string]interface{}
	err  error
}

func (f *fakeLinks) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.got = data
	return f.resp, f.err
}

func testGateway(links linkCreator) *RazorpayGateway {
	return &RazorpayGateway{
		links:       links,
		currency:    "INR",
		callbackURL: "https://clinic.example.com/paid",
		expiry:      time.Hour,
		now:         func() time.Time { return time.Unix(1700000000, 0) },
	}
}

func TestCreateSession(t *testing.T) {
	links := &fakeLinks{resp: map[string]interface{}{"id": "plink_1", "short_url": "https://rzp.io/i/xyz"}}
	g := testGateway(links)

	a := appointment.Appointment{ID: uuid.New(), DoctorID: uuid.New(), Amount: 750, SlotDate: "14_2_2025", SlotTime: "10:30 AM"}
	url, err := g.CreateSession(context.Background(), a, appointment.Patient{Name: "Asha", Email: "asha@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://rzp.io/i/xyz", url)

	assert.Equal(t, int64(75000), links.got["amount"])
	assert.Equal(t, a.ID.String(), links.got["reference_id"])
	assert.Equal(t, int64(1700003600), links.got["expire_by"])
	assert.Equal(t, "https://clinic.example.com/paid", links.got["callback_url"])
}

func TestCreateSession_Errors(t *testing.T) {
	a := appointment.Appointment{ID: uuid.New()}

	_, err := testGateway(&fakeLinks{err: errors.New("bad request")}).CreateSession(context.Background(), a, appointment.Patient{})
	assert.ErrorContains(t, err, "bad request")

	_, err = testGateway(&fakeLinks{resp: map[string]interface{}{}}).CreateSession(context.Background(), a, appointment.Patient{})
	assert.ErrorIs(t, err, ErrNoLinkURL)
}

func sign(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookVerifier(t *testing.T) {
	id := uuid.New()
	body := fmt.Sprintf(`{"event":"payment_link.paid","payload":{"payment_link":{"entity":{"id":"plink_1","reference_id":%q,"status":"paid"}},"payment":{"entity":{"id":"pay_9"}}}}`, id)
	v := NewWebhookVerifier("whsec")

	conf, err := v.Parse([]byte(body), sign(body, "whsec"))
	require.NoError(t, err)
	assert.Equal(t, Confirmation{AppointmentID: id, LinkID: "plink_1", PaymentID: "pay_9"}, conf)

	_, err = v.Parse([]byte(body), sign(body, "other"))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = v.Parse([]byte(body), "")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	other := `{"event":"payment_link.cancelled","payload":{}}`
	_, err = v.Parse([]byte(other), sign(other, "whsec"))
	assert.ErrorIs(t, err, ErrIgnoredEvent)

	bad := `{"event":"payment_link.paid","payload":{"payment_link":{"entity":{"reference_id":"nope"}}}}`
	_, err = v.Parse([]byte(bad), sign(bad, "whsec"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrIgnoredEvent)
}
