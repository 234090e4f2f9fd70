package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// IntentKindRegistration marks provider sessions created by this system.
const IntentKindRegistration = "event_registration"

// Metadata keys carried through the payment provider.
const (
	metaParticipantID    = "participantId"
	metaParticipantEmail = "participantEmail"
	metaEventID          = "eventId"
	metaPrice            = "price"
	metaKind             = "kind"
)

var (
	// ErrIntentMissing means the provider session carried no metadata at all.
	ErrIntentMissing = errors.New("checkout intent missing")
	// ErrIntentKind means the metadata belongs to some other payment flow.
	ErrIntentKind = errors.New("checkout intent kind mismatch")
	// ErrIntentInvalid means the kind matched but required fields were absent or malformed.
	ErrIntentInvalid = errors.New("checkout intent invalid")
)

// CheckoutIntent is the registration request travelling through the external payment flow.
type CheckoutIntent struct {
	EventID          string
	ParticipantID    string
	ParticipantEmail string
	PriceCents       int64
	Kind             string
}

// NewCheckoutIntent builds a registration intent.
func NewCheckoutIntent(eventID, participantID, email string, priceCents int64) CheckoutIntent {
	return CheckoutIntent{
		EventID:          eventID,
		ParticipantID:    participantID,
		ParticipantEmail: email,
		PriceCents:       priceCents,
		Kind:             IntentKindRegistration,
	}
}

// Metadata encodes the intent as provider metadata. Price is written as a decimal string.
func (i CheckoutIntent) Metadata() map[string]string {
	return map[string]string{
		metaParticipantID:    i.ParticipantID,
		metaParticipantEmail: i.ParticipantEmail,
		metaEventID:          i.EventID,
		metaPrice:            formatPrice(i.PriceCents),
		metaKind:             i.Kind,
	}
}

// ParseCheckoutIntent validates metadata received back from the provider.
func ParseCheckoutIntent(md map[string]string) (CheckoutIntent, error) {
	if len(md) == 0 {
		return CheckoutIntent{}, ErrIntentMissing
	}
	if md[metaKind] != IntentKindRegistration {
		return CheckoutIntent{}, fmt.Errorf("%w: %q", ErrIntentKind, md[metaKind])
	}
	in := CheckoutIntent{
		EventID:          strings.TrimSpace(md[metaEventID]),
		ParticipantID:    strings.TrimSpace(md[metaParticipantID]),
		ParticipantEmail: strings.TrimSpace(md[metaParticipantEmail]),
		Kind:             IntentKindRegistration,
	}
	if in.EventID == "" || in.ParticipantID == "" {
		return CheckoutIntent{}, fmt.Errorf("%w: event and participant are required", ErrIntentInvalid)
	}
	price, err := strconv.ParseFloat(md[metaPrice], 64)
	if err != nil || price < 0 {
		return CheckoutIntent{}, fmt.Errorf("%w: price %q", ErrIntentInvalid, md[metaPrice])
	}
	in.PriceCents = CentsFromPrice(price)
	return in, nil
}

func formatPrice(cents int64) string {
	return strconv.FormatFloat(float64(cents)/100, 'f', 2, 64)
}
