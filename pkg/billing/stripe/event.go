package stripe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event types reconciled by this package.
const (
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
)

// Kind discriminates the decoded event payload.
type Kind int

const (
	KindUnhandled Kind = iota
	KindSubscriptionCreated
	KindSubscriptionUpdated
	KindSubscriptionDeleted
	KindInvoicePaymentSucceeded
)

func (k Kind) String() string {
	switch k {
	case KindSubscriptionCreated:
		return "subscription_created"
	case KindSubscriptionUpdated:
		return "subscription_updated"
	case KindSubscriptionDeleted:
		return "subscription_deleted"
	case KindInvoicePaymentSucceeded:
		return "invoice_payment_succeeded"
	default:
		return "unhandled"
	}
}

func kindOf(eventType string) Kind {
	switch eventType {
	case EventSubscriptionCreated:
		return KindSubscriptionCreated
	case EventSubscriptionUpdated:
		return KindSubscriptionUpdated
	case EventSubscriptionDeleted:
		return KindSubscriptionDeleted
	case EventInvoicePaymentSucceeded:
		return KindInvoicePaymentSucceeded
	default:
		return KindUnhandled
	}
}

// Event is a verified Stripe event. Exactly one of Subscription or Invoice is set
// for the subscription and invoice kinds; both are nil for KindUnhandled.
type Event struct {
	ID         string
	Type       string
	Kind       Kind
	Created    time.Time
	APIVersion string
	Livemode   bool

	Subscription *Subscription
	Invoice      *Invoice
}

// CustomerID returns the billing customer the event refers to.
func (e *Event) CustomerID() string {
	switch {
	case e.Subscription != nil:
		return e.Subscription.Customer.ID
	case e.Invoice != nil:
		return e.Invoice.Customer.ID
	}
	return ""
}

// ExpandableID holds the id of a Stripe object that may arrive either as a
// plain id string or as an expanded object.
type ExpandableID struct {
	ID string
}

func (e *ExpandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		e.ID = ""
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &e.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("expandable id: %w", err)
	}
	e.ID = obj.ID
	return nil
}

// Price identifies the price a subscription item is billed on.
type Price struct {
	ID        string `json:"id"`
	LookupKey string `json:"lookup_key"`
}

// SubscriptionItem is one line of a subscription.
type SubscriptionItem struct {
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Price            *Price `json:"price"`
}

// Subscription is the subscription snapshot carried by customer.subscription.* events.
// CurrentPeriodEnd is only present on API versions that predate per-item periods.
type Subscription struct {
	ID                   string       `json:"id"`
	Customer             ExpandableID `json:"customer"`
	Status               string       `json:"status"`
	CancelAtPeriodEnd    bool         `json:"cancel_at_period_end"`
	CancelAt             int64        `json:"cancel_at"`
	CurrentPeriodEnd     int64        `json:"current_period_end"`
	EndedAt              int64        `json:"ended_at"`
	DefaultPaymentMethod ExpandableID `json:"default_payment_method"`
	Items                struct {
		Data []SubscriptionItem `json:"data"`
	} `json:"items"`
}

// PeriodEnd returns the unix period end: the first item's current_period_end,
// then the subscription's own current_period_end, then ended_at.
func (s *Subscription) PeriodEnd() (int64, bool) {
	if len(s.Items.Data) > 0 && s.Items.Data[0].CurrentPeriodEnd > 0 {
		return s.Items.Data[0].CurrentPeriodEnd, true
	}
	if s.CurrentPeriodEnd > 0 {
		return s.CurrentPeriodEnd, true
	}
	if s.EndedAt > 0 {
		return s.EndedAt, true
	}
	return 0, false
}

// PriceKeys returns the first item's price id and lookup key, either possibly empty.
func (s *Subscription) PriceKeys() (priceID, lookupKey string) {
	if len(s.Items.Data) == 0 || s.Items.Data[0].Price == nil {
		return "", ""
	}
	p := s.Items.Data[0].Price
	return p.ID, p.LookupKey
}

// Invoice is the invoice snapshot carried by invoice.* events.
type Invoice struct {
	ID            string       `json:"id"`
	Customer      ExpandableID `json:"customer"`
	BillingReason string       `json:"billing_reason"`

	// Subscription is populated on older API versions; newer ones use Parent.
	Subscription ExpandableID `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription ExpandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`

	// PaymentIntent is populated on older API versions; newer ones list payments.
	PaymentIntent ExpandableID `json:"payment_intent"`
	Payments      struct {
		Data []struct {
			Payment struct {
				PaymentIntent ExpandableID `json:"payment_intent"`
			} `json:"payment"`
		} `json:"data"`
	} `json:"payments"`

	PaymentMethod        ExpandableID `json:"payment_method"`
	DefaultPaymentMethod ExpandableID `json:"default_payment_method"`

	Lines struct {
		Data []struct {
			Period struct {
				End int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

// Billing reasons that trigger owner emails.
const (
	BillingReasonSubscriptionCreate = "subscription_create"
	BillingReasonSubscriptionCycle  = "subscription_cycle"
)

// SubscriptionID returns the direct subscription reference, else the parent's.
func (in *Invoice) SubscriptionID() string {
	if in.Subscription.ID != "" {
		return in.Subscription.ID
	}
	if in.Parent != nil && in.Parent.SubscriptionDetails != nil {
		return in.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}

// PaymentIntentID returns the invoice's payment intent, if any.
func (in *Invoice) PaymentIntentID() string {
	if in.PaymentIntent.ID != "" {
		return in.PaymentIntent.ID
	}
	for _, p := range in.Payments.Data {
		if p.Payment.PaymentIntent.ID != "" {
			return p.Payment.PaymentIntent.ID
		}
	}
	return ""
}

// OwnPaymentMethod returns a payment method id carried on the invoice itself,
// only when it has the pm_ form.
func (in *Invoice) OwnPaymentMethod() string {
	for _, id := range []string{in.PaymentMethod.ID, in.DefaultPaymentMethod.ID} {
		if strings.HasPrefix(id, "pm_") {
			return id
		}
	}
	return ""
}

// PeriodEnd returns the first line's period end.
func (in *Invoice) PeriodEnd() (int64, bool) {
	if len(in.Lines.Data) == 0 || in.Lines.Data[0].Period.End <= 0 {
		return 0, false
	}
	return in.Lines.Data[0].Period.End, true
}
