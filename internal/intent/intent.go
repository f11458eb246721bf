// Package intent classifies customer messages into discrete intents and
// maps each intent to its retrieval policy.
package intent

// Intent is a discrete classification of what a customer message is trying
// to accomplish. It steers tool eligibility and prompt tone.
type Intent string

// The fixed intent enumeration. Unknown strings from the model are coerced
// to IntentGeneralSupport.
const (
	IntentBrowsing          Intent = "browsing"
	IntentProductDetail     Intent = "product-detail"
	IntentProductComparison Intent = "product-comparison"
	IntentShippingReturns   Intent = "shipping-returns"
	IntentOrderStatus       Intent = "order-status"
	IntentPayment           Intent = "payment"
	IntentPolicy            Intent = "policy"
	IntentGeneralSupport    Intent = "general-support"
	IntentSmalltalk         Intent = "smalltalk"
)

// All lists every valid intent, in the order presented to the model.
var All = []Intent{
	IntentBrowsing,
	IntentProductDetail,
	IntentProductComparison,
	IntentShippingReturns,
	IntentOrderStatus,
	IntentPayment,
	IntentPolicy,
	IntentGeneralSupport,
	IntentSmalltalk,
}

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	for _, known := range All {
		if i == known {
			return true
		}
	}
	return false
}

// Coerce maps an arbitrary model-returned string to a valid intent,
// falling back to general-support.
func Coerce(s string) Intent {
	i := Intent(s)
	if i.Valid() {
		return i
	}
	return IntentGeneralSupport
}

// Result is the outcome of a classification call.
type Result struct {
	Intent         Intent   `json:"intent"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	SuggestedTools []string `json:"suggested_tools"`
}

// Exchange is one prior message given to the classifier as context.
type Exchange struct {
	Role    string // "user" or "assistant"
	Content string
}
