package payment

import (
	"net/url"
	"strings"

	"github.com/noah-isme/trustflowpay/internal/order"
)

// Order metadata keys written by this package.
const (
	MetaReference       = "_trustflowpay_order_id"
	MetaAppID           = "_trustflowpay_app_id"
	MetaEnvironment     = "_trustflowpay_env"
	MetaRequestParams   = "_trustflowpay_request_params"
	MetaResponseCode    = "_trustflowpay_response_code"
	MetaStatus          = "_trustflowpay_status"
	MetaTxnID           = "_trustflowpay_txn_id"
	MetaPGRefNum        = "_trustflowpay_pg_ref_num"
	MetaResponseMessage = "_trustflowpay_response_message"
	MetaFullResponse    = "_trustflowpay_full_response"
)

// Gateway paths relative to the credential base URL.
const (
	PaymentRequestPath = "/pgui/jsp/paymentrequest"
	StatusEnquiryPath  = "/pgui/services/paymentServices/transactionStatus"
	CheckoutCSSPath    = "/pgui/checkoutlibrary/checkout.min.css"
	CheckoutJSPath     = "/pgui/checkoutlibrary/checkout.min.js"
)

// Public routes served by cmd/api that the gateway or browser is sent to.
const (
	ReturnRoute   = "/api/v1/payments/trustflowpay/return"
	WebhookRoute  = "/api/v1/webhooks/payment/trustflowpay"
	CheckoutRoute = "/api/v1/payments/trustflowpay/checkout/"
)

// Environment names a credential set.
type Environment string

const (
	EnvSandbox    Environment = "sandbox"
	EnvProduction Environment = "production"
)

// Credentials is one merchant credential set at the gateway.
type Credentials struct {
	Environment  Environment
	BaseURL      string
	AppID        string
	SecretKey    string
	CurrencyCode string
}

// Endpoint joins path onto the base URL.
func (c Credentials) Endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

// DisplayMode selects how the hosted checkout is presented.
type DisplayMode string

const (
	DisplayRedirect DisplayMode = "redirect"
	DisplayIframe   DisplayMode = "iframe"
)

// Pages holds storefront URL templates. "{order_id}" is replaced with the
// order id.
type Pages struct {
	Checkout     string
	Confirmation string
	Pay          string
	Cancel       string
}

// Settings is the merchant configuration the payment components read.
type Settings struct {
	TestMode        bool
	Sandbox         Credentials
	Production      Credentials
	SuccessStatus   order.Status
	DisplayMode     DisplayMode
	ReferencePrefix string
	StoreName       string
	PublicBaseURL   string
	RequireHash     bool
	Pages           Pages
}

// Active returns the credential set selected by TestMode.
func (s Settings) Active() Credentials {
	if s.TestMode {
		return s.Sandbox
	}
	return s.Production
}

// ForEnvironment returns the named credential set, or the active one when env
// is empty or unknown.
func (s Settings) ForEnvironment(env string) Credentials {
	switch Environment(env) {
	case EnvSandbox:
		return s.Sandbox
	case EnvProduction:
		return s.Production
	default:
		return s.Active()
	}
}

// ForOrder returns the credentials that were snapshotted when the order's
// request was built.
func (s Settings) ForOrder(o order.Order) Credentials {
	return s.ForEnvironment(o.MetaValue(MetaEnvironment))
}

// ReturnURL is the browser return endpoint handed to the gateway.
func (s Settings) ReturnURL() string {
	return strings.TrimRight(s.PublicBaseURL, "/") + ReturnRoute
}

// CheckoutURL is the page that renders the hosted checkout for orderID.
func (s Settings) CheckoutURL(orderID string) string {
	return strings.TrimRight(s.PublicBaseURL, "/") + CheckoutRoute + url.PathEscape(orderID)
}

func (s Settings) referencePrefix() string {
	if p := strings.TrimSpace(s.ReferencePrefix); p != "" {
		return p
	}
	return "TFP"
}

// pageURL expands a page template and attaches a user-facing notice.
func pageURL(tmpl, orderID, notice string) string {
	target := strings.ReplaceAll(tmpl, "{order_id}", url.PathEscape(orderID))
	if target == "" {
		target = "/"
	}
	if notice == "" {
		return target
	}
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("notice", notice)
	u.RawQuery = q.Encode()
	return u.String()
}
