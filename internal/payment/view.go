package payment

import (
	"html/template"
	"io"
)

const checkoutPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Processing Payment - {{.StoreName}}</title>
{{- if .Iframe}}
<link rel="stylesheet" href="{{.CSS}}">
<script src="{{.JS}}"></script>
{{- end}}
<style>
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,Arial,sans-serif;background:#f7f7f7;margin:0;padding:20px;display:flex;justify-content:center;align-items:center;min-height:100vh}
.payment-container{background:#fff;padding:40px;border-radius:8px;box-shadow:0 2px 10px rgba(0,0,0,.1);max-width:800px;width:100%;text-align:center}
.spinner{border:4px solid #f3f3f3;border-top:4px solid #3498db;border-radius:50%;width:40px;height:40px;animation:spin 1s linear infinite;margin:20px auto}
@keyframes spin{0%{transform:rotate(0)}100%{transform:rotate(360deg)}}
.redirect-message{color:#666;margin:20px 0}
</style>
</head>
<body>
<div class="payment-container">
{{- if .Iframe}}
<h2>Enter Your Card Details</h2>
<p class="redirect-message">Please complete your payment below. You will be returned to the store after payment.</p>
<form id="trustflowpay-payment-form" method="post" action="{{.Action}}" target="checkout-iframe">
{{- range .Fields}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
</form>
<iframe name="checkout-iframe" id="checkout-iframe" style="width:100%;height:600px;border:1px solid #ddd;border-radius:4px;margin-top:20px"></iframe>
<script>
document.addEventListener('DOMContentLoaded', function () {
  var form = document.getElementById('trustflowpay-payment-form');
  if (typeof checkoutSubmitHandler === 'function') {
    try {
      checkoutSubmitHandler(form);
    } catch (e) {
      form.submit();
    }
  } else {
    form.submit();
  }
});
</script>
{{- else}}
<h2>Redirecting to Payment Gateway</h2>
<div class="spinner"></div>
<p class="redirect-message">Please wait while we redirect you to complete your payment...</p>
<form id="trustflowpay-payment-form" method="post" action="{{.Action}}">
{{- range .Fields}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
</form>
<script>
document.addEventListener('DOMContentLoaded', function () {
  document.getElementById('trustflowpay-payment-form').submit();
});
</script>
{{- end}}
</div>
</body>
</html>
`

// CheckoutView renders the auto-submitting form that hands the customer to
// the hosted checkout.
type CheckoutView struct {
	tmpl *template.Template
}

// NewCheckoutView parses the page template.
func NewCheckoutView() *CheckoutView {
	return &CheckoutView{tmpl: template.Must(template.New("checkout").Parse(checkoutPage))}
}

type formField struct {
	Name  string
	Value string
}

type checkoutData struct {
	StoreName string
	Iframe    bool
	Action    string
	CSS       string
	JS        string
	Fields    []formField
}

// Render writes the page for a persisted signed parameter set. Fields are
// emitted exactly as stored, in key order.
func (v *CheckoutView) Render(w io.Writer, params Params, creds Credentials, mode DisplayMode, storeName string) error {
	data := checkoutData{
		StoreName: storeName,
		Iframe:    mode == DisplayIframe,
		Action:    creds.Endpoint(PaymentRequestPath),
		CSS:       creds.Endpoint(CheckoutCSSPath),
		JS:        creds.Endpoint(CheckoutJSPath),
	}
	for _, k := range params.Keys() {
		data.Fields = append(data.Fields, formField{Name: k, Value: params[k]})
	}
	return v.tmpl.Execute(w, data)
}
