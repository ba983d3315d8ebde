package http

import (
	"SokoCheckout/internal/gateway"
	"SokoCheckout/internal/models"

	validatorv10 "github.com/go-playground/validator/v10"
)

type validatorInstance struct {
	v *validatorv10.Validate
}

func newValidator() *validatorInstance {
	v := validatorv10.New()
	v.RegisterStructValidation(checkoutStructValidation, checkoutRequest{})
	return &validatorInstance{v: v}
}

// check returns a field->message map, empty on success.
func (vi *validatorInstance) check(req any) map[string]string {
	err := vi.v.Struct(req)
	if err == nil {
		return nil
	}
	out := map[string]string{}
	if ve, ok := err.(validatorv10.ValidationErrors); ok {
		for _, fe := range ve {
			out[fe.StructNamespace()] = fe.Error()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}

// checkoutStructValidation enforces the cross-field rule the tag
// grammar cannot express: mpesa needs a valid Kenyan phone number.
// The totals are not cross-checked; discounts applied upstream mean
// finalTotal can legitimately differ from subtotal plus delivery.
func checkoutStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(checkoutRequest)

	if models.PaymentMethod(req.Method) == models.MethodMpesa {
		if !gateway.IsValidKenyanPhone(gateway.FormatPhoneNumber(req.MpesaPhone)) {
			sl.ReportError(req.MpesaPhone, "mpesaPhone", "MpesaPhone", "kenyan_phone", "")
		}
	}
}
