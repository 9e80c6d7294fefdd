package service

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/driveshare/rental-booking/internal/workflow"
)

// PaymentForm is the mocked card form. No charge is made; a well formed
// form simply confirms payment on the draft.
type PaymentForm struct {
	CardNumber string `json:"card_number" validate:"required,credit_card"`
	Expiry     string `json:"expiry" validate:"required,card_expiry"`
	CVV        string `json:"cvv" validate:"required,numeric,len=3"`
}

// newValidator reports fields by their json names.
func newValidator(expiry validator.Func) *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("card_expiry", expiry)
	return v
}

// cardExpiry accepts MM/YY for a month that has not ended yet.
func (s *BookingService) cardExpiry(fl validator.FieldLevel) bool {
	mm, yy, ok := strings.Cut(strings.TrimSpace(fl.Field().String()), "/")
	if !ok || len(mm) != 2 || len(yy) != 2 {
		return false
	}
	month, err := strconv.Atoi(mm)
	if err != nil || month < 1 || month > 12 {
		return false
	}
	year, err := strconv.Atoi(yy)
	if err != nil {
		return false
	}
	// first instant after the card's last valid month
	end := time.Date(2000+year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	return s.Now().Before(end)
}

// checkPayment validates the form and maps failures onto the messages the
// payment step shows.
func (s *BookingService) checkPayment(stage workflow.Stage, f PaymentForm) error {
	f.CardNumber = strings.ReplaceAll(strings.TrimSpace(f.CardNumber), " ", "")
	err := s.validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return &workflow.ValidationError{
				Stage: stage, Field: "payment",
				Heading: "Missing Information", Message: "Please fill in all payment details.",
			}
		}
	}
	return &workflow.ValidationError{
		Stage: stage, Field: verrs[0].Field(),
		Heading: "Invalid Information", Message: "Please check your card details.",
	}
}

// ConfirmPayment runs the mocked card check and marks the draft paid. The
// booking itself is created when the payment stage is advanced.
func (s *BookingService) ConfirmPayment(ctx context.Context, userID uint64, id string, f PaymentForm) (DraftView, error) {
	paid := true
	rec, err := s.withController(ctx, userID, id, func(c *workflow.Controller) error {
		if err := s.checkPayment(c.Stage(), f); err != nil {
			return err
		}
		return c.SubmitStageUpdate(workflow.DraftUpdate{PaymentConfirmed: &paid})
	})
	if err != nil {
		return DraftView{}, err
	}
	return newDraftView(rec), nil
}
