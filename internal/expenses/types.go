package expenses

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO date format used for expense dates.
const DateLayout = "2006-01-02"

// Category labels an expense.
type Category string

const (
	CategoryFood          Category = "food"
	CategoryTransport     Category = "transport"
	CategoryEntertainment Category = "entertainment"
	CategoryShopping      Category = "shopping"
	CategoryGadget        Category = "gadget"
	CategoryOther         Category = "other"
)

// PaymentMethod is how an expense was paid.
type PaymentMethod string

const (
	PaymentAmex PaymentMethod = "amex"
	PaymentVisa PaymentMethod = "visa"
	PaymentCash PaymentMethod = "cash"
)

var (
	// ErrAmountNotPositive is returned for zero or negative amounts.
	ErrAmountNotPositive = errors.New("amount must be positive")
	// ErrInvalidCategory is returned for unknown categories.
	ErrInvalidCategory = errors.New("invalid category")
	// ErrInvalidPaymentMethod is returned for unknown payment methods.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	// ErrInvalidDate is returned for dates not in YYYY-MM-DD format.
	ErrInvalidDate = errors.New("invalid date")
	// ErrMissingUser is returned when an expense has no owner.
	ErrMissingUser = errors.New("user ID is required")
)

// Categories returns all categories in display order.
func Categories() []Category {
	return []Category{
		CategoryFood,
		CategoryTransport,
		CategoryEntertainment,
		CategoryShopping,
		CategoryGadget,
		CategoryOther,
	}
}

// PaymentMethods returns all payment methods in display order.
func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{PaymentAmex, PaymentVisa, PaymentCash}
}

// ParseCategory parses a category name, ignoring case.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// ParsePaymentMethod parses a payment method name, ignoring case.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	p := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range PaymentMethods() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, s)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q (expected YYYY-MM-DD)", ErrInvalidDate, s)
	}
	return d, nil
}

// Expense is a stored expense. The JSON shape is the Cosmos DB item.
type Expense struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Date          string        `json:"date"`
	Amount        float64       `json:"amount"`
	Category      Category      `json:"category"`
	Description   string        `json:"description"`
	PaymentMethod PaymentMethod `json:"payment_method"`
}

// Input is an expense as submitted by a user.
type Input struct {
	Date          time.Time
	Amount        float64
	Category      Category
	Description   string
	PaymentMethod PaymentMethod
}

// Validate checks the amount and enum values.
func (in Input) Validate() error {
	if !(in.Amount > 0) {
		return ErrAmountNotPositive
	}
	if _, err := ParseCategory(string(in.Category)); err != nil {
		return err
	}
	if _, err := ParsePaymentMethod(string(in.PaymentMethod)); err != nil {
		return err
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidDate)
	}
	return nil
}

// ToExpense builds the stored form for userID with the given ID.
func (in Input) ToExpense(id, userID string) Expense {
	return Expense{
		ID:            id,
		UserID:        userID,
		Date:          in.Date.Format(DateLayout),
		Amount:        in.Amount,
		Category:      in.Category,
		Description:   in.Description,
		PaymentMethod: in.PaymentMethod,
	}
}
