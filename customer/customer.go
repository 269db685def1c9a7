package customer

import (
	"strings"

	"backoffice/apperr"
	"backoffice/model"
	"backoffice/money"
	"backoffice/validate"
)

// Input is the editable part of a customer. Code is only honoured on import.
type Input struct {
	Name     string `json:"name"`
	Company  string `json:"company"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Country  string `json:"country"`
	Currency string `json:"currency"`
	TaxID    string `json:"taxId"`
	Notes    string `json:"notes"`
}

// Normalize trims the input and validates it. An empty currency becomes
// defaultCurrency.
func (in *Input) Normalize(defaultCurrency string) error {
	for _, f := range []*string{&in.Name, &in.Company, &in.Phone, &in.Address, &in.City, &in.Country, &in.TaxID} {
		*f = strings.TrimSpace(*f)
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if strings.TrimSpace(in.Currency) == "" {
		in.Currency = defaultCurrency
	}

	if err := validate.First(
		validate.Required("name", in.Name),
		validate.Email("email", in.Email),
	); err != nil {
		return err
	}
	code, ok := money.NormalizeCurrency(in.Currency)
	if !ok {
		return apperr.Invalid("unknown currency: " + in.Currency)
	}
	in.Currency = code
	return nil
}

// Apply copies the input onto c.
func (in *Input) Apply(c *model.Customer) {
	c.Name = in.Name
	c.Company = in.Company
	c.Email = in.Email
	c.Phone = in.Phone
	c.Address = in.Address
	c.City = in.City
	c.Country = in.Country
	c.Currency = in.Currency
	c.TaxID = in.TaxID
	c.Notes = in.Notes
}
