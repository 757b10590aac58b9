// Package partystore holds party records: the people and companies attached
// to cases, including their identifiers and contact details. These values are
// personal data and must never reach a language-model prompt; the only reader
// outside fixtures is the draft-generation path, which substitutes
// {{partyN.field}} placeholders after the model has produced its text.
package partystore

import (
	"fmt"
	"strings"
)

// Kind distinguishes natural persons from legal entities.
type Kind string

const (
	KindIndividual   Kind = "individual"
	KindOrganization Kind = "organization"
)

// Party is one person or organization involved in legal matters. Individuals
// carry a CNP (the Romanian national identifier); organizations carry a
// fiscal code (RO...) and a trade register number (J.../.../...)
type Party struct {
	PartyID        string `json:"party_id"`
	Kind           Kind   `json:"kind"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	CompanyName    string `json:"company_name,omitempty"`
	NationalID     string `json:"national_id,omitempty"`
	FiscalCode     string `json:"fiscal_code,omitempty"`
	RegistrationNo string `json:"registration_no,omitempty"`
	Address        string `json:"address,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
}

// FieldNames lists the placeholder field names a draft may reference,
// in the order they appear on the record.
var FieldNames = []string{
	"first_name", "last_name", "company_name", "national_id",
	"fiscal_code", "registration_no", "address", "email", "phone",
}

// Validate checks the record is storable.
func (p *Party) Validate() error {
	if p.PartyID == "" {
		return fmt.Errorf("party_id is required")
	}
	switch p.Kind {
	case KindIndividual, KindOrganization:
	default:
		return fmt.Errorf("kind %q not one of individual, organization", p.Kind)
	}
	return nil
}

// Field resolves a placeholder field name to its stored value. The second
// return reports whether the name is a known field at all, not whether the
// value is set.
func (p *Party) Field(name string) (string, bool) {
	switch name {
	case "first_name":
		return p.FirstName, true
	case "last_name":
		return p.LastName, true
	case "company_name":
		return p.CompanyName, true
	case "national_id":
		return p.NationalID, true
	case "fiscal_code":
		return p.FiscalCode, true
	case "registration_no":
		return p.RegistrationNo, true
	case "address":
		return p.Address, true
	case "email":
		return p.Email, true
	case "phone":
		return p.Phone, true
	default:
		return "", false
	}
}

// DisplayName is the human-facing name: company name for organizations,
// "First Last" for individuals.
func (p *Party) DisplayName() string {
	if p.Kind == KindOrganization && p.CompanyName != "" {
		return p.CompanyName
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// SensitiveValues returns every non-empty personal value on the record.
// Redaction guards screen outgoing prompts against these.
func (p *Party) SensitiveValues() []string {
	var out []string
	for _, v := range []string{
		p.FirstName, p.LastName, p.CompanyName, p.NationalID,
		p.FiscalCode, p.RegistrationNo, p.Address, p.Email, p.Phone,
	} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
