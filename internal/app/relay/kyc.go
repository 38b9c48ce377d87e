package relay

import "github.com/ponte-cripto/notus-relay/pkg/validator"

const kycSessionsPath = "/kyc/individual-verification-sessions/standard"

// KYCProfile 是创建 KYC 会话所需的个人资料。
type KYCProfile struct {
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	BirthDate        string `json:"birthDate"`
	Email            string `json:"email"`
	DocumentID       string `json:"documentId"`
	DocumentCategory string `json:"documentCategory"`
	DocumentCountry  string `json:"documentCountry"`
	Address          string `json:"address"`
	City             string `json:"city"`
	State            string `json:"state"`
	PostalCode       string `json:"postalCode"`
	LivenessRequired bool   `json:"livenessRequired"`
}

// MissingFields 按字段声明顺序返回缺失的资料项。livenessRequired 缺省为 false，不参与校验。
func (p KYCProfile) MissingFields() []string {
	return validator.MissingFields(
		validator.Field{Name: "firstName", Value: p.FirstName},
		validator.Field{Name: "lastName", Value: p.LastName},
		validator.Field{Name: "birthDate", Value: p.BirthDate},
		validator.Field{Name: "email", Value: p.Email},
		validator.Field{Name: "documentId", Value: p.DocumentID},
		validator.Field{Name: "documentCategory", Value: p.DocumentCategory},
		validator.Field{Name: "documentCountry", Value: p.DocumentCountry},
		validator.Field{Name: "address", Value: p.Address},
		validator.Field{Name: "city", Value: p.City},
		validator.Field{Name: "state", Value: p.State},
		validator.Field{Name: "postalCode", Value: p.PostalCode},
	)
}
