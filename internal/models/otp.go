package models

import "time"

// OTPRecord is one issued passcode for a phone number. Only the bcrypt hash
// of the code is stored.
type OTPRecord struct {
	ID          string    `json:"id" dynamodbav:"id"`
	PhoneNumber string    `json:"phone_number" dynamodbav:"phone_number"`
	CodeHash    string    `json:"code_hash" dynamodbav:"code_hash"`
	Consumed    bool      `json:"consumed" dynamodbav:"consumed"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt   time.Time `json:"expires_at" dynamodbav:"expires_at"`
}

// Active reports whether the record can still be redeemed at now.
func (o *OTPRecord) Active(now time.Time) bool {
	return !o.Consumed && o.ExpiresAt.After(now)
}

func (o *OTPRecord) GetPK() string {
	return "OTP#" + o.PhoneNumber
}

func (o *OTPRecord) GetSK() string {
	return "ACTIVE"
}
