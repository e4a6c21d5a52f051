package identity

import "time"

// Linkage describes how far a device got through step-up linking.
type Linkage string

const (
	LinkageUnlinked      Linkage = "unlinked"
	LinkagePendingTokens Linkage = "linked_pending_tokens"
	LinkageLinked        Linkage = "linked"
)

// Credential is the opaque handle returned by the step-up identity provider.
// It is only used to address the out-of-band approval channel.
type Credential struct {
	Subject      string
	DisplayName  string
	Email        string
	AccessToken  string
	RefreshToken string
	LinkedAt     time.Time
}

// Holder is the cardholder profile captured during identity proof.
type Holder struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
}

// VerifiedUser is one (device, payment instrument) pair that passed identity proof.
type VerifiedUser struct {
	DeviceID       string
	InstrumentKey  string
	InstrumentMask string
	Holder         Holder
	ProofToken     string
	VerifiedAt     time.Time
	FirstTime      bool
	Linkage        Linkage
	Credential     *Credential
}

// IsLinked reports whether the step-up credential is usable for push approval.
func (u VerifiedUser) IsLinked() bool {
	return u.Linkage == LinkageLinked && u.Credential != nil
}
