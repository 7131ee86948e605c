// Package securitytoken relays password-setup credentials from the identity
// platform into local storage so the welcome workflow can build setup links
// without another platform round trip.
package securitytoken

import (
	"time"

	"github.com/google/uuid"
)

// CategoryPasswordSetup labels tokens minted for first-time password setup.
const CategoryPasswordSetup = "password-setup"

// Token is one relayed credential. Multiple rows may accumulate per profile;
// consumers take the newest unconsumed one.
type Token struct {
	ID          uuid.UUID  `json:"id"`
	ProfileRef  string     `json:"profile_ref"`
	TokenID     string     `json:"token_id"`
	TokenSecret string     `json:"-"`
	UserRef     string     `json:"user_ref"`
	Category    string     `json:"category"`
	ConsumedAt  *time.Time `json:"consumed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
