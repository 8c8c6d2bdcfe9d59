package courseauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessClaims is the subset of the backend's access-token payload the
// client cares about. Signature verification is the backend's job; the
// client only peeks at claims it already trusts by possession.
type accessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

var claimsParser = jwt.NewParser(jwt.WithoutClaimsValidation())

func parseAccessClaims(token string) (*accessClaims, bool) {
	claims := &accessClaims{}
	if _, _, err := claimsParser.ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}

// accessTokenExpiring reports whether the token's exp claim falls within
// leeway from now. Opaque or claim-free tokens never report expiring; the
// 401-retry path covers them.
func accessTokenExpiring(token string, leeway time.Duration) bool {
	claims, ok := parseAccessClaims(token)
	if !ok || claims.ExpiresAt == nil {
		return false
	}
	return time.Until(claims.ExpiresAt.Time) <= leeway
}
