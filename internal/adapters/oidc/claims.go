package oidc

import (
	"errors"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	domainauth "github.com/target/docauth/internal/domain/auth"
)

// rolesExpression is a validated JMESPath expression that selects profile roles from
// the provider's claims. The zero value yields no roles.
type rolesExpression string

func compileRoles(expr string) (rolesExpression, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", nil
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return "", fmt.Errorf("invalid roles expression: %w", err)
	}
	return rolesExpression(expr), nil
}

// evaluate returns the string values the expression selects. A single string result
// counts as one role; non-string array members are skipped.
func (r rolesExpression) evaluate(claims map[string]any) ([]string, error) {
	if r == "" {
		return nil, nil
	}
	out, err := jmespath.Search(string(r), claims)
	if err != nil {
		return nil, fmt.Errorf("evaluate roles expression: %w", err)
	}
	switch v := out.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []any:
		roles := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				roles = append(roles, s)
			}
		}
		return roles, nil
	default:
		return nil, fmt.Errorf("roles expression must yield strings, got %T", out)
	}
}

func claimString(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}

// mergeMissing copies keys from src that dst lacks or holds empty.
func mergeMissing(dst, src map[string]any) {
	for k, v := range src {
		if cur, ok := dst[k]; !ok || cur == nil || cur == "" {
			dst[k] = v
		}
	}
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// identityFromClaims maps standard OIDC claims onto the profile shape accounts are
// created from.
func identityFromClaims(claims map[string]any, roles rolesExpression) (domainauth.Identity, error) {
	sub := claimString(claims, "sub")
	if sub == "" {
		return domainauth.Identity{}, errors.New("provider returned no subject")
	}

	display := claimString(claims, "name")
	if display == "" {
		display = strings.TrimSpace(claimString(claims, "given_name") + " " + claimString(claims, "family_name"))
	}

	id := domainauth.Identity{
		ID:          sub,
		Username:    firstNonEmpty(claimString(claims, "preferred_username"), claimString(claims, "nickname"), claimString(claims, "login")),
		DisplayName: display,
	}
	if email := claimString(claims, "email"); email != "" {
		id.Emails = []string{email}
	}

	r, err := roles.evaluate(claims)
	if err != nil {
		return domainauth.Identity{}, err
	}
	id.Roles = r
	return id, nil
}
