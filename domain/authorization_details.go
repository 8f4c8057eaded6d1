package domain

import (
	"encoding/json"
	"fmt"
)

// UnmarshalJSON keeps type-specific members that are not modelled as struct
// fields in Extra, so registered detail types can inspect them.
func (d *AuthorizationDetail) UnmarshalJSON(data []byte) error {
	type alias AuthorizationDetail
	var known alias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, field := range []string{"type", "locations", "actions", "datatypes", "identifier", "privileges"} {
		delete(raw, field)
	}
	if len(raw) > 0 {
		known.Extra = raw
	}

	*d = AuthorizationDetail(known)
	return nil
}

// MarshalJSON re-inlines Extra next to the modelled fields.
func (d AuthorizationDetail) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": d.Type}
	if len(d.Locations) > 0 {
		out["locations"] = d.Locations
	}
	if len(d.Actions) > 0 {
		out["actions"] = d.Actions
	}
	if len(d.Datatypes) > 0 {
		out["datatypes"] = d.Datatypes
	}
	if d.Identifier != "" {
		out["identifier"] = d.Identifier
	}
	if len(d.Privileges) > 0 {
		out["privileges"] = d.Privileges
	}
	for k, v := range d.Extra {
		out[k] = v
	}
	return json.Marshal(out)
}

// ParseAuthorizationDetails decodes an RFC 9396 authorization_details
// parameter. The value must be a JSON array of objects, each carrying a type.
func ParseAuthorizationDetails(raw string) ([]AuthorizationDetail, error) {
	var details []AuthorizationDetail
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		return nil, fmt.Errorf("authorization_details must be a JSON array: %w", err)
	}
	for i, d := range details {
		if d.Type == "" {
			return nil, fmt.Errorf("authorization_details[%d] is missing type", i)
		}
	}
	return details, nil
}

// AuthorizationDetails parses the authorization_details parameter of the
// request, honoring request-object sourcing. Returns nil when absent.
func (c *OAuthRequestContext) AuthorizationDetails() ([]AuthorizationDetail, error) {
	raw := c.Param("authorization_details")
	if raw == "" {
		return nil, nil
	}
	return ParseAuthorizationDetails(raw)
}
