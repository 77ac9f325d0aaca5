package types

import (
	"encoding/json"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Identity and room ids share one format: the class/meeting/identity ids
// minted by the CRUD backend are opaque tokens of this shape.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Registration only fails for empty tags, which would be a programming
	// error here.
	_ = v.RegisterValidation("identity", func(fl validator.FieldLevel) bool {
		return idPattern.MatchString(fl.Field().String())
	})
	return v
}

// IsValidID reports whether s is a well-formed identity, class, or meeting id.
func IsValidID(s string) bool {
	return idPattern.MatchString(s)
}

// IsValidRole reports whether s is one of the known roles.
func IsValidRole(s string) bool {
	switch s {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// IsValidRoomKind reports whether s is a known room kind.
func IsValidRoomKind(s string) bool {
	switch s {
	case RoomKindClass, RoomKindPersonal, RoomKindMeeting:
		return true
	}
	return false
}

// ValidatePayload runs the struct-tag schema checks on a decoded payload.
func ValidatePayload(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return ErrInvalidPayload
	}
	return nil
}

// DecodePayload unmarshals an envelope payload into the per-type schema and
// validates it. Tagged-variant boundary: no component downstream of the
// router sees an unchecked payload.
func DecodePayload(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return ErrInvalidPayload
	}
	return ValidatePayload(out)
}
