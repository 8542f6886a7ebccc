package app

import (
	"errors"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"askia-quiz-service/internal/domain"
)

// Session sizes per mode.
const (
	StandardSessionSize = 10
	GuestSessionSize    = 5
	LeagueSessionSize   = 10
)

// SessionParams are the flat string parameters a session is requested with.
type SessionParams struct {
	Grade   string `query:"grade" validate:"required_unless=Mode league"`
	Subject string `query:"subject" validate:"required_unless=Mode league"`
	Topic   string `query:"topic" validate:"required_unless=Mode league"`
	Mode    string `query:"mode" validate:"required,oneof=standard guest league multiple_choice fill_blank image_identify sentence_builder"`
	Week    string `query:"week" validate:"required_if=Mode league"`
	Type    string `query:"type" validate:"omitempty,oneof=multiple_choice fill_blank image_identify sentence_builder"`
}

// ParseSessionParams reads the parameters from a query string.
func ParseSessionParams(values url.Values) SessionParams {
	get := func(key string) string { return strings.TrimSpace(values.Get(key)) }
	return SessionParams{
		Grade:   get("grade"),
		Subject: get("subject"),
		Topic:   get("topic"),
		Mode:    get("mode"),
		Week:    get("week"),
		Type:    get("type"),
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("query"); name != "" {
			return name
		}
		if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
			return name
		}
		return strings.ToLower(f.Name)
	})
	return v
}

// Validate reports the first missing or malformed parameter as a *domain.ConfigError.
func (p SessionParams) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &domain.ConfigError{Field: "params", Reason: err.Error()}
	}
	fe := verrs[0]
	reason := "is invalid"
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "required_unless", "required_if":
		reason = "is required for mode " + p.Mode
	case "oneof":
		reason = "must be one of: " + fe.Param()
	}
	return &domain.ConfigError{Field: fe.Field(), Reason: reason}
}

// Config resolves the parameters into a session configuration. League sessions take the
// grade from the player's default grade when one is set.
func (p SessionParams) Config(defaultGrade string) (domain.SessionConfig, error) {
	if err := p.Validate(); err != nil {
		return domain.SessionConfig{}, err
	}

	cfg := domain.SessionConfig{
		Kind:    domain.KindMultipleChoice,
		Grade:   p.Grade,
		Subject: p.Subject,
		Topic:   p.Topic,
	}
	switch p.Mode {
	case "standard":
		cfg.Mode = domain.ModeStandard
		cfg.Size = StandardSessionSize
	case "guest":
		cfg.Mode = domain.ModeGuest
		cfg.Size = GuestSessionSize
	case "league":
		cfg.Mode = domain.ModeLeague
		cfg.Size = LeagueSessionSize
		cfg.WeekID = p.Week
		if defaultGrade != "" {
			cfg.Grade = defaultGrade
		}
		if cfg.Grade == "" {
			return domain.SessionConfig{}, &domain.ConfigError{Field: "grade", Reason: "player has no default grade"}
		}
	default:
		kind, _ := domain.ParseQuestionKind(p.Mode)
		cfg.Mode = domain.ModeStandard
		cfg.Size = StandardSessionSize
		cfg.Kind = kind
	}
	if p.Type != "" {
		cfg.Kind, _ = domain.ParseQuestionKind(p.Type)
	}
	return cfg, nil
}
