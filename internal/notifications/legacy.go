package notifications

import (
	"fmt"
	"sort"

	"github.com/sumire/notifysettings/internal/domain"
)

// typeSpec declares the values a notification type accepts and how each one
// is encoded in the legacy option table. An empty legacyKey means the type is
// not mirrored.
type typeSpec struct {
	legacyKey string
	values    map[domain.NotificationSettingOptionValue]int
}

var typeSpecs = map[domain.NotificationSettingType]typeSpec{
	domain.NotificationSettingTypeDeploy: {
		legacyKey: "deploy-emails",
		values: map[domain.NotificationSettingOptionValue]int{
			domain.NotificationSettingOptionAlways:        2,
			domain.NotificationSettingOptionCommittedOnly: 3,
			domain.NotificationSettingOptionNever:         4,
		},
	},
	domain.NotificationSettingTypeIssueAlerts: {
		legacyKey: "mail:alert",
		values: map[domain.NotificationSettingOptionValue]int{
			domain.NotificationSettingOptionAlways: 1,
			domain.NotificationSettingOptionNever:  0,
		},
	},
	domain.NotificationSettingTypeWorkflow: {
		legacyKey: "workflow:notifications",
		values: map[domain.NotificationSettingOptionValue]int{
			domain.NotificationSettingOptionAlways:        0,
			domain.NotificationSettingOptionSubscribeOnly: 1,
			domain.NotificationSettingOptionNever:         2,
		},
	},
}

func init() {
	if err := validateSpecs(typeSpecs); err != nil {
		panic(err)
	}
}

func validateSpecs(specs map[domain.NotificationSettingType]typeSpec) error {
	for _, typ := range domain.NotificationSettingTypes {
		spec, ok := specs[typ]
		if !ok {
			return fmt.Errorf("notification type %s has no declared values", typ)
		}
		if len(spec.values) == 0 {
			return fmt.Errorf("notification type %s accepts no values", typ)
		}
		seen := make(map[int]domain.NotificationSettingOptionValue, len(spec.values))
		for value, encoded := range spec.values {
			if value == domain.NotificationSettingOptionDefault {
				return fmt.Errorf("notification type %s declares %s, which is never stored", typ, value)
			}
			if prev, dup := seen[encoded]; dup {
				return fmt.Errorf("notification type %s encodes both %s and %s as %d", typ, prev, value, encoded)
			}
			seen[encoded] = value
		}
	}
	return nil
}

// Validate reports whether typ accepts value.
func Validate(typ domain.NotificationSettingType, value domain.NotificationSettingOptionValue) bool {
	_, ok := typeSpecs[typ].values[value]
	return ok
}

// AllowedValues returns the values typ accepts, in ascending order.
func AllowedValues(typ domain.NotificationSettingType) []domain.NotificationSettingOptionValue {
	spec := typeSpecs[typ]
	out := make([]domain.NotificationSettingOptionValue, 0, len(spec.values))
	for v := range spec.values {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LegacyKey returns the option key typ is mirrored under.
func LegacyKey(typ domain.NotificationSettingType) (string, bool) {
	spec, ok := typeSpecs[typ]
	if !ok || spec.legacyKey == "" {
		return "", false
	}
	return spec.legacyKey, true
}

// LegacyValue returns the legacy encoding of value for typ.
func LegacyValue(typ domain.NotificationSettingType, value domain.NotificationSettingOptionValue) (int, bool) {
	encoded, ok := typeSpecs[typ].values[value]
	return encoded, ok
}

// FromLegacyValue decodes a legacy encoding back into an option value.
func FromLegacyValue(typ domain.NotificationSettingType, encoded int) (domain.NotificationSettingOptionValue, bool) {
	for value, e := range typeSpecs[typ].values {
		if e == encoded {
			return value, true
		}
	}
	return domain.NotificationSettingOptionDefault, false
}
