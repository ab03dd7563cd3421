package device

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100
	idPattern     = `^[A-Za-z0-9][A-Za-z0-9_.:-]{0,63}$`

	// Size limits for the config map.
	maxConfigKeys     = 50
	maxStringValueLen = 1024
	maxArrayLen       = 50
	maxNestingDepth   = 10
)

var idRegex = regexp.MustCompile(idPattern)

var (
	validKinds    map[Kind]struct{}
	validStatuses map[Status]struct{}
)

func init() {
	validKinds = make(map[Kind]struct{}, len(AllKinds()))
	for _, k := range AllKinds() {
		validKinds[k] = struct{}{}
	}
	validStatuses = make(map[Status]struct{}, len(AllStatuses()))
	for _, s := range AllStatuses() {
		validStatuses[s] = struct{}{}
	}
}

// ParseKind resolves a canonical kind or a vendor alias ("lrad", "boomerang", ...).
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := validKinds[Kind(s)]; ok {
		return Kind(s), nil
	}
	if k, ok := kindAliases[s]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// ValidateStatus checks if a device status is valid.
func ValidateStatus(s Status) error {
	if _, ok := validStatuses[s]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return nil
}

// ValidateName checks if a device name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// Normalize validates d, resolves kind aliases, and fills defaults
// (generated ID, status offline). It mutates d in place.
func Normalize(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if d.ID == "" {
		d.ID = GenerateID()
	} else if !idRegex.MatchString(d.ID) {
		return fmt.Errorf("%w: id %q must be alphanumeric with _ . : -", ErrInvalidDevice, d.ID)
	}

	if err := ValidateName(d.Name); err != nil {
		return err
	}

	kind, err := ParseKind(string(d.Kind))
	if err != nil {
		return err
	}
	d.Kind = kind

	if d.Status == "" {
		d.Status = StatusOffline
	}
	if err := ValidateStatus(d.Status); err != nil {
		return err
	}

	if d.Location != nil {
		if err := d.Location.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDevice, err)
		}
	}

	if len(d.Config) > maxConfigKeys {
		return fmt.Errorf("%w: config exceeds max keys (%d)", ErrInvalidDevice, maxConfigKeys)
	}
	return validateValueSize(map[string]any(d.Config), 0)
}

// validateValueSize recursively bounds strings, arrays and nesting in config.
func validateValueSize(v any, depth int) error {
	if depth > maxNestingDepth {
		return fmt.Errorf("%w: config exceeds maximum nesting depth", ErrInvalidDevice)
	}

	switch val := v.(type) {
	case string:
		if len(val) > maxStringValueLen {
			return fmt.Errorf("%w: config string value too long", ErrInvalidDevice)
		}
	case map[string]any:
		if len(val) > maxConfigKeys {
			return fmt.Errorf("%w: config nested map too large", ErrInvalidDevice)
		}
		for k, elem := range val {
			if len(k) > maxStringValueLen {
				return fmt.Errorf("%w: config key too long", ErrInvalidDevice)
			}
			if err := validateValueSize(elem, depth+1); err != nil {
				return err
			}
		}
	case []any:
		if len(val) > maxArrayLen {
			return fmt.Errorf("%w: config array too large", ErrInvalidDevice)
		}
		for _, elem := range val {
			if err := validateValueSize(elem, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
