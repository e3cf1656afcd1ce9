package validator

// VersionRules are the protocol rules that apply to one schema version.
type VersionRules struct {
	MaxIntervals int
}

// DefaultRules is the rule table for the versions this build understands.
// A new schema version is supported by adding an entry here and to the
// profile's supported versions.
var DefaultRules = map[string]VersionRules{
	"1.0": {MaxIntervals: 48},
	"1.1": {MaxIntervals: 48},
}

const DefaultMaxPowerKW = 50.0

// Profile is the device model specific configuration of a Validator.
type Profile struct {
	SupportedVersions []string
	DefaultMaxPowerKW float64
	Rules             map[string]VersionRules
}

func DefaultProfile() Profile {
	return Profile{
		SupportedVersions: []string{"1.0", "1.1"},
		DefaultMaxPowerKW: DefaultMaxPowerKW,
		Rules:             DefaultRules,
	}
}

// Result of a validation. EffectiveLimit is set even when Valid is false.
type Result struct {
	Valid          bool
	Reason         string
	EffectiveLimit float64
	Err            error
}
