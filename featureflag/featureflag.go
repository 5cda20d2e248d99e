package featureflag

import (
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// FeatureFlag is a lookup map for features that is enabled or disabled
type FeatureFlag map[Flag]struct{}

// New returns feature flags initialized with a list of flags. Flags are case
// insensitive and unknown flags are rejected.
func New(flags []string) (FeatureFlag, error) {
	featureFlag := make(FeatureFlag, len(flags))
	for _, f := range flags {
		flag := Flag(strings.ToUpper(strings.TrimSpace(f)))
		if flag == "" {
			continue
		}

		if _, ok := knownFlags[flag]; !ok {
			return nil, errors.New("unknown feature flag").
				WithType("invalid_feature_flag").
				WithTag("flag", f)
		}
		featureFlag[flag] = struct{}{}
	}
	return featureFlag, nil
}

// IsSet reports whether the flag is set.
func (f FeatureFlag) IsSet(flag Flag) bool {
	_, ok := f[flag]
	return ok
}

// IfSet runs function `do` if flag is set in the feature flags
func (f FeatureFlag) IfSet(flag Flag, do func()) {
	if !f.IsSet(flag) {
		return
	}
	do()
}

// IfNotSet runs function `do` if flag is not set in the feature flags
func (f FeatureFlag) IfNotSet(flag Flag, do func()) {
	if f.IsSet(flag) {
		return
	}
	do()
}
