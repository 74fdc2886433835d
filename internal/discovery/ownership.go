package discovery

import (
	_ "embed"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed data/trial_ownership.yaml
var ownershipYAML []byte

type ownershipFile struct {
	Prefixes map[string]string `yaml:"prefixes"`
}

var (
	ownerOnce     sync.Once
	ownerByPrefix map[string]string
)

func loadOwnership() {
	ownerByPrefix = make(map[string]string)
	var f ownershipFile
	if err := yaml.Unmarshal(ownershipYAML, &f); err != nil {
		zap.L().Error("discovery: parse trial ownership table", zap.Error(err))
		return
	}
	for prefix, drug := range f.Prefixes {
		ownerByPrefix[strings.ToUpper(prefix)] = strings.ToLower(drug)
	}
}

// nameOwner returns the drug that owns a trial name's prefix, or "" when
// the name is unclaimed. A prefix only matches at a word boundary, so
// "ORAL" claims "ORAL-Strategy" but not "ORALYT-2".
func nameOwner(name string) string {
	ownerOnce.Do(loadOwnership)

	upper := strings.ToUpper(name)
	for prefix, drug := range ownerByPrefix {
		if !strings.HasPrefix(upper, prefix) {
			continue
		}
		rest := upper[len(prefix):]
		if rest == "" || rest[0] == '-' || rest[0] == ' ' || (rest[0] >= '0' && rest[0] <= '9') {
			return drug
		}
	}
	return ""
}

// validateOwnership reports whether a trial name may be attributed to the
// given drug. Names with a prefix claimed by a different drug are rejected.
func validateOwnership(name, genericName string) bool {
	owner := nameOwner(name)
	if owner == "" {
		return true
	}
	return owner == strings.ToLower(strings.TrimSpace(genericName))
}
