// Task 4.2: Pluggable task classifiers.
// A classifier inspects the latest payload of a flushed batch and tags it
// with severities; the priority score is the weighted sum of the tags
// (critical=10, warning=5, info=1). A failing classifier never aborts the
// batch: its tags are skipped and, if no classifier yields anything, the
// task gets the neutral default score.
package reflex

import (
	"path/filepath"
	"strings"

	"github.com/synapselabs/synapse/internal/infra/eventbus"
)

// Severity tags a change by how urgently it should be acted on.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// severityWeights is the fixed scoring table.
var severityWeights = map[Severity]int{
	SeverityCritical: 10,
	SeverityWarning:  5,
	SeverityInfo:     1,
}

// NeutralScore is assigned when classification produces nothing usable.
const NeutralScore = 1

// Classifier tags one flushed payload. Implementations may read the
// filesystem or other state; errors are tolerated per the contract above.
type Classifier func(key string, p eventbus.Payload) ([]Severity, error)

// scoreOf sums the weights of the given severities.
func scoreOf(tags []Severity) int {
	score := 0
	for _, s := range tags {
		score += severityWeights[s]
	}
	return score
}

// PathClassifier is the default filename-heuristic classifier: build and
// dependency manifests are critical, source files warn, everything else is
// informational. Test files are always informational.
func PathClassifier(key string, _ eventbus.Payload) ([]Severity, error) {
	base := filepath.Base(key)
	ext := filepath.Ext(base)

	switch {
	case strings.Contains(base, "_test") || strings.Contains(base, ".test."):
		return []Severity{SeverityInfo}, nil
	case base == "go.mod" || base == "go.sum" || base == "package.json" ||
		ext == ".yml" || ext == ".yaml" || ext == ".toml":
		return []Severity{SeverityCritical}, nil
	case ext == ".go" || ext == ".ts" || ext == ".tsx" || ext == ".js" || ext == ".py":
		return []Severity{SeverityWarning}, nil
	default:
		return []Severity{SeverityInfo}, nil
	}
}

// RemovalClassifier escalates deletions: a removed or renamed file usually
// needs a commit sooner than an edit.
func RemovalClassifier(_ string, p eventbus.Payload) ([]Severity, error) {
	fc, ok := p.(eventbus.FileChangedPayload)
	if !ok {
		return nil, nil
	}
	if fc.Op == "remove" || fc.Op == "rename" {
		return []Severity{SeverityWarning}, nil
	}
	return nil, nil
}

// DefaultClassifiers is the stock classifier chain.
func DefaultClassifiers() []Classifier {
	return []Classifier{PathClassifier, RemovalClassifier}
}
