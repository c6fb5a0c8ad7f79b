package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/livefir/livereload/internal/extractor"
)

// Classification describes what kind of change a file edit represents,
// so the engine can decide whether a compatible diff is even possible.
type Classification int

const (
	// Unknown covers non-.go files (asset changes are handled by the
	// caller before Classify is ever invoked) and .go files that fail to
	// parse -- both default to a full reload upstream.
	Unknown Classification = iota
	// TemplateOnly means every change in this revision of the file falls
	// inside recognised template literals; a compatible diff is possible.
	TemplateOnly
	// CodeAffecting means Go source outside any template literal changed,
	// which this tool cannot hot-patch -- the process must be rebuilt.
	CodeAffecting
)

func (c Classification) String() string {
	switch c {
	case TemplateOnly:
		return "template_only"
	case CodeAffecting:
		return "code_affecting"
	default:
		return "unknown"
	}
}

// Classifier re-extracts a changed .go file and compares its "skeleton"
// (the file with every template literal's text blanked out) against the
// skeleton recorded the previous time the file was seen, to tell apart
// a template-only edit from a change to the surrounding Go code.
//
// Skeleton comparison works by textual removal of each site's raw
// literal text rather than exact byte spans; a file containing two
// byte-identical template literals could theoretically be misclassified,
// an accepted simplification for a development-time tool.
type Classifier struct {
	extractor *extractor.Extractor
	skeletons map[string]string
}

func NewClassifier(ext *extractor.Extractor) *Classifier {
	return &Classifier{extractor: ext, skeletons: make(map[string]string)}
}

// Classify reads path, re-extracts its template sites, and returns the
// resulting Classification plus the freshly extracted sites (nil for
// Unknown). Non-.go paths always return Unknown; callers handle asset
// extensions (.css, .js) before reaching this point.
func (c *Classifier) Classify(path string) (Classification, []extractor.Site, error) {
	if strings.ToLower(filepath.Ext(path)) != ".go" {
		return Unknown, nil, nil
	}
	src, err := readWithRetry(path)
	if err != nil {
		return Unknown, nil, err
	}
	sites, _, err := c.extractor.Extract(path, src)
	if err != nil {
		return Unknown, nil, nil
	}

	skeleton := skeletonize(string(src), sites)
	prev, seen := c.skeletons[path]
	c.skeletons[path] = skeleton

	if !seen {
		return TemplateOnly, sites, nil
	}
	if prev != skeleton {
		return CodeAffecting, sites, nil
	}
	return TemplateOnly, sites, nil
}

// Forget drops any recorded skeleton for path, e.g. after the file is
// deleted, so a later file of the same name starts fresh.
func (c *Classifier) Forget(path string) {
	delete(c.skeletons, path)
}

func skeletonize(src string, sites []extractor.Site) string {
	out := src
	for _, s := range sites {
		if s.Raw.Text == "" {
			continue
		}
		out = strings.Replace(out, s.Raw.Text, templateLiteralPlaceholder, 1)
	}
	return out
}

const templateLiteralPlaceholder = "\x00TEMPLATE_LITERAL\x00"

// extractionRetryDelays is the capped exponential backoff schedule for a
// transient extraction I/O failure (spec §4.2/§4.5/§8): 100ms, 1s, then
// 5s, for 5 attempts total, the same shape as this package's
// fsnotify.Add retry in Watcher.addWithRetry.
var extractionRetryDelays = []time.Duration{100 * time.Millisecond, time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}

// readWithRetry re-reads path across extractionRetryDelays before giving
// up, so an editor's atomic-rename-mid-event or other transient I/O
// failure doesn't silently drop a template until an unrelated later
// event happens to touch the same path.
func readWithRetry(path string) (src []byte, err error) {
	for _, d := range extractionRetryDelays {
		if src, err = os.ReadFile(path); err == nil {
			return src, nil
		}
		time.Sleep(d)
	}
	return nil, err
}
