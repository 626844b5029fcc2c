package comparator

import (
	"context"

	"github.com/example/shotcmp/pkg/element"
)

// TestingT is the subset of *testing.T used by Assert.
type TestingT interface {
	Errorf(format string, args ...any)
}

type helper interface {
	Helper()
}

// Assert captures el to outputFile and fails t unless it matches controlFile
// at the comparator's threshold. It keeps the test running and returns
// whether the assertion held.
func (c *Comparator) Assert(t TestingT, el element.Element, controlFile, outputFile string) bool {
	if h, ok := t.(helper); ok {
		h.Helper()
	}

	res, err := c.Compare(context.Background(), el, controlFile, outputFile)
	if err != nil {
		t.Errorf("screenshot %s could not be compared with %s: %v", outputFile, controlFile, err)
		return false
	}
	if !res.Similar {
		if res.DiffPath != "" {
			t.Errorf("screenshot %s differs from %s: similarity %.4f below threshold %.4f; see %s",
				outputFile, controlFile, res.Score, res.Threshold, res.DiffPath)
		} else {
			t.Errorf("screenshot %s differs from %s: similarity %.4f below threshold %.4f",
				outputFile, controlFile, res.Score, res.Threshold)
		}
		return false
	}
	return true
}

// Assert runs Comparator.Assert with a default Comparator.
func Assert(t TestingT, el element.Element, controlFile, outputFile string) bool {
	if h, ok := t.(helper); ok {
		h.Helper()
	}
	return New().Assert(t, el, controlFile, outputFile)
}
