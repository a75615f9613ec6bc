package kapytal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
)

// Query evaluates a JSONPath expression against the Document of the RecordKeeper.
//
// The result is made of the generic JSON values: map[string]any, []any,
// string, float64, bool or nil. A filter or a wildcard yields a []any.
func (rk *RecordKeeper) Query(path string) (any, error) {
	var buf bytes.Buffer
	if err := rk.Encode(&buf, nil); err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		return nil, err
	}
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", path, err)
	}
	return v, nil
}
