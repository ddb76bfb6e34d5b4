package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kaptinlin/jsonschema"

	"voicebot/internal/infra/httpx"
)

// mustCompileShape compiles a response-shape schema at package init.
func mustCompileShape(doc string) *jsonschema.Schema {
	schema, err := jsonschema.NewCompiler().Compile([]byte(doc))
	if err != nil {
		panic(fmt.Sprintf("compile response shape: %v", err))
	}
	return schema
}

// fetchJSON GETs url, requires a 200 and a body matching shape, and returns
// the decoded object with numbers kept as json.Number so they render exactly
// as the source wrote them.
func fetchJSON(ctx context.Context, client *http.Client, url string, shape *jsonschema.Schema) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, httpx.Transport(err)
	}
	defer resp.Body.Close()

	body, err := httpx.ReadBody(resp)
	if err != nil {
		return nil, err
	}

	var generic any
	if err := json.Unmarshal(body, &generic); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if result := shape.Validate(generic); !result.IsValid() {
		return nil, fmt.Errorf("unexpected response shape from %s", req.URL.Host)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return out, nil
}
