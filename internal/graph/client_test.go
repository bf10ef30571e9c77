package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeGraphServer routes the API paths the client uses. gremlinData maps a
// query substring to the data array returned for it.
func fakeGraphServer(t *testing.T, gremlinData map[string]string) (*httptest.Server, *[]string) {
	t.Helper()
	var queries []string
	mux := http.NewServeMux()
	mux.HandleFunc("/apis/gremlin", func(w http.ResponseWriter, r *http.Request) {
		var req gremlinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		queries = append(queries, req.Gremlin)
		for substr, data := range gremlinData {
			if strings.Contains(req.Gremlin, substr) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"requestId":"r1","status":{"code":200},"result":{"data":` + data + `}}`))
				return
			}
		}
		http.Error(w, "no fixture for query: "+req.Gremlin, http.StatusBadRequest)
	})
	return httptest.NewServer(mux), &queries
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(baseURL, "testgraph", "", "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNeighborPathsRendering(t *testing.T) {
	srv, queries := fakeGraphServer(t, map[string]string{
		"repeat(bothE()": `[
			{"objects":["alice","knows","bob"]},
			{"objects":["alice","knows","bob","works_at","acme"]},
			{"objects":["malformed","pair"]}
		]`,
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	paths, err := c.NeighborPaths(context.Background(), []string{"alice"}, 2, 100)
	if err != nil {
		t.Fatalf("NeighborPaths: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 well-formed paths, got %d: %v", len(paths), paths)
	}
	if paths[0].Text != "alice --[knows]--> bob" || paths[0].Hops != 1 {
		t.Errorf("one-hop path: got %q hops=%d", paths[0].Text, paths[0].Hops)
	}
	if paths[1].Text != "alice --[knows]--> bob --[works_at]--> acme" || paths[1].Hops != 2 {
		t.Errorf("two-hop path: got %q hops=%d", paths[1].Text, paths[1].Hops)
	}
	if len(*queries) != 1 || !strings.Contains((*queries)[0], "'alice'") {
		t.Errorf("expected one gremlin call quoting the vid, got %v", *queries)
	}
}

func TestNeighborPathsNoVids(t *testing.T) {
	c := newTestClient(t, "http://unused.invalid")
	paths, err := c.NeighborPaths(context.Background(), nil, 2, 10)
	if err != nil || paths != nil {
		t.Errorf("no vids should return nil, nil; got %v, %v", paths, err)
	}
}

func TestExistingVertexIDs(t *testing.T) {
	srv, _ := fakeGraphServer(t, map[string]string{
		".id()": `["alice", 42]`,
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ids, err := c.ExistingVertexIDs(context.Background(), []string{"alice", "missing", "42"})
	if err != nil {
		t.Fatalf("ExistingVertexIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "alice" || ids[1] != "42" {
		t.Errorf("got %v", ids)
	}
}

func TestCounts(t *testing.T) {
	srv, _ := fakeGraphServer(t, map[string]string{
		"g.V().count()": `[12]`,
		"g.E().count()": `[34]`,
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	v, e, err := c.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if v != 12 || e != 34 {
		t.Errorf("got %d vertices, %d edges", v, e)
	}
}

func TestGremlinQuoting(t *testing.T) {
	if got := quoteGremlin(`it's a \test`); got != `'it\'s a \\test'` {
		t.Errorf("quoteGremlin: got %s", got)
	}
	if got := quoteGremlinList([]string{"a", "b"}); got != "'a','b'" {
		t.Errorf("quoteGremlinList: got %s", got)
	}
}

func TestClearDataSendsConfirm(t *testing.T) {
	var gotPath, gotQuery, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("confirm_message")
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if err := c.ClearData(context.Background()); err != nil {
		t.Fatalf("ClearData: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/apis/graphs/testgraph/clear" {
		t.Errorf("got %s %s", gotMethod, gotPath)
	}
	if gotQuery != clearConfirm {
		t.Errorf("confirm_message: got %q", gotQuery)
	}
}

func TestBasicAuthHeader(t *testing.T) {
	var user, pass string
	var ok bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok = r.BasicAuth()
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "g1", "admin", "secret")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Schema(context.Background()); err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if !ok || user != "admin" || pass != "secret" {
		t.Errorf("basic auth not sent: %v %q %q", ok, user, pass)
	}
}

func TestImportSchemaSkipsExisting(t *testing.T) {
	var created []string
	mux := http.NewServeMux()
	mux.HandleFunc("/apis/graphs/testgraph/schema", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"propertykeys":[{"name":"name"}],"vertexlabels":[],"edgelabels":[]}`))
	})
	for _, endpoint := range []string{"propertykeys", "vertexlabels", "edgelabels", "indexlabels"} {
		endpoint := endpoint
		mux.HandleFunc("/apis/graphs/testgraph/schema/"+endpoint, func(w http.ResponseWriter, r *http.Request) {
			var el struct {
				Name string `json:"name"`
			}
			json.NewDecoder(r.Body).Decode(&el)
			created = append(created, endpoint+"/"+el.Name)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{}`))
		})
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()

	schema, err := ParseSchema(`{
		"propertykeys":[{"name":"name","data_type":"TEXT"},{"name":"age","data_type":"INT"}],
		"vertexlabels":[{"name":"person","properties":["name","age"],"primary_keys":["name"]}],
		"edgelabels":[{"name":"knows","source_label":"person","target_label":"person"}]
	}`)
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}

	c := newTestClient(t, srv.URL)
	n, err := c.ImportSchema(context.Background(), schema)
	if err != nil {
		t.Fatalf("ImportSchema: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 created (existing propertykey skipped), got %d", n)
	}
	for _, want := range []string{"propertykeys/age", "vertexlabels/person", "edgelabels/knows"} {
		found := false
		for _, got := range created {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing creation %s in %v", want, created)
		}
	}
	for _, got := range created {
		if got == "propertykeys/name" {
			t.Error("existing propertykey was re-created")
		}
	}
}

func TestAddVerticesAndEdges(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/apis/graphs/testgraph/graph/vertices/batch", func(w http.ResponseWriter, r *http.Request) {
		var vs []Vertex
		if err := json.NewDecoder(r.Body).Decode(&vs); err != nil || len(vs) != 2 {
			http.Error(w, "bad batch", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`["1:alice","1:bob"]`))
	})
	mux.HandleFunc("/apis/graphs/testgraph/graph/edges/batch", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`["S1:alice>1>>S1:bob"]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ids, err := c.AddVertices(context.Background(), []Vertex{
		{Label: "person", Properties: map[string]interface{}{"name": "alice"}},
		{Label: "person", Properties: map[string]interface{}{"name": "bob"}},
	})
	if err != nil {
		t.Fatalf("AddVertices: %v", err)
	}
	if len(ids) != 2 || ids[0] != "1:alice" {
		t.Errorf("got ids %v", ids)
	}

	n, err := c.AddEdges(context.Background(), []Edge{
		{Label: "knows", OutV: "1:alice", OutVLabel: "person", InV: "1:bob", InVLabel: "person"},
	})
	if err != nil {
		t.Fatalf("AddEdges: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 edge, got %d", n)
	}
}

func TestServerErrorSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "vertex label missing", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Gremlin(context.Background(), "g.V()")
	if err == nil || !strings.Contains(err.Error(), "vertex label missing") {
		t.Errorf("expected body in error, got %v", err)
	}
}
