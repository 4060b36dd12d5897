package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/mechpack/internal/catalogue"
	"github.com/samcharles93/mechpack/internal/cellgroup"
	"github.com/samcharles93/mechpack/internal/checkpoint"
	"github.com/samcharles93/mechpack/internal/device"
	"github.com/samcharles93/mechpack/internal/mechanism"
	"github.com/samcharles93/mechpack/internal/metrics"
	"github.com/samcharles93/mechpack/internal/schema"
	"github.com/samcharles93/mechpack/internal/shared"
)

func newTestServer(t *testing.T, withStore bool) (*echo.Echo, *cellgroup.Group) {
	t.Helper()
	dev := device.NewHost(0)
	cfg := shared.Config{
		NIntdom:      1,
		NCell:        1,
		CVToIntdom:   []int32{0, 0, 0},
		CVToCell:     []int32{0, 0, 0},
		InitVoltage:  []float64{-65, -65, -65},
		TemperatureK: []float64{279.45, 279.45, 279.45},
		Diameter:     []float64{1, 1, 1},
	}
	g, err := cellgroup.New(dev, cfg, catalogue.Builtin(), cellgroup.WithMetrics(metrics.New(dev)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = g.Close() })
	ctx := context.Background()
	if _, err := g.Add(ctx, cellgroup.Placement{Mechanism: "pas", Layout: mechanism.Layout{CV: []int32{0, 1, 2}}}); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Add(ctx, cellgroup.Placement{Mechanism: "expsyn", Layout: mechanism.Layout{CV: []int32{1}}}); err != nil {
		t.Fatal(err)
	}

	var store *checkpoint.Store
	if withStore {
		store, err = checkpoint.Open(filepath.Join(t.TempDir(), "mechpack.db"))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = store.Close() })
	}
	e := echo.New()
	NewServer(g, store).Register(e)
	return e, g
}

func doJSON(t *testing.T, e *echo.Echo, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthAndCatalogue(t *testing.T) {
	e, _ := newTestServer(t, false)

	rec := doJSON(t, e, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	health := decodeBody[map[string]any](t, rec)
	if health["device"] != "host" || health["instances"] != float64(2) {
		t.Fatalf("unexpected health %v", health)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/catalogue", nil)
	cat := decodeBody[ListResponse[map[string]any]](t, rec)
	if len(cat.Data) != 4 || cat.Data[0]["name"] != "cad" {
		t.Fatalf("unexpected catalogue %v", cat.Data)
	}
}

func TestMechanismRoutes(t *testing.T) {
	e, _ := newTestServer(t, false)

	rec := doJSON(t, e, http.MethodGet, "/v1/mechanisms", nil)
	mechs := decodeBody[ListResponse[MechanismSummary]](t, rec)
	if len(mechs.Data) != 2 || mechs.Data[0].Name != "pas" || mechs.Data[1].Width != 1 {
		t.Fatalf("unexpected mechanisms %+v", mechs.Data)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/mechanisms/1", nil)
	detail := decodeBody[MechanismDetail](t, rec)
	if detail.Name != "expsyn" || len(detail.Parameters) != 2 || len(detail.State) != 1 || detail.State[0] != "g" {
		t.Fatalf("unexpected detail %+v", detail)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/mechanisms/0/fields", nil)
	fields := decodeBody[ListResponse[FieldView]](t, rec)
	if len(fields.Data) != 2 || fields.Data[0].Name != "g" || !strings.HasPrefix(fields.Data[0].Addr, "0x") {
		t.Fatalf("unexpected fields %+v", fields.Data)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/mechanisms/0/layout", nil)
	layout := decodeBody[mechanism.Report](t, rec)
	if layout.Width != 3 || layout.WidthPadded != 16 {
		t.Fatalf("unexpected layout %+v", layout)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/mechanisms/0/ions", nil)
	ions := decodeBody[ListResponse[IonView]](t, rec)
	if len(ions.Data) != 0 {
		t.Fatalf("pas has no ions, got %+v", ions.Data)
	}
}

func TestFieldReadWrite(t *testing.T) {
	e, g := newTestServer(t, false)

	rec := doJSON(t, e, http.MethodPut, "/v1/mechanisms/0/fields/e", SetFieldRequest{Values: []float64{-60, -61, -62}})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	pas, _ := g.Instance(0)
	got, _ := pas.FieldValues("e")
	if got[0] != -60 || got[2] != -62 {
		t.Fatalf("field e = %v", got)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/mechanisms/0/fields/e", nil)
	vals := decodeBody[FieldValues](t, rec)
	if vals.Name != "e" || len(vals.Values) != 3 || vals.Values[1] != -61 {
		t.Fatalf("unexpected values %+v", vals)
	}
}

func TestGlobalTableReportsResolvedValues(t *testing.T) {
	e, g := newTestServer(t, false)
	leak := &schema.Mechanism{
		Name:       "leak",
		Kind:       schema.Density,
		Parameters: []schema.Field{{Name: "g", Default: 1e-3}},
		Globals:    []schema.Field{{Name: "q10", Default: 3}, {Name: "celsius", Default: 6.3}},
	}
	if err := g.Catalogue().Add(&mechanism.Type{Schema: leak}); err != nil {
		t.Fatal(err)
	}
	m, err := g.Add(context.Background(), cellgroup.Placement{
		Mechanism: "leak",
		Layout:    mechanism.Layout{CV: []int32{0}},
		Overrides: mechanism.Overrides{Globals: map[string]float64{"celsius": 37}},
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, e, http.MethodGet, fmt.Sprintf("/v1/mechanisms/%d/globals", m.ID()), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"default"`) {
		t.Fatalf("globals reported as defaults: %s", rec.Body.String())
	}
	globals := decodeBody[ListResponse[GlobalView]](t, rec)
	want := []GlobalView{{Name: "q10", Value: 3}, {Name: "celsius", Value: 37}}
	if len(globals.Data) != len(want) || globals.Data[0] != want[0] || globals.Data[1] != want[1] {
		t.Fatalf("globals = %+v, want %+v", globals.Data, want)
	}
}

func TestFieldWritesDuringInitialize(t *testing.T) {
	e, _ := newTestServer(t, false)

	var wg sync.WaitGroup
	codes := make(chan int, 40)
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			v := float64(i)
			codes <- doJSON(t, e, http.MethodPut, "/v1/mechanisms/1/fields/g", SetFieldRequest{Values: []float64{v}}).Code
		}()
		go func() {
			defer wg.Done()
			codes <- doJSON(t, e, http.MethodPost, "/v1/initialize", nil).Code
		}()
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		if code != http.StatusNoContent {
			t.Fatalf("status %d", code)
		}
	}
}

func TestErrorStatuses(t *testing.T) {
	e, _ := newTestServer(t, false)

	cases := []struct {
		method string
		path   string
		body   any
		status int
		kind   string
	}{
		{http.MethodGet, "/v1/mechanisms/abc", nil, http.StatusBadRequest, "invalid_request_error"},
		{http.MethodGet, "/v1/mechanisms/9", nil, http.StatusNotFound, "not_found_error"},
		{http.MethodGet, "/v1/mechanisms/0/fields/nope", nil, http.StatusNotFound, "not_found_error"},
		{http.MethodPut, "/v1/mechanisms/0/fields/g", SetFieldRequest{Values: []float64{1}}, http.StatusBadRequest, "invalid_request_error"},
	}
	for _, tc := range cases {
		rec := doJSON(t, e, tc.method, tc.path, tc.body)
		if rec.Code != tc.status {
			t.Fatalf("%s %s: status %d, want %d", tc.method, tc.path, rec.Code, tc.status)
		}
		body := decodeBody[map[string]ResponseError](t, rec)
		if body["error"].Type != tc.kind {
			t.Fatalf("%s %s: type %q, want %q", tc.method, tc.path, body["error"].Type, tc.kind)
		}
	}
}

func TestInitializeAndReset(t *testing.T) {
	e, g := newTestServer(t, false)
	syn, _ := g.Instance(1)
	if err := syn.SetField("g", []float64{3}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, e, http.MethodPost, "/v1/initialize", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d", rec.Code)
	}
	got, _ := syn.FieldValues("g")
	if got[0] != 0 {
		t.Fatalf("expsyn g after initialize = %v", got)
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/reset", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestCheckpointRoutes(t *testing.T) {
	e, g := newTestServer(t, true)
	pas, _ := g.Instance(0)
	if err := pas.SetField("g", []float64{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, e, http.MethodPost, "/v1/checkpoints", CheckpointRequest{Label: "first"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[checkpoint.Summary](t, rec)
	if created.Label != "first" || created.Mechanisms != 2 {
		t.Fatalf("unexpected summary %+v", created)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/checkpoints", nil)
	listed := decodeBody[ListResponse[checkpoint.Summary]](t, rec)
	if len(listed.Data) != 1 || listed.Data[0].ID != created.ID {
		t.Fatalf("unexpected list %+v", listed.Data)
	}

	if err := pas.SetField("g", []float64{0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	rec = doJSON(t, e, http.MethodPost, "/v1/checkpoints/"+created.ID+"/restore", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	got, _ := pas.FieldValues("g")
	if got[1] != 2 {
		t.Fatalf("restored g = %v", got)
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/checkpoints/missing/restore", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
	rec = doJSON(t, e, http.MethodDelete, "/v1/checkpoints/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestCheckpointRoutesDisabledWithoutStore(t *testing.T) {
	e, _ := newTestServer(t, false)
	rec := doJSON(t, e, http.MethodGet, "/v1/checkpoints", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	e, _ := newTestServer(t, false)
	rec := doJSON(t, e, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `mechpack_instantiations_total{mechanism="pas",outcome="ok"} 1`) {
		t.Fatalf("metrics output missing instantiation counter:\n%s", rec.Body.String())
	}
}
