package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"metricsbuf/internal/metrics"
)

var echoID = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(r.Header.Get(RequestIDHeader)))
})

func TestRequestID_Generated(t *testing.T) {
	w := httptest.NewRecorder()
	RequestID(echoID).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	id := w.Header().Get(RequestIDHeader)
	if len(id) != 36 {
		t.Fatalf("expected a uuid request id, got %q", id)
	}
	if w.Body.String() != id {
		t.Errorf("handler saw %q, response carries %q", w.Body.String(), id)
	}
}

func TestRequestID_Kept(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-42")
	w := httptest.NewRecorder()
	RequestID(echoID).ServeHTTP(w, req)

	if w.Header().Get(RequestIDHeader) != "client-42" || w.Body.String() != "client-42" {
		t.Errorf("client request id not kept: %q", w.Header().Get(RequestIDHeader))
	}
}

func TestAuth(t *testing.T) {
	h := Auth("s3cret")(echoID)

	cases := []struct {
		header string
		want   int
	}{
		{"Bearer s3cret", http.StatusOK},
		{"", http.StatusUnauthorized},
		{"Bearer wrong", http.StatusUnauthorized},
		{"Basic s3cret", http.StatusUnauthorized},
	}

	before := testutil.ToFloat64(metrics.HTTPAuthFailures)
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/ingest", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("Authorization %q: expected %d, got %d", tc.header, tc.want, w.Code)
		}
	}
	if got := testutil.ToFloat64(metrics.HTTPAuthFailures) - before; got != 3 {
		t.Errorf("expected 3 auth failures counted, got %v", got)
	}
}

func TestAuth_DisabledWithoutToken(t *testing.T) {
	w := httptest.NewRecorder()
	Auth("")(echoID).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ingest", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected open access, got %d", w.Code)
	}
}

func TestRecovery(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	before := testutil.ToFloat64(metrics.PanicsRecovered.WithLabelValues("http_handler"))
	w := httptest.NewRecorder()
	Recovery(panicking).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if got := testutil.ToFloat64(metrics.PanicsRecovered.WithLabelValues("http_handler")) - before; got != 1 {
		t.Errorf("expected panic counter +1, got %v", got)
	}
}

func TestLogging_RecordsStatus(t *testing.T) {
	teapot := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/tea", "418"))
	w := httptest.NewRecorder()
	Logging(teapot).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tea", nil))

	if w.Code != http.StatusTeapot {
		t.Errorf("status not passed through: %d", w.Code)
	}
	if got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/tea", "418")) - before; got != 1 {
		t.Errorf("expected request counter +1, got %v", got)
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(echoID, mw("first"), mw("second"), mw("third"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := strings.Join(order, ","); got != "first,second,third" {
		t.Errorf("unexpected order %s", got)
	}
}
