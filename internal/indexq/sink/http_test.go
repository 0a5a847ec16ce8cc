package sink

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/indexq/internal/common/indexqcontext"
	"github.com/G-Research/indexq/internal/common/indexqerrors"
	"github.com/G-Research/indexq/internal/indexq/configuration"
	"github.com/G-Research/indexq/internal/indexq/model"
)

type fileReader map[string][]byte

func (r fileReader) Read(path string) ([]byte, error) {
	b, ok := r[path]
	if !ok {
		return nil, errors.Errorf("no file %s", path)
	}
	return b, nil
}

type request struct {
	path string
	body string
}

func testServer(t *testing.T, statuses ...int) (*httptest.Server, func() []request) {
	var mu sync.Mutex
	var requests []request
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		mu.Lock()
		requests = append(requests, request{path: r.URL.EscapedPath(), body: string(body)})
		mu.Unlock()

		n := int(atomic.AddInt32(&calls, 1)) - 1
		status := http.StatusOK
		if n < len(statuses) {
			status = statuses[n]
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []request {
		mu.Lock()
		defer mu.Unlock()
		return append([]request(nil), requests...)
	}
}

func testSink(srv *httptest.Server, reader FileReader, attempts uint) *HTTPSink {
	return NewHTTPSink(configuration.SinkConfig{
		URL:         srv.URL + "/" + DestinationPlaceholder + "/_bulk",
		Timeout:     5 * time.Second,
		MaxAttempts: attempts,
	}, reader)
}

func TestHTTPSink_WholeFile(t *testing.T) {
	srv, requests := testServer(t)
	reader := fileReader{"/q/todo/a.json": []byte(`[{"id":"1"}]`)}

	ok, err := testSink(srv, reader, 1).Send(indexqcontext.Background(), "products", Batch{Path: "/q/todo/a.json"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []request{{path: "/products/_bulk", body: `[{"id":"1"}]`}}, requests())
}

func TestHTTPSink_Partition(t *testing.T) {
	srv, requests := testServer(t)

	batch := Batch{Path: "/q/todo/a.json", Records: []model.Record{{"id": "2", "a": 1}}}
	ok, err := testSink(srv, fileReader{}, 1).Send(indexqcontext.Background(), "logs 2022/11", batch)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []request{{path: "/logs%202022%2F11/_bulk", body: `[{"a":1,"id":"2"}]`}}, requests())
}

func TestHTTPSink_Classification(t *testing.T) {
	tests := map[string]struct {
		statuses      []int
		attempts      uint
		expectedKind  indexqerrors.Kind
		expectedCalls int
		expectSuccess bool
	}{
		"bad request is rejected without retry": {
			statuses:      []int{http.StatusBadRequest},
			attempts:      3,
			expectedKind:  indexqerrors.KindSinkRejected,
			expectedCalls: 1,
		},
		"server errors are retried until they succeed": {
			statuses:      []int{http.StatusServiceUnavailable, http.StatusInternalServerError},
			attempts:      3,
			expectedCalls: 3,
			expectSuccess: true,
		},
		"server errors exhaust attempts": {
			statuses:      []int{http.StatusBadGateway, http.StatusBadGateway},
			attempts:      2,
			expectedKind:  indexqerrors.KindSinkTransient,
			expectedCalls: 2,
		},
		"too many requests is transient": {
			statuses:      []int{http.StatusTooManyRequests},
			attempts:      1,
			expectedKind:  indexqerrors.KindSinkTransient,
			expectedCalls: 1,
		},
		"zero attempts means one": {
			statuses:      []int{http.StatusBadGateway},
			attempts:      0,
			expectedKind:  indexqerrors.KindSinkTransient,
			expectedCalls: 1,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			srv, requests := testServer(t, tc.statuses...)
			batch := Batch{Path: "a.json", Records: []model.Record{{"id": "1"}}}

			ok, err := testSink(srv, fileReader{}, tc.attempts).Send(indexqcontext.Background(), "products", batch)
			assert.Len(t, requests(), tc.expectedCalls)
			if tc.expectSuccess {
				require.NoError(t, err)
				assert.True(t, ok)
				return
			}
			assert.False(t, ok)
			assert.Equal(t, tc.expectedKind, indexqerrors.KindFromError(err))
		})
	}
}

func TestHTTPSink_UnreachableIsTransient(t *testing.T) {
	srv, _ := testServer(t)
	s := testSink(srv, fileReader{}, 1)
	srv.Close()

	_, err := s.Send(indexqcontext.Background(), "products", Batch{Records: []model.Record{}})
	assert.Equal(t, indexqerrors.KindSinkTransient, indexqerrors.KindFromError(err))
}

func TestHTTPSink_UnreadableFile(t *testing.T) {
	srv, requests := testServer(t)
	_, err := testSink(srv, fileReader{}, 1).Send(indexqcontext.Background(), "products", Batch{Path: "missing.json"})
	assert.Error(t, err)
	assert.Empty(t, requests())
}

func TestClassify(t *testing.T) {
	err := Classify(errors.New("boom"), "products", "a.json")
	var transient *indexqerrors.ErrSinkTransient
	require.True(t, errors.As(err, &transient))
	assert.Equal(t, "products", transient.Destination)
	assert.Equal(t, "a.json", transient.Path)

	err = Classify(Permanent(errors.New("bad")), "products", "a.json")
	var rejected *indexqerrors.ErrSinkRejected
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "products", rejected.Destination)

	assert.NoError(t, Classify(nil, "products", "a.json"))
}

func TestFunc(t *testing.T) {
	var s Sink = Func(func(_ *indexqcontext.Context, destination string, batch Batch) (bool, error) {
		return destination == "yes", nil
	})
	ok, err := s.Send(indexqcontext.Background(), "yes", Batch{})
	require.NoError(t, err)
	assert.True(t, ok)
}
