package sink

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"

	"github.com/G-Research/indexq/internal/common/indexqcontext"
	"github.com/G-Research/indexq/internal/common/indexqerrors"
	"github.com/G-Research/indexq/internal/indexq/configuration"
	"github.com/G-Research/indexq/internal/indexq/model"
)

// DestinationPlaceholder is replaced in the sink URL with the path escaped destination.
const DestinationPlaceholder = "{destination}"

// FileReader returns the uncompressed content of a batch file.
type FileReader interface {
	Read(path string) ([]byte, error)
}

// HTTPSink POSTs batches as JSON arrays. 2xx responses are successes, 4xx responses other than
// 408 and 429 are permanent rejections, and everything else, including network errors, is transient
// and retried up to MaxAttempts times.
type HTTPSink struct {
	urlTemplate string
	config      configuration.SinkConfig
	client      *http.Client
	reader      FileReader
}

func NewHTTPSink(config configuration.SinkConfig, reader FileReader) *HTTPSink {
	return &HTTPSink{
		urlTemplate: config.URL,
		config:      config,
		client:      &http.Client{Timeout: config.Timeout},
		reader:      reader,
	}
}

func (s *HTTPSink) Send(ctx *indexqcontext.Context, destination string, batch Batch) (bool, error) {
	body, err := s.body(batch)
	if err != nil {
		return false, err
	}
	target := strings.ReplaceAll(s.urlTemplate, DestinationPlaceholder, url.PathEscape(destination))

	attempts := s.config.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	err = retry.Do(
		func() error {
			return s.post(ctx, target, body)
		},
		retry.RetryIf(indexqerrors.IsTransient),
		retry.Attempts(attempts),
		retry.Delay(s.config.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			ctx.Log.WithError(err).Warnf("Attempt %d to send %s to %s failed", n+1, batch.Path, target)
		}),
	)
	if err != nil {
		return false, err
	}
	ctx.Log.Debugf("Sent %s to %s", batch.Path, target)
	return true, nil
}

func (s *HTTPSink) body(batch Batch) ([]byte, error) {
	if batch.Records != nil {
		return model.MarshalRecords(batch.Records)
	}
	b, err := s.reader.Read(batch.Path)
	if err != nil {
		return nil, errors.WithMessagef(err, "reading %s for sending", batch.Path)
	}
	return b, nil
}

func (s *HTTPSink) post(ctx *indexqcontext.Context, target string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return Transient(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return Transient(errors.Errorf("%s responded %s", target, resp.Status))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Permanent(errors.Errorf("%s responded %s", target, resp.Status))
	default:
		return Transient(errors.Errorf("%s responded %s", target, resp.Status))
	}
}
