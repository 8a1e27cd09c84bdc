package retry_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"snapshot-render/internal/retry"
)

type transportMock struct {
	fakeRoundTrip func(*http.Request) (*http.Response, error)
}

func (m *transportMock) RoundTrip(request *http.Request) (*http.Response, error) {
	return m.fakeRoundTrip(request)
}

type temporaryError struct {
	s string
}

func (te *temporaryError) Error() string {
	return te.s
}

func (te *temporaryError) Temporary() bool {
	return true
}

func respond(statusCode int) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(http.StatusText(statusCode))),
	}
}

func TestTransport_RetriesWithBody(t *testing.T) {
	var bodies []string
	client := &http.Client{
		Transport: &retry.Transport{
			Base: &transportMock{
				fakeRoundTrip: func(request *http.Request) (*http.Response, error) {
					body, err := io.ReadAll(request.Body)
					if err != nil {
						return nil, err
					}
					bodies = append(bodies, string(body))
					switch len(bodies) {
					case 1:
						return nil, &temporaryError{"fake"}
					case 2:
						return respond(http.StatusBadGateway), nil
					default:
						return respond(http.StatusOK), nil
					}
				},
			},
			RetryStrategy: retry.NewExponentialBackOff(time.Millisecond, 10*time.Millisecond, 5, nil),
			RetryOn:       retry.NewDefaultRetryOn(),
		},
	}

	request, err := http.NewRequest(http.MethodPatch, "http://example.com/callback", strings.NewReader(`{"match":false}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	response, err := client.Do(request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, response.StatusCode)
	}
	if len(bodies) != 3 {
		t.Fatalf("Expected 3 attempts, got %d", len(bodies))
	}
	for i, body := range bodies {
		if body != `{"match":false}` {
			t.Errorf("attempt %d sent body %q", i, body)
		}
	}
}

func TestTransport_Exceeded(t *testing.T) {
	attempts := 0
	client := &http.Client{
		Transport: &retry.Transport{
			Base: &transportMock{
				fakeRoundTrip: func(request *http.Request) (*http.Response, error) {
					attempts++
					return respond(http.StatusServiceUnavailable), nil
				},
			},
			RetryStrategy: retry.NewExponentialBackOff(time.Millisecond, time.Millisecond, 2, nil),
			RetryOn:       retry.NewDefaultRetryOn(),
		},
	}

	response, err := client.Get("http://example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected the last response to be returned, got %d", response.StatusCode)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestTransport_NotRetriable(t *testing.T) {
	attempts := 0
	client := &http.Client{
		Transport: &retry.Transport{
			Base: &transportMock{
				fakeRoundTrip: func(request *http.Request) (*http.Response, error) {
					attempts++
					return nil, errors.New("fake")
				},
			},
			RetryStrategy: retry.NewExponentialBackOff(time.Millisecond, time.Millisecond, 5, nil),
			RetryOn:       retry.NewDefaultRetryOn(),
		},
	}

	_, err := client.Get("http://example.com/")
	if err == nil || !strings.HasSuffix(err.Error(), "fake") {
		t.Errorf("Expected the base error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestTransport_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &http.Client{
		Transport: &retry.Transport{
			Base: &transportMock{
				fakeRoundTrip: func(request *http.Request) (*http.Response, error) {
					cancel()
					return respond(http.StatusBadGateway), nil
				},
			},
			RetryStrategy: retry.NewExponentialBackOff(time.Hour, time.Hour, 5, identity),
			RetryOn:       retry.NewDefaultRetryOn(),
		},
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.com/", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.Do(request); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected %v, got %v", context.Canceled, err)
	}
}

func TestDo(t *testing.T) {
	attempts := 0
	err := retry.Do(context.Background(), retry.NewExponentialBackOff(time.Millisecond, time.Millisecond, 5, nil), nil, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("fake")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}

	permanent := errors.New("permanent")
	attempts = 0
	err = retry.Do(context.Background(), retry.NewExponentialBackOff(time.Millisecond, time.Millisecond, 5, nil), func(err error) bool {
		return !errors.Is(err, permanent)
	}, func(ctx context.Context) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) || attempts != 1 {
		t.Errorf("Expected one attempt failing with %v, got %d attempts and %v", permanent, attempts, err)
	}
}
