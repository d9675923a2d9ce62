package observe_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonwraymond/querycache/observe"
)

func ExampleNewObserver() {
	cfg := observe.Config{
		ServiceName: "example-service",
		Version:     "1.0.0",
		Tracing:     observe.TracingConfig{Enabled: true, Exporter: "none"},
		Metrics:     observe.MetricsConfig{Enabled: false},
		Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
	}

	ctx := context.Background()
	obs, err := observe.NewObserver(ctx, cfg)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer func() {
		_ = obs.Shutdown(ctx)
	}()

	fmt.Println("Observer created successfully")
	// Output:
	// Observer created successfully
}

func ExampleNewObserver_validation() {
	_, err := observe.NewObserver(context.Background(), observe.Config{})
	if errors.Is(err, observe.ErrMissingServiceName) {
		fmt.Println("Caught: missing service name")
	}
	// Output:
	// Caught: missing service name
}

func ExampleQueryMeta_DigestString() {
	meta := observe.QueryMeta{Hash: `["todos",{"page":1}]`}
	fmt.Println(len(meta.DigestString()))
	// Output:
	// 16
}

func ExampleMiddleware_Wrap() {
	var logs bytes.Buffer
	mw := observe.NewMiddleware(nil, nil, observe.NewLoggerWithWriter("warn", &logs))

	fetch := mw.Wrap(func(ctx context.Context, meta observe.QueryMeta) (any, error) {
		return nil, errors.New("upstream unavailable")
	})

	_, err := fetch(context.Background(), observe.QueryMeta{Hash: `["todos"]`, Attempt: 1})
	fmt.Println(err)
	fmt.Println(strings.Contains(logs.String(), `"msg":"fetch attempt failed"`))
	// Output:
	// upstream unavailable
	// true
}
