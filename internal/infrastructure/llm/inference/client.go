package inference

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/lawknot/legal-assistant/internal/infrastructure/resilience"
)

const defaultTimeout = 60 * time.Second

// Client forwards chat messages to the external inference service, which
// accepts {"message"} and answers {"response"}. The timeout bounds a whole
// Reply, retries included.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout  time.Duration
	Executor *resilience.Executor
}

func New(endpoint string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint:   strings.TrimSpace(endpoint),
		timeout:    timeout,
		httpClient: &http.Client{},
		executor:   opts.Executor,
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

func (c *Client) Reply(ctx context.Context, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	call := func(ctx context.Context) (string, error) {
		var out chatResponse
		if err := c.postJSON(ctx, chatRequest{Message: message}, &out, "chat"); err != nil {
			return "", err
		}
		return out.Response, nil
	}

	reply, err := resilience.Call(ctx, c.executor, "inference.chat", call, classifyInferenceError)
	if err != nil {
		return "", wrapUpstreamError("inference chat", err)
	}
	return reply, nil
}
