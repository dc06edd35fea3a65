package captcha

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	api2captcha "github.com/2captcha/2captcha-go"
)

var (
	ErrRejected = errors.New("captcha rejected by solver")
	ErrTimeout  = errors.New("captcha not solved in time")
)

// Client solves reCAPTCHA v2 challenges through 2captcha.
type Client struct {
	api     *api2captcha.Client
	timeout time.Duration
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if base, err := url.Parse(u); err == nil {
			c.api.BaseURL = base
		}
	}
}

// WithPolling sets the wait between result polls, in whole seconds.
func WithPolling(interval time.Duration) Option {
	return func(c *Client) { c.api.PollingInterval = int(interval / time.Second) }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
		c.api.RecaptchaTimeout = int((d + time.Second - 1) / time.Second)
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{api: api2captcha.NewClient(apiKey), timeout: 3 * time.Minute}
	c.api.PollingInterval = 5
	c.api.RecaptchaTimeout = int(c.timeout / time.Second)
	for _, o := range opts {
		o(c)
	}
	return c
}

type result struct {
	token string
	id    string
	err   error
}

// Solve submits the challenge and waits for the token. The SDK call is not
// cancellable, so ctx only stops the wait.
func (c *Client) Solve(ctx context.Context, siteKey, pageURL string, invisible bool) (string, error) {
	if c.api.ApiKey == "" {
		return "", errors.New("2captcha api key is not set")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	challenge := api2captcha.ReCaptcha{SiteKey: siteKey, Url: pageURL, Invisible: invisible}
	req := challenge.ToRequest()

	done := make(chan result, 1)
	go func() {
		token, id, err := c.api.Solve(req)
		done <- result{token: token, id: id, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", solveError(r.err)
		}
		log.Printf("Captcha: task %s solved", r.id)
		return r.token, nil
	}
}

func solveError(err error) error {
	switch {
	case errors.Is(err, api2captcha.ErrTimeout):
		return ErrTimeout
	case errors.Is(err, api2captcha.ErrApi):
		return fmt.Errorf("2captcha: %w", ErrRejected)
	default:
		return fmt.Errorf("2captcha: %w", err)
	}
}
