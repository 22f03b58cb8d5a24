package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/NicoRio42/mapant-fr-worker/internal/config"
	"github.com/NicoRio42/mapant-fr-worker/internal/types"
)

// Client requests jobs from the mapant.fr job queue.
type Client struct {
	baseURL       string
	authorization string
}

// NewClient creates a job queue client from the worker configuration.
func NewClient(cfg config.Config) *Client {
	return &Client{
		baseURL:       cfg.BaseURL,
		authorization: cfg.Authorization(),
	}
}

// NextJob asks the server for the next job to process. A server with an
// empty queue answers with a NoJobLeft job rather than an error.
func (c *Client) NextJob(ctx context.Context) (types.Job, error) {
	agent := c.createAgent(ctx, NextJobURL(c.baseURL))

	var job types.Job
	if err := c.doRequest(agent, &job); err != nil {
		return types.Job{}, fmt.Errorf("failed to get next job: %w", err)
	}

	return job, nil
}

// createAgent creates a new Fiber Agent for a POST to the given URL with the
// headers the API expects on every call.
func (c *Client) createAgent(ctx context.Context, url string) *fiber.Agent {
	agent := fiber.Post(url)

	// Jobs can legitimately take a while to be assigned, so there is no
	// default timeout. A context deadline is honored when the caller sets one.
	if deadline, ok := ctx.Deadline(); ok {
		agent.Timeout(time.Until(deadline))
	}

	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	agent.Set(fiber.HeaderAuthorization, c.authorization)
	agent.Set(fiber.HeaderOrigin, c.baseURL)

	return agent
}

// doRequest sends the HTTP request and decodes the response into v.
func (c *Client) doRequest(agent *fiber.Agent, v interface{}) error {
	statusCode, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("error sending request: %w", errs[0])
	}

	if statusCode < 200 || statusCode >= 300 {
		return &fiber.Error{
			Code:    statusCode,
			Message: string(body),
		}
	}

	if v != nil && len(body) > 0 {
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("error decoding response: %w", err)
		}
	}

	return nil
}
