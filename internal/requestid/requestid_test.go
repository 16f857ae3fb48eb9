package requestid

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ctx, id := New(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, FromContext(ctx))
}

func TestFromContext_Missing(t *testing.T) {
	id := FromContext(context.Background())
	assert.NotEmpty(t, id) // generates new UUID
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "test-123")
	assert.Equal(t, "test-123", FromContext(ctx))
}

func TestMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(FromContext(c.UserContext()) + "|" + FromFiber(c))
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(Header, "abc-123")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "abc-123|abc-123", string(body))
	assert.Equal(t, "abc-123", resp.Header.Get(Header))

	req = httptest.NewRequest("GET", "/", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Len(t, resp.Header.Get(Header), 36)
}
