package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes payload with status. Application state changes between polls, so responses are never cached.
func JSON(c *gin.Context, status int, payload any) {
	c.Header("Cache-Control", "no-store")
	c.JSON(status, payload)
}

// OK writes a 200 OK JSON response.
func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}

// Page is the envelope for list endpoints.
type Page[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// List writes items as a Page. A nil slice is sent as an empty array.
func List[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	OK(c, Page[T]{Items: items, Count: len(items)})
}
