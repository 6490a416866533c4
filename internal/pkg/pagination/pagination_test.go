package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestFromContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		query string
		want  Query
	}{
		{query: "", want: Query{Page: 1, Size: 10}},
		{query: "?page=3&limit=25", want: Query{Page: 3, Size: 25}},
		{query: "?page=-1&limit=0", want: Query{Page: 1, Size: 10}},
		{query: "?page=abc&limit=1000", want: Query{Page: 1, Size: 100}},
	}
	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", "/summaries"+tt.query, nil)
		assert.Equal(t, tt.want, FromContext(c), "query %q", tt.query)
	}
}

func TestMeta(t *testing.T) {
	m := Query{Page: 2, Size: 10}.Meta(25)
	assert.Equal(t, Pagination{CurrentPage: 2, TotalPages: 3, TotalCount: 25, HasNext: true, HasPrev: true}, m)

	last := Query{Page: 3, Size: 10}.Meta(25)
	assert.False(t, last.HasNext)

	empty := Query{Page: 1, Size: 10}.Meta(0)
	assert.Equal(t, 0, empty.TotalPages)
	assert.False(t, empty.HasNext)
	assert.False(t, empty.HasPrev)
}
