package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"stututor-go/pkg/log"
	"stututor-go/pkg/upstream"
)

// ProxyHandler 把课程、用户和 AI 路由原样转发到上游服务。
type ProxyHandler struct {
	client *upstream.Client
}

// NewProxyHandler 创建一个新的 ProxyHandler。
func NewProxyHandler(client *upstream.Client) *ProxyHandler {
	return &ProxyHandler{client: client}
}

// ListCourses 转发 GET /courses。
func (h *ProxyHandler) ListCourses(c *gin.Context) {
	h.relayJSON(c, http.MethodGet, "/courses", "Failed to fetch courses")
}

// CreateCourse 转发 POST /courses。
func (h *ProxyHandler) CreateCourse(c *gin.Context) {
	h.relayJSON(c, http.MethodPost, "/courses", "Failed to create course")
}

// ListUsers 转发 GET /users。
func (h *ProxyHandler) ListUsers(c *gin.Context) {
	h.relayJSON(c, http.MethodGet, "/users", "Failed to fetch users")
}

// CreateUser 转发到 POST /users/create-user，上游失败时带上状态码和详情。
func (h *ProxyHandler) CreateUser(c *gin.Context) {
	const failure = "Failed to create user"
	body, err := readJSONBody(c)
	if err != nil {
		proxyFailure(c, failure, err)
		return
	}
	resp, err := h.client.Do(c.Request.Context(), http.MethodPost, "/users/create-user", body, "application/json")
	if err != nil {
		proxyFailure(c, failure, err)
		return
	}
	payload, err := resp.JSON()
	if err != nil {
		proxyFailure(c, failure, err)
		return
	}
	if !resp.OK() {
		log.Warnf("CreateUser: upstream returned %d", resp.StatusCode)
		c.JSON(resp.StatusCode, gin.H{"error": failure, "details": payload})
		return
	}
	c.JSON(http.StatusOK, payload)
}

// Gemini 把 /gemini/*path 原样透传给上游，包括状态码和 Content-Type。
func (h *ProxyHandler) Gemini(c *gin.Context) {
	path := "/gemini" + c.Param("path")
	if c.Request.URL.RawQuery != "" {
		path += "?" + c.Request.URL.RawQuery
	}
	var body io.Reader
	if c.Request.Body != nil {
		body = c.Request.Body
	}
	resp, err := h.client.Do(c.Request.Context(), c.Request.Method, path, body, c.GetHeader("Content-Type"))
	if err != nil {
		proxyFailure(c, "Failed to reach AI service", err)
		return
	}
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, resp.Body)
}

// relayJSON 转发请求并以 200 返回上游的 JSON。
func (h *ProxyHandler) relayJSON(c *gin.Context, method, path, failure string) {
	var body io.Reader
	if method != http.MethodGet {
		b, err := readJSONBody(c)
		if err != nil {
			proxyFailure(c, failure, err)
			return
		}
		body = b
	}
	resp, err := h.client.Do(c.Request.Context(), method, path, body, "application/json")
	if err != nil {
		proxyFailure(c, failure, err)
		return
	}
	payload, err := resp.JSON()
	if err != nil {
		proxyFailure(c, failure, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

// readJSONBody 读取请求体并确认它是合法的 JSON。
func readJSONBody(c *gin.Context) (io.Reader, error) {
	var payload interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		return nil, err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

func proxyFailure(c *gin.Context, message string, err error) {
	log.Errorf("Proxy %s %s: %s, error: %v", c.Request.Method, c.Request.URL.Path, message, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}
