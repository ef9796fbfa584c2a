package gravatar

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// AvatarURL builds the remote avatar address for email. The base gets exactly
// one trailing slash; d=404 makes the remote answer 404 instead of a default
// picture.
func AvatarURL(base, email string, width int) string {
	sum := md5.Sum([]byte(email))

	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	b.WriteByte('/')
	b.WriteString(hex.EncodeToString(sum[:]))
	b.WriteString("?d=404&s=")
	b.WriteString(strconv.Itoa(width))
	return b.String()
}

// Response is the outcome of a fetch. Body is nil unless Status is 2xx.
type Response struct {
	Status        int
	ContentType   string
	ContentLength int64
	Body          io.ReadCloser
}

func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

type Client struct {
	http *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// Fetch performs a GET on url. The caller must close Body of a 2xx response.
func (c *Client) Fetch(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build gravatar request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch gravatar: %w", err)
	}

	out := &Response{Status: resp.StatusCode}
	if !out.OK() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return out, nil
	}

	out.ContentType = resp.Header.Get("Content-Type")
	out.ContentLength = resp.ContentLength
	out.Body = resp.Body
	return out, nil
}
