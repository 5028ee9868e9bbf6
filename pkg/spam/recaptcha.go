package spam

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/tidwall/gjson"
)

// RecaptchaResult siteverify 的结果
type RecaptchaResult struct {
	Success    bool
	Score      float64
	Action     string
	ErrorCodes []string
}

// Verifier 验证前端提交的 reCAPTCHA token
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (*RecaptchaResult, error)
}

// Recaptcha Google reCAPTCHA v3 siteverify 客户端
type Recaptcha struct {
	secret    string
	verifyURL string
	client    *http.Client
}

// NewRecaptcha 创建客户端，verifyURL 为空时使用 Google 官方地址
func NewRecaptcha(secret, verifyURL string) *Recaptcha {
	if verifyURL == "" {
		verifyURL = "https://www.google.com/recaptcha/api/siteverify"
	}
	client := cleanhttp.DefaultClient()
	client.Timeout = 10 * time.Second
	return &Recaptcha{secret: secret, verifyURL: verifyURL, client: client}
}

// Verify 调用 siteverify
func (r *Recaptcha) Verify(ctx context.Context, token, remoteIP string) (*RecaptchaResult, error) {
	form := url.Values{}
	form.Set("secret", r.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recaptcha request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("recaptcha verify failed with status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("recaptcha verify returned invalid JSON")
	}

	parsed := gjson.ParseBytes(body)
	result := &RecaptchaResult{
		Success: parsed.Get("success").Bool(),
		Score:   parsed.Get("score").Float(),
		Action:  parsed.Get("action").String(),
	}
	for _, code := range parsed.Get("error-codes").Array() {
		result.ErrorCodes = append(result.ErrorCodes, code.String())
	}
	return result, nil
}
