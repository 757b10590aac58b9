package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// ParseAnthropicHeaders extracts rate limit info from Anthropic API headers.
func ParseAnthropicHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{}

	if retryAfter := headers.Get("retry-after"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			info.RetryAfter = time.Duration(seconds) * time.Second
		}
	}

	// Reset headers carry RFC3339 timestamps; the first parseable one wins.
	for _, header := range []string{
		"anthropic-ratelimit-input-tokens-reset",
		"anthropic-ratelimit-output-tokens-reset",
		"anthropic-ratelimit-requests-reset",
	} {
		if resetStr := headers.Get(header); resetStr != "" {
			if resetTime, err := time.Parse(time.RFC3339, resetStr); err == nil {
				info.ResetTime = resetTime.Unix()
				break
			}
		}
	}

	if v := headers.Get("anthropic-ratelimit-requests-remaining"); v != "" {
		info.RequestsRemaining, _ = strconv.Atoi(v)
	}
	if v := headers.Get("anthropic-ratelimit-input-tokens-remaining"); v != "" {
		info.InputTokensRemaining, _ = strconv.Atoi(v)
	}
	if v := headers.Get("anthropic-ratelimit-output-tokens-remaining"); v != "" {
		info.OutputTokensRemaining, _ = strconv.Atoi(v)
	}

	return info
}

// ParseOpenAIHeaders extracts rate limit info from OpenAI-compatible API
// headers.
func ParseOpenAIHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{}

	if retryAfter := headers.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			info.RetryAfter = time.Duration(seconds) * time.Second
		}
	}

	for _, header := range []string{
		"x-ratelimit-reset-tokens",
		"x-ratelimit-reset-requests",
	} {
		if resetStr := headers.Get(header); resetStr != "" {
			if resetTime, err := strconv.ParseInt(resetStr, 10, 64); err == nil {
				info.ResetTime = resetTime
				break
			}
		}
	}

	if v := headers.Get("x-ratelimit-remaining-requests"); v != "" {
		info.RequestsRemaining, _ = strconv.Atoi(v)
	}
	if v := headers.Get("x-ratelimit-remaining-tokens"); v != "" {
		info.TokensRemaining, _ = strconv.Atoi(v)
	}

	return info
}

// ParseGeminiHeaders extracts rate limit info from Google Gemini API headers.
func ParseGeminiHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{}

	if retryAfter := headers.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			info.RetryAfter = time.Duration(seconds) * time.Second
		}
	}

	return info
}
