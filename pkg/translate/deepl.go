package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var _ Provider = (*DeepL)(nil)

// DeepL calls the DeepL v2 translate endpoint.
type DeepL struct {
	client *http.Client

	url   string
	token string
}

type DeepLOption func(*DeepL)

func WithClient(client *http.Client) DeepLOption {
	return func(c *DeepL) { c.client = client }
}

func WithToken(token string) DeepLOption {
	return func(c *DeepL) { c.token = token }
}

func NewDeepL(url string, options ...DeepLOption) (*DeepL, error) {
	if url == "" {
		url = "https://api-free.deepl.com"
	}

	c := &DeepL{
		client: http.DefaultClient,

		url: url,
	}

	for _, option := range options {
		option(c)
	}

	return c, nil
}

func (c *DeepL) Translate(ctx context.Context, text, source, target string) (string, error) {
	if target == "" {
		target = "EN"
	}

	type bodyType struct {
		Text       []string `json:"text"`
		SourceLang string   `json:"source_lang,omitempty"`
		TargetLang string   `json:"target_lang"`
	}

	body := bodyType{
		Text:       []string{strings.TrimSpace(text)},
		TargetLang: strings.ToUpper(target),
	}

	// DeepL detects the source when source_lang is omitted.
	if source != "" && !strings.EqualFold(source, Auto) {
		body.SourceLang = strings.ToUpper(source)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	u, err := url.JoinPath(c.url, "/v2/translate")
	if err != nil {
		return "", err
	}

	r, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	r.Header.Add("Authorization", "DeepL-Auth-Key "+c.token)
	r.Header.Add("Content-Type", "application/json")

	resp, err := c.client.Do(r)
	if err != nil {
		return "", err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", convertError(resp)
	}

	type resultType struct {
		Translations []struct {
			DetectedSourceLanguage string `json:"detected_source_language"`
			Text                   string `json:"text"`
		} `json:"translations"`
	}

	var result resultType

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if len(result.Translations) == 0 {
		return "", errors.New("unable to translate content")
	}

	return result.Translations[0].Text, nil
}

func convertError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusBadRequest && bytes.Contains(bytes.ToLower(data), []byte("lang")) {
		return fmt.Errorf("%w: %s", ErrUnsupported, strings.TrimSpace(string(data)))
	}

	if len(data) == 0 {
		return errors.New(http.StatusText(resp.StatusCode))
	}

	return fmt.Errorf("deepl: %s: %s", resp.Status, strings.TrimSpace(string(data)))
}
