// Package telegram adapts the Telegram Bot API to the transport interfaces.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"gallerybot/internal/domain"
	"gallerybot/internal/transport"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const DefaultAPIURL = "https://api.telegram.org"

// APIError is an unsuccessful Bot API response.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(baseURL, token string, hc *http.Client) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token required")
	}
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, client: hc}, nil
}

type apiResponse struct {
	OK          bool                `json:"ok"`
	Result      jsoniter.RawMessage `json:"result"`
	ErrorCode   int                 `json:"error_code"`
	Description string              `json:"description"`
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s request: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return fmt.Errorf("telegram %s failed: status %d: %s", method, resp.StatusCode, string(raw))
	}
	if !ar.OK {
		return &APIError{Method: method, Code: ar.ErrorCode, Description: ar.Description}
	}
	if out != nil && len(ar.Result) > 0 {
		if err := json.Unmarshal(ar.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

func markup(kb transport.Keyboard) *inlineMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]inlineButton, 0, len(kb))
	for _, row := range kb {
		if len(row) == 0 {
			continue
		}
		r := make([]inlineButton, 0, len(row))
		for _, b := range row {
			r = append(r, inlineButton{Text: b.Text, CallbackData: b.Data})
		}
		rows = append(rows, r)
	}
	return &inlineMarkup{InlineKeyboard: rows}
}

type sendRequest struct {
	ChatID      string        `json:"chat_id"`
	MessageID   int64         `json:"message_id,omitempty"`
	Text        string        `json:"text,omitempty"`
	Caption     string        `json:"caption,omitempty"`
	ParseMode   string        `json:"parse_mode,omitempty"`
	Photo       string        `json:"photo,omitempty"`
	Video       string        `json:"video,omitempty"`
	Document    string        `json:"document,omitempty"`
	Voice       string        `json:"voice,omitempty"`
	Sticker     string        `json:"sticker,omitempty"`
	ReplyMarkup *inlineMarkup `json:"reply_markup,omitempty"`
}

// Deliver sends msg to target and returns the message id. Text messages with
// a ReplaceID edit that message in place, falling back to a new message.
func (c *Client) Deliver(ctx context.Context, target string, msg transport.Message) (string, error) {
	id, err := c.deliver(ctx, target, msg)
	if err != nil {
		return "", domain.NewDeliveryError(target, err)
	}
	return id, nil
}

func (c *Client) deliver(ctx context.Context, target string, msg transport.Message) (string, error) {
	ct := msg.Content
	req := sendRequest{ChatID: target, ParseMode: "HTML", ReplyMarkup: markup(msg.Keyboard)}

	var method string
	switch ct.Kind {
	case domain.ContentText, "":
		req.Text = ct.Text
		if msg.ReplaceID != "" {
			if mid, err := strconv.ParseInt(msg.ReplaceID, 10, 64); err == nil {
				edit := req
				edit.MessageID = mid
				if err := c.call(ctx, "editMessageText", edit, nil); err == nil {
					return msg.ReplaceID, nil
				}
			}
		}
		method = "sendMessage"
	case domain.ContentPhoto:
		method, req.Photo, req.Caption = "sendPhoto", ct.Handle, ct.Text
	case domain.ContentVideo:
		method, req.Video, req.Caption = "sendVideo", ct.Handle, ct.Text
	case domain.ContentDocument:
		method, req.Document, req.Caption = "sendDocument", ct.Handle, ct.Text
	case domain.ContentVoice:
		method, req.Voice, req.Caption = "sendVoice", ct.Handle, ct.Text
	case domain.ContentSticker:
		method, req.Sticker, req.ParseMode = "sendSticker", ct.Handle, ""
	default:
		return "", fmt.Errorf("unsupported content kind %q", ct.Kind)
	}

	var sent Message
	if err := c.call(ctx, method, req, &sent); err != nil {
		return "", err
	}
	return strconv.FormatInt(sent.MessageID, 10), nil
}

func (c *Client) Retract(ctx context.Context, target, deliveryID string) error {
	mid, err := strconv.ParseInt(deliveryID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid message id %q", deliveryID)
	}
	if err := c.call(ctx, "deleteMessage", sendRequest{ChatID: target, MessageID: mid}, nil); err != nil {
		return domain.NewDeliveryError(target, err)
	}
	return nil
}

func (c *Client) Acknowledge(ctx context.Context, callbackID, text string, alert bool) error {
	payload := struct {
		CallbackQueryID string `json:"callback_query_id"`
		Text            string `json:"text,omitempty"`
		ShowAlert       bool   `json:"show_alert,omitempty"`
	}{callbackID, text, alert}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

// Download resolves a file handle through getFile and streams its content.
func (c *Client) Download(ctx context.Context, handle string) (io.ReadCloser, string, error) {
	var f struct {
		FilePath string `json:"file_path"`
	}
	if err := c.call(ctx, "getFile", map[string]string{"file_id": handle}, &f); err != nil {
		return nil, "", err
	}
	if f.FilePath == "" {
		return nil, "", errors.New("telegram getFile: empty file path")
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, f.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, "", fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	return resp.Body, path.Ext(f.FilePath), nil
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error) {
	payload := struct {
		Offset         int64    `json:"offset,omitempty"`
		Timeout        int      `json:"timeout"`
		AllowedUpdates []string `json:"allowed_updates"`
	}{offset, timeoutSeconds, []string{"message", "callback_query"}}

	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	payload := struct {
		URL         string `json:"url"`
		SecretToken string `json:"secret_token,omitempty"`
	}{url, secret}
	return c.call(ctx, "setWebhook", payload, nil)
}

func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", struct{}{}, nil)
}
