// Package httpclassifier talks to a classification model exposed over plain
// HTTP: POST /classify with a multipart "image" field, answering
// {"category": "...", "confidence": 0.0}.
package httpclassifier

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/example/eco-collect/internal/classifier"
	"github.com/example/eco-collect/internal/logging"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type httpClassifier struct {
	client *resty.Client
	logger *zap.Logger
}

// New builds a classifier client for the given base URL.
func New(cfg Config, logger *zap.Logger) classifier.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)

	return &httpClassifier{client: cli, logger: logger.Named("http_classifier")}
}

func (h *httpClassifier) Classify(ctx context.Context, image []byte) (*classifier.Result, error) {
	var out classifier.Result

	resp, err := h.client.R().
		SetContext(ctx).
		SetFileReader("image", "upload", bytes.NewReader(image)).
		SetResult(&out).
		Post("/classify")
	if err != nil {
		wrapped := logging.NewOperationError("httpclassifier.classify", "", err)
		h.logger.Error("classifier request failed", zap.Error(wrapped))
		return nil, wrapped
	}
	if resp.IsError() {
		return nil, logging.NewOperationError("httpclassifier.classify", "",
			fmt.Errorf("classifier responded with status %d", resp.StatusCode()))
	}

	if err := out.Validate(); err != nil {
		return nil, logging.NewOperationError("httpclassifier.decode_result", "", err)
	}
	return &out, nil
}
