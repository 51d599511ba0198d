// Package handler adapts the capture service to the Lambda invocation and response shapes.
package handler

import (
	"context"
	stdjson "encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/preview-capture/internal/capture"
	"github.com/xkilldash9x/preview-capture/internal/event"
	"github.com/xkilldash9x/preview-capture/internal/observability"
)

// Capturer runs a capture.
type Capturer interface {
	Capture(ctx context.Context, req *event.Request) (*capture.Result, error)
}

// SuccessBody is returned with the sink's status code.
type SuccessBody struct {
	Message string      `json:"message"`
	Data    SuccessData `json:"data"`
}

// SuccessData carries the stored image location.
type SuccessData struct {
	URL string `json:"url"`
}

// ErrorBody is returned for 4xx and 5xx responses.
type ErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Handler turns invocation payloads into API Gateway proxy responses.
type Handler struct {
	capturer Capturer
	logger   *zap.Logger
}

// New returns a Handler backed by capturer.
func New(capturer Capturer, logger *zap.Logger) *Handler {
	return &Handler{capturer: capturer, logger: logger.Named("handler")}
}

// Handle processes one invocation. Failures become JSON error responses, so
// the returned error is only set when the response itself cannot be encoded.
// The payload type is the encoding/json one because the Lambda runtime decodes with it.
func (h *Handler) Handle(ctx context.Context, payload stdjson.RawMessage) (events.APIGatewayProxyResponse, error) {
	log := observability.WithInvocation(ctx, h.logger)

	req, err := event.Parse(payload)
	if err != nil {
		log.Warn("Rejected invocation payload.", zap.Error(err))
		return h.respond(http.StatusBadRequest, ErrorBody{Message: "Bad Request", Error: err.Error()})
	}

	log.Info("Capture requested.", zap.String("key", req.Key), zap.String("destination_url", req.DestinationURL))
	res, err := h.capturer.Capture(ctx, req)
	if err != nil {
		if event.IsBadRequest(err) {
			return h.respond(http.StatusBadRequest, ErrorBody{Message: "Bad Request", Error: err.Error()})
		}
		log.Error("Capture failed.", zap.String("key", req.Key), zap.Error(err))
		return h.respond(http.StatusInternalServerError, ErrorBody{Message: "Internal Server Error", Error: err.Error()})
	}

	status := res.Location.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return h.respond(status, SuccessBody{Message: "Success", Data: SuccessData{URL: res.Location.URL}})
}

func (h *Handler) respond(status int, body interface{}) (events.APIGatewayProxyResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(data),
	}, nil
}
