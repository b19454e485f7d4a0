package api

import (
	"errors"
	"net/http"

	service "github.com/okian/facegate/internal/app"
	"github.com/okian/facegate/internal/domain/ledger"
	"github.com/okian/facegate/internal/domain/model"
	"github.com/okian/facegate/internal/enroll"
	"github.com/okian/facegate/internal/recognition"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrEncode     = errors.New("encode failed")
)

type errorMapping struct {
	targets []error
	status  int
	code    string
}

// errorMap is checked in order; the first match wins.
var errorMap = []errorMapping{
	{[]error{service.ErrAlreadyActive}, http.StatusConflict, "already_active"},
	{[]error{service.ErrEnrollBusy}, http.StatusConflict, "enroll_busy"},
	{[]error{service.ErrNotActive, service.ErrNoDetection, service.ErrNoFrame}, http.StatusNotFound, "not_found"},
	{[]error{ErrBadRequest, model.ErrInvalidChannel, service.ErrNoChannels, service.ErrInvalidImage}, http.StatusBadRequest, "bad_request"},
	{[]error{enroll.ErrDataset, enroll.ErrNoImages, enroll.ErrNoFaces}, http.StatusUnprocessableEntity, "enroll_failed"},
	{[]error{recognition.ErrSourceUnavailable, service.ErrNotStarted}, http.StatusServiceUnavailable, "unavailable"},
	{[]error{recognition.ErrDetection}, http.StatusBadGateway, "detection_failed"},
	{[]error{ledger.ErrPersistence}, http.StatusInternalServerError, "persistence"},
}
