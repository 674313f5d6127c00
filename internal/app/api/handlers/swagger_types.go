package handlers

import (
	"github.com/pawhaven/sustainer/internal/app/service/statistics"
	"github.com/pawhaven/sustainer/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespScanSubscriptions wraps ScanSubscriptionsResponse in the standard envelope.
type RespScanSubscriptions struct {
	Code    response.APIResponseCode  `json:"code"`
	Message string                    `json:"message"`
	Data    ScanSubscriptionsResponse `json:"data"`
}

// RespScanEvents wraps ScanEventsResponse in the standard envelope.
type RespScanEvents struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ScanEventsResponse       `json:"data"`
}

// RespSustainerStatistic wraps SustainerStatisticResponse in the standard envelope.
type RespSustainerStatistic struct {
	Code    response.APIResponseCode              `json:"code"`
	Message string                                `json:"message"`
	Data    statistics.SustainerStatisticResponse `json:"data"`
}
