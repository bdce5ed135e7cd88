/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package admin is the worker's configuration plane: a framed request/response
// channel whose mutations apply synchronously between event-loop iterations, plus
// the state snapshot store, the event publisher and the read-only status surface.
package admin

import "github.com/google/uuid"

// RequestType tags the WorkerRequest union.
type RequestType string

const (
	ReqAddCluster        RequestType = "add_cluster"
	ReqRemoveCluster     RequestType = "remove_cluster"
	ReqAddHTTPFrontend   RequestType = "add_http_frontend"
	ReqAddHTTPSFrontend  RequestType = "add_https_frontend"
	ReqAddTCPFrontend    RequestType = "add_tcp_frontend"
	ReqRemoveFrontend    RequestType = "remove_frontend"
	ReqAddBackend        RequestType = "add_backend"
	ReqRemoveBackend     RequestType = "remove_backend"
	ReqAddCertificate    RequestType = "add_certificate"
	ReqRemoveCertificate RequestType = "remove_certificate"
	ReqActivateListener  RequestType = "activate_listener"
	ReqDeactivateListener RequestType = "deactivate_listener"
	ReqStatus            RequestType = "status"
	ReqDumpState         RequestType = "dump_state"
	ReqSoftStop          RequestType = "soft_stop"
	ReqHardStop          RequestType = "hard_stop"
	ReqReturnListenSockets RequestType = "return_listen_sockets"
	ReqLaunchWorker      RequestType = "launch_worker"
	ReqUpgradeMaster     RequestType = "upgrade_master"
	ReqSaveState         RequestType = "save_state"
	ReqLoadState         RequestType = "load_state"
)

// ResponseStatus is the lifecycle of one answered request: zero or more Processing
// frames then exactly one terminal Ok or Error, matched by id.
type ResponseStatus string

const (
	StatusProcessing ResponseStatus = "processing"
	StatusOk         ResponseStatus = "ok"
	StatusError      ResponseStatus = "error"
)

// WorkerRequest is one framed admin command. Payload carries the type-specific
// fields, decoded into a typed config by the apply path.
type WorkerRequest struct {
	ID      string                 `cbor:"id" json:"id"`
	Type    RequestType            `cbor:"type" json:"type"`
	Payload map[string]interface{} `cbor:"payload,omitempty" json:"payload,omitempty"`
}

// WorkerResponse answers a request. The id echoes the request verbatim; responses
// may interleave across requests, only ids pair them.
type WorkerResponse struct {
	ID      string         `cbor:"id" json:"id"`
	Status  ResponseStatus `cbor:"status" json:"status"`
	Message string         `cbor:"message,omitempty" json:"message,omitempty"`
	Data    interface{}    `cbor:"data,omitempty" json:"data,omitempty"`
}

// NewRequestID issues an id for requests originated by the worker itself (event
// frames, watcher-triggered reloads). The external CLI generates its own.
func NewRequestID() string {
	return uuid.NewString()
}

// Ok builds the terminal success answer for a request.
func Ok(id, message string) WorkerResponse {
	return WorkerResponse{ID: id, Status: StatusOk, Message: message}
}

// OkData builds the terminal success answer carrying a data document.
func OkData(id, message string, data interface{}) WorkerResponse {
	return WorkerResponse{ID: id, Status: StatusOk, Message: message, Data: data}
}

// Processing builds an intermediate answer for long-running requests.
func Processing(id, message string) WorkerResponse {
	return WorkerResponse{ID: id, Status: StatusProcessing, Message: message}
}

// Err builds the terminal failure answer for a request.
func Err(id string, err error) WorkerResponse {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}

	return WorkerResponse{ID: id, Status: StatusError, Message: msg}
}
