package moonraker

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// JSON-RPC methods used on the printer connection.
const (
	methodSubscribe      = "printer.objects.subscribe"
	methodQuery          = "printer.objects.query"
	methodStatusUpdate   = "notify_status_update"
	methodHistoryChanged = "notify_history_changed"
)

// SubscribedObjects are the printer objects every session subscribes to.
var SubscribedObjects = []string{"print_stats", "virtual_sdcard"}

// Codec encodes and decodes the Moonraker wire protocol: JSON-RPC 2.0
// requests, responses, and subscription notifications. It is a pure
// transformation layer with no I/O.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Correlation ids are drawn
//     from an atomic counter, unique per Codec instance.
type Codec struct {
	nextID atomic.Int64
}

// Frame is a decoded inbound frame: either an RPC response correlated to
// an earlier request, or a printer notification. Exactly one field is set.
type Frame struct {
	Response *Response
	Event    *DeviceStatusEvent
}

// Response is a JSON-RPC response to a request this side sent.
type Response struct {
	ID     int64
	Result json.RawMessage
	Err    *RPCError
}

// RPCError is the error object of a failed JSON-RPC call.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// rpcRequest is the outbound JSON-RPC request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int64  `json:"id"`
}

// rpcEnvelope is the inbound frame shape before classification.
type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// EncodeSubscribe builds a printer.objects.subscribe request for the given
// objects and returns the correlation id alongside the serialized frame.
func (c *Codec) EncodeSubscribe(objects []string) (int64, []byte, error) {
	return c.encodeObjectsRequest(methodSubscribe, objects)
}

// EncodeQuery builds a printer.objects.query request, used to prime the
// current printer state after (re)connecting.
func (c *Codec) EncodeQuery(objects []string) (int64, []byte, error) {
	return c.encodeObjectsRequest(methodQuery, objects)
}

func (c *Codec) encodeObjectsRequest(method string, objects []string) (int64, []byte, error) {
	objs := make(map[string]any, len(objects))
	for _, name := range objects {
		objs[name] = nil
	}

	id := c.nextID.Add(1)
	frame, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  map[string]any{"objects": objs},
		ID:      id,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("encoding %s request: %w", method, err)
	}
	return id, frame, nil
}

// DecodeFrame parses a single inbound frame.
//
// Returns:
//   - Frame with Response set for correlated RPC responses
//   - Frame with Event set for handled notifications
//   - ErrMalformedFrame for invalid JSON or unusable payloads
//   - ErrUnknownMethod for notification methods outside the handled set
//
// Decode errors are recoverable per frame: the caller logs and discards
// the frame without failing the connection.
func (c *Codec) DecodeFrame(raw []byte) (Frame, error) {
	var env rpcEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	// A frame with an id and no method is a response to one of our
	// requests.
	if env.Method == "" {
		if env.ID == nil {
			return Frame{}, fmt.Errorf("%w: frame has neither method nor id", ErrMalformedFrame)
		}
		return Frame{Response: &Response{
			ID:     *env.ID,
			Result: env.Result,
			Err:    env.Error,
		}}, nil
	}

	switch env.Method {
	case methodStatusUpdate:
		status, err := decodeStatusParams(env.Params)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Event: &DeviceStatusEvent{
			Kind:   KindStatusUpdate,
			Status: status,
		}}, nil

	case methodHistoryChanged:
		history, err := decodeHistoryParams(env.Params)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Event: &DeviceStatusEvent{
			Kind:    KindHistoryChanged,
			History: history,
		}}, nil

	default:
		return Frame{}, fmt.Errorf("%w: %s", ErrUnknownMethod, env.Method)
	}
}

// DecodeStatusResult extracts the current printer state from the result of
// a subscribe or query request. Moonraker returns the full status of all
// requested objects, which primes the reconciler with the state the
// printer was already in before the session (re)connected.
//
// Returns nil with no error when the result carries no status object.
func (c *Codec) DecodeStatusResult(result json.RawMessage) (*StatusPayload, error) {
	if len(result) == 0 {
		return nil, nil
	}

	var body struct {
		Status map[string]json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if len(body.Status) == 0 {
		return nil, nil
	}
	return decodeStatusObjects(body.Status)
}

// decodeStatusParams handles both parameter shapes Moonraker emits for
// notify_status_update: the usual [objects, eventtime] array and a bare
// objects dictionary.
func decodeStatusParams(params json.RawMessage) (*StatusPayload, error) {
	objects, err := objectsFromParams(params)
	if err != nil {
		return nil, err
	}
	return decodeStatusObjects(objects)
}

// decodeStatusObjects folds the print_stats and virtual_sdcard objects
// into a StatusPayload. Absent objects and fields stay nil.
func decodeStatusObjects(objects map[string]json.RawMessage) (*StatusPayload, error) {
	payload := &StatusPayload{}

	if raw, ok := objects["print_stats"]; ok {
		var stats struct {
			State         *string  `json:"state"`
			Filename      *string  `json:"filename"`
			PrintDuration *float64 `json:"print_duration"`
			TotalDuration *float64 `json:"total_duration"`
			FilamentUsed  *float64 `json:"filament_used"`
		}
		if err := json.Unmarshal(raw, &stats); err != nil {
			return nil, fmt.Errorf("%w: print_stats: %w", ErrMalformedFrame, err)
		}
		if stats.State != nil {
			state, err := ParsePrintState(*stats.State)
			if err != nil {
				return nil, err
			}
			payload.State = &state
		}
		if stats.Filename != nil {
			name := cleanFilename(*stats.Filename)
			payload.Filename = &name
		}
		payload.PrintDuration = stats.PrintDuration
		payload.TotalDuration = stats.TotalDuration
		payload.FilamentUsed = stats.FilamentUsed
	}

	if raw, ok := objects["virtual_sdcard"]; ok {
		var sdcard struct {
			Progress *float64 `json:"progress"`
		}
		if err := json.Unmarshal(raw, &sdcard); err != nil {
			return nil, fmt.Errorf("%w: virtual_sdcard: %w", ErrMalformedFrame, err)
		}
		payload.Progress = sdcard.Progress
	}

	return payload, nil
}

// decodeHistoryParams handles both the [entry] array and bare entry forms
// of notify_history_changed.
func decodeHistoryParams(params json.RawMessage) (*HistoryPayload, error) {
	raw := firstParam(params)

	var entry struct {
		Action string `json:"action"`
		Job    *struct {
			JobID         string  `json:"job_id"`
			Filename      string  `json:"filename"`
			Status        string  `json:"status"`
			StartTime     float64 `json:"start_time"`
			EndTime       float64 `json:"end_time"`
			PrintDuration float64 `json:"print_duration"`
			TotalDuration float64 `json:"total_duration"`
			FilamentUsed  float64 `json:"filament_used"`
		} `json:"job"`
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("%w: history entry: %w", ErrMalformedFrame, err)
	}
	if entry.Action == "" {
		return nil, fmt.Errorf("%w: history entry missing action", ErrMalformedFrame)
	}

	payload := &HistoryPayload{Action: entry.Action}
	if entry.Job != nil {
		payload.Job = &HistoryJob{
			JobID:         entry.Job.JobID,
			Filename:      cleanFilename(entry.Job.Filename),
			Status:        entry.Job.Status,
			StartTime:     unixTime(entry.Job.StartTime),
			EndTime:       unixTime(entry.Job.EndTime),
			PrintDuration: entry.Job.PrintDuration,
			TotalDuration: entry.Job.TotalDuration,
			FilamentUsed:  entry.Job.FilamentUsed,
		}
	}
	return payload, nil
}

// objectsFromParams extracts the objects dictionary from notification
// params, accepting both the array and bare-dictionary forms.
func objectsFromParams(params json.RawMessage) (map[string]json.RawMessage, error) {
	raw := firstParam(params)

	var objects map[string]json.RawMessage
	if err := json.Unmarshal(raw, &objects); err != nil {
		return nil, fmt.Errorf("%w: status objects: %w", ErrMalformedFrame, err)
	}
	return objects, nil
}

// firstParam returns the first element of an array-shaped params field,
// or the params value itself when it is not an array.
func firstParam(params json.RawMessage) json.RawMessage {
	var arr []json.RawMessage
	if err := json.Unmarshal(params, &arr); err == nil && len(arr) > 0 {
		return arr[0]
	}
	return params
}
